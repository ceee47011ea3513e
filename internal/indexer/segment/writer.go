package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
)

// MagicBytes identifies a valid .fseg segment file ("FSEG").
const (
	MagicBytes    uint32 = 0x46534547
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32
	FileExt              = ".fseg"
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic       uint32
	Version     uint32
	FieldCount  uint32
	MaxDoc      uint32
	CreatedAt   int64
	DictOffset  int64
	DictSize    int64
	BlockOffset int64
	BlockSize   int64
	Compression Compression
}

func (h SegmentHeader) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.FieldCount)
	binary.LittleEndian.PutUint32(b[12:16], h.MaxDoc)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.BlockOffset))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.BlockSize))
	b[56] = byte(h.Compression)
	return b
}

func decodeHeader(b []byte) SegmentHeader {
	return SegmentHeader{
		Magic:       binary.LittleEndian.Uint32(b[0:4]),
		Version:     binary.LittleEndian.Uint32(b[4:8]),
		FieldCount:  binary.LittleEndian.Uint32(b[8:12]),
		MaxDoc:      binary.LittleEndian.Uint32(b[12:16]),
		CreatedAt:   int64(binary.LittleEndian.Uint64(b[16:24])),
		DictOffset:  int64(binary.LittleEndian.Uint64(b[24:32])),
		DictSize:    int64(binary.LittleEndian.Uint64(b[32:40])),
		BlockOffset: int64(binary.LittleEndian.Uint64(b[40:48])),
		BlockSize:   int64(binary.LittleEndian.Uint64(b[48:56])),
		Compression: Compression(b[56]),
	}
}

// BlockRef locates a block relative to the start of the block area.
type BlockRef struct {
	Offset int64 `json:"o"`
	Len    int   `json:"l"`
}

// FieldEntry describes one field in the directory. Values excludes the
// missing slot; Postings has one more entry than Values, missing first.
type FieldEntry struct {
	Name     string     `json:"n"`
	Values   [][]byte   `json:"v"`
	Postings []BlockRef `json:"p"`
	Ords     *BlockRef  `json:"o,omitempty"`
}

// Directory is the zstd-compressed JSON block describing the segment.
type Directory struct {
	IDs    []string     `json:"ids"`
	Fields []FieldEntry `json:"fields"`
}

// Writer serialises built segments into .fseg files.
type Writer struct {
	dataDir     string
	compression Compression
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string, compression Compression) *Writer {
	return &Writer{dataDir: dataDir, compression: compression}
}

// Path returns the file path of the named segment.
func (w *Writer) Path(name string) string {
	return filepath.Join(w.dataDir, name+FileExt)
}

// Write atomically creates the segment file for data. It writes to a .tmp
// file first and renames on success.
func (w *Writer) Write(data *index.SegmentData) (string, error) {
	if data.MaxDoc == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	finalPath := w.Path(data.Name)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()

	header := SegmentHeader{
		Magic:       MagicBytes,
		Version:     FormatVersion,
		FieldCount:  uint32(len(data.Fields)),
		MaxDoc:      data.MaxDoc,
		CreatedAt:   time.Now().Unix(),
		BlockOffset: int64(HeaderSize),
		Compression: w.compression,
	}
	if _, err := f.Write(header.encode()); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	bw := &blockWriter{w: f, compression: w.compression}
	dir := Directory{IDs: data.IDs}
	names := make([]string, 0, len(data.Fields))
	for name := range data.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entry, err := bw.writeField(data.Fields[name])
		if err != nil {
			return "", fmt.Errorf("writing field %s: %w", name, err)
		}
		dir.Fields = append(dir.Fields, entry)
	}
	header.BlockSize = bw.offset
	header.DictOffset = header.BlockOffset + header.BlockSize

	raw, err := json.Marshal(dir)
	if err != nil {
		return "", fmt.Errorf("marshaling directory: %w", err)
	}
	dictData, err := compressBlock(raw, CompressionZSTD)
	if err != nil {
		return "", fmt.Errorf("compressing directory: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing directory: %w", err)
	}
	header.DictSize = int64(len(dictData))

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], data.MaxDoc)
	binary.LittleEndian.PutUint64(footer[8:16], uint64(header.DictOffset))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(header.DictSize))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(header.BlockSize))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}
	if _, err := f.WriteAt(header.encode(), 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return finalPath, nil
}

type blockWriter struct {
	w           io.Writer
	compression Compression
	offset      int64
}

func (bw *blockWriter) write(raw []byte) (BlockRef, error) {
	block, err := compressBlock(raw, bw.compression)
	if err != nil {
		return BlockRef{}, err
	}
	if _, err := bw.w.Write(block); err != nil {
		return BlockRef{}, err
	}
	ref := BlockRef{Offset: bw.offset, Len: len(block)}
	bw.offset += int64(len(block))
	return ref, nil
}

func (bw *blockWriter) writeField(fd *index.FieldData) (FieldEntry, error) {
	entry := FieldEntry{
		Name:     fd.Name,
		Values:   fd.Values[1:],
		Postings: make([]BlockRef, len(fd.Postings)),
	}
	for ord, p := range fd.Postings {
		raw, err := p.Roaring().ToBytes()
		if err != nil {
			return FieldEntry{}, fmt.Errorf("encoding postings of ordinal %d: %w", ord, err)
		}
		ref, err := bw.write(raw)
		if err != nil {
			return FieldEntry{}, fmt.Errorf("writing postings of ordinal %d: %w", ord, err)
		}
		entry.Postings[ord] = ref
	}
	if fd.Ords != nil {
		raw, err := fd.Ords.MarshalBinary()
		if err != nil {
			return FieldEntry{}, fmt.Errorf("encoding ordinals: %w", err)
		}
		ref, err := bw.write(raw)
		if err != nil {
			return FieldEntry{}, fmt.Errorf("writing ordinals: %w", err)
		}
		entry.Ords = &ref
	}
	return entry, nil
}

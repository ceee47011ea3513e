package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/docset"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
)

// Reader gives access to one .fseg file. Fields are decoded lazily through
// LoadField; the file stays open until Close.
type Reader struct {
	file     *os.File
	filePath string
	name     string
	header   SegmentHeader
	ids      []string
	fields   map[string]FieldEntry
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := newReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func newReader(f *os.File, path string) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment format version %d", header.Version)
	}

	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.DictOffset+header.DictSize); err != nil {
		return nil, fmt.Errorf("reading segment footer: %w", err)
	}
	dictData := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictData, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	if sum := crc32.ChecksumIEEE(dictData); sum != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, fmt.Errorf("directory checksum mismatch: got %08x", sum)
	}
	raw, err := decompressBlock(dictData, CompressionZSTD)
	if err != nil {
		return nil, fmt.Errorf("decompressing directory: %w", err)
	}
	var dir Directory
	if err := json.Unmarshal(raw, &dir); err != nil {
		return nil, fmt.Errorf("parsing directory: %w", err)
	}
	if len(dir.IDs) != int(header.MaxDoc) {
		return nil, fmt.Errorf("directory lists %d ids for %d docs", len(dir.IDs), header.MaxDoc)
	}

	fields := make(map[string]FieldEntry, len(dir.Fields))
	for _, fe := range dir.Fields {
		fields[fe.Name] = fe
	}
	return &Reader{
		file:     f,
		filePath: path,
		name:     strings.TrimSuffix(filepath.Base(path), FileExt),
		header:   header,
		ids:      dir.IDs,
		fields:   fields,
	}, nil
}

// LoadField implements index.FieldLoader.
func (r *Reader) LoadField(name string) (*index.FieldData, error) {
	fe, ok := r.fields[name]
	if !ok {
		return nil, nil
	}
	fd := &index.FieldData{
		Name:     name,
		Values:   make([][]byte, 1, len(fe.Values)+1),
		Postings: make([]*docset.Bitmap, len(fe.Postings)),
	}
	fd.Values = append(fd.Values, fe.Values...)
	for ord, ref := range fe.Postings {
		raw, err := r.readBlock(ref)
		if err != nil {
			return nil, fmt.Errorf("postings of ordinal %d: %w", ord, err)
		}
		rb := roaring.New()
		if err := rb.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("decoding postings of ordinal %d: %w", ord, err)
		}
		fd.Postings[ord] = docset.Wrap(rb)
	}
	if fe.Ords != nil {
		raw, err := r.readBlock(*fe.Ords)
		if err != nil {
			return nil, fmt.Errorf("ordinals: %w", err)
		}
		ords, err := index.UnmarshalPackedOrds(raw)
		if err != nil {
			return nil, err
		}
		fd.Ords = ords
	}
	if err := fd.Validate(r.header.MaxDoc); err != nil {
		return nil, err
	}
	return fd, nil
}

func (r *Reader) readBlock(ref BlockRef) ([]byte, error) {
	block := make([]byte, ref.Len)
	if _, err := r.file.ReadAt(block, r.header.BlockOffset+ref.Offset); err != nil {
		return nil, fmt.Errorf("reading block at %d: %w", ref.Offset, err)
	}
	return decompressBlock(block, r.header.Compression)
}

// Segment exposes the file as an index segment. deleted may be nil.
func (r *Reader) Segment(deleted *docset.Bitmap) *index.Segment {
	return index.NewSegment(r.name, r.header.MaxDoc, deleted, r)
}

func (r *Reader) Name() string   { return r.name }
func (r *Reader) Path() string   { return r.filePath }
func (r *Reader) MaxDoc() uint32 { return r.header.MaxDoc }
func (r *Reader) Fields() int    { return len(r.fields) }
func (r *Reader) IDs() []string  { return r.ids }
func (r *Reader) Close() error   { return r.file.Close() }

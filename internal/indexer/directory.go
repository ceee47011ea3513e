package indexer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/docset"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/metrics"
)

// SchemaFromConfig builds the index schema declared in configuration.
func SchemaFromConfig(cfg config.SchemaConfig) (*index.Schema, error) {
	fields := make([]index.FieldInfo, 0, len(cfg.Fields))
	for _, f := range cfg.Fields {
		ft, err := index.FieldTypeByName(f.Type)
		if err != nil {
			return nil, fmt.Errorf("schema field %s: %w", f.Name, err)
		}
		fields = append(fields, index.FieldInfo{Name: f.Name, Type: ft, MultiValued: f.MultiValued})
	}
	return index.NewSchema(fields...), nil
}

type openSegment struct {
	reader  *segment.Reader
	segment *index.Segment
	deleted int
}

// Directory is the read side of a segment directory. It opens every .fseg
// file with its deletes sidecar and publishes them as one Snapshot. Reload
// picks up segments and deletes written since; each visible change bumps
// the snapshot generation.
type Directory struct {
	dataDir string
	schema  *index.Schema
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	segments []*openSegment
	byName   map[string]*openSegment
	current  atomic.Pointer[index.Snapshot]
}

// OpenDirectory loads every segment found in dataDir. Segments that fail to
// open are logged and skipped.
func OpenDirectory(dataDir string, schema *index.Schema, m *metrics.Metrics) (*Directory, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	d := &Directory{
		dataDir: dataDir,
		schema:  schema,
		metrics: m,
		logger:  slog.Default().With("component", "index-directory", "dir", dataDir),
		byName:  make(map[string]*openSegment),
	}
	d.current.Store(index.NewSnapshot(schema, 0))
	if _, err := d.Reload(); err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	d.logger.Info("segment recovery complete", "segments_loaded", len(d.segments))
	return d, nil
}

// Snapshot returns the latest published snapshot. It stays valid after
// later reloads.
func (d *Directory) Snapshot() *index.Snapshot {
	return d.current.Load()
}

func (d *Directory) DataDir() string { return d.dataDir }

func (d *Directory) Schema() *index.Schema { return d.schema }

// Reload opens new segment files and refreshes deletes. It returns the
// number of newly opened segments.
func (d *Directory) Reload() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	names, err := d.segmentFiles()
	if err != nil {
		return 0, err
	}

	changed := false
	added := 0
	for _, name := range names {
		path := filepath.Join(d.dataDir, name)
		if s, ok := d.byName[name]; ok {
			if d.refreshDeletes(s, path) {
				changed = true
			}
			continue
		}
		reader, err := segment.OpenReader(path)
		if err != nil {
			d.logger.Error("failed to open segment, skipping", "segment", name, "error", err)
			continue
		}
		deleted, err := segment.ReadDeletes(path)
		if err != nil {
			d.logger.Error("failed to read deletes, skipping segment", "segment", name, "error", err)
			reader.Close()
			continue
		}
		s := &openSegment{reader: reader, segment: reader.Segment(deleted)}
		if deleted != nil {
			s.deleted = deleted.Size()
		}
		d.segments = append(d.segments, s)
		d.byName[name] = s
		added++
		changed = true
		d.logger.Info("loaded segment",
			"segment", reader.Name(),
			"docs", reader.MaxDoc(),
			"deleted", s.deleted,
		)
	}

	if changed {
		d.publishLocked()
	}
	return added, nil
}

// segmentFiles lists the .fseg files in name order, which is flush order.
func (d *Directory) segmentFiles() ([]string, error) {
	entries, err := os.ReadDir(d.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading data directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), segment.FileExt) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// refreshDeletes re-reads the sidecar of an open segment. Deletes only
// grow, so a larger cardinality is the only change to look for.
func (d *Directory) refreshDeletes(s *openSegment, path string) bool {
	deleted, err := segment.ReadDeletes(path)
	if err != nil {
		d.logger.Error("failed to refresh deletes", "segment", s.reader.Name(), "error", err)
		return false
	}
	if deleted == nil || deleted.Size() <= s.deleted {
		return false
	}
	s.segment = s.segment.WithDeletes(deleted)
	s.deleted = deleted.Size()
	return true
}

// commit registers a segment this process has just written, if any, and
// writes the deletes collected for existing segments, then publishes one
// snapshot covering both.
func (d *Directory) commit(reader *segment.Reader, readerDeleted *docset.Bitmap, deletes map[string]*docset.Bitmap) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name, del := range deletes {
		s, ok := d.byName[name+segment.FileExt]
		if !ok {
			return fmt.Errorf("deleting from unknown segment %s", name)
		}
		updated := s.segment.WithDeletes(del)
		if err := segment.WriteDeletes(s.reader.Path(), updated.Deleted()); err != nil {
			return fmt.Errorf("segment %s: %w", name, err)
		}
		s.segment = updated
		s.deleted = updated.Deleted().Size()
	}
	if reader != nil {
		s := &openSegment{reader: reader, segment: reader.Segment(readerDeleted)}
		if readerDeleted != nil {
			s.deleted = readerDeleted.Size()
		}
		d.segments = append(d.segments, s)
		d.byName[reader.Name()+segment.FileExt] = s
	}
	d.publishLocked()
	return nil
}

// liveIDs calls fn for every live document of every open segment.
func (d *Directory) liveIDs(fn func(segment string, local uint32, id string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.segments {
		ids := s.reader.IDs()
		s.segment.LiveDocs().ForEach(func(doc uint32) bool {
			fn(s.reader.Name(), doc, ids[doc])
			return true
		})
	}
}

func (d *Directory) publishLocked() {
	segs := make([]*index.Segment, len(d.segments))
	for i, s := range d.segments {
		segs[i] = s.segment
	}
	gen := d.current.Load().Generation() + 1
	snap := index.NewSnapshot(d.schema, gen, segs...)
	d.current.Store(snap)
	if d.metrics != nil {
		d.metrics.SegmentsLoaded.Set(float64(len(segs)))
	}
	d.logger.Debug("snapshot published",
		"generation", gen,
		"segments", len(segs),
		"live_docs", snap.NumDocs(),
	)
}

// Close closes every segment file. Snapshots handed out earlier must not
// be used afterwards.
func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for _, s := range d.segments {
		if err := s.reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.segments = nil
	d.byName = make(map[string]*openSegment)
	return firstErr
}

package segment

import (
	"fmt"
	"os"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/internal/docset"
)

// DeletesExt is the suffix of the sidecar file holding a segment's deleted
// documents as a serialized roaring bitmap.
const DeletesExt = ".del"

// DeletesPath returns the sidecar path for a segment file.
func DeletesPath(segmentPath string) string {
	return strings.TrimSuffix(segmentPath, FileExt) + DeletesExt
}

// WriteDeletes atomically replaces the sidecar of segmentPath.
func WriteDeletes(segmentPath string, deleted *docset.Bitmap) error {
	path := DeletesPath(segmentPath)
	tmpPath := path + ".tmp"
	raw, err := deleted.Roaring().ToBytes()
	if err != nil {
		return fmt.Errorf("encoding deletes: %w", err)
	}
	if err := os.WriteFile(tmpPath, raw, 0644); err != nil {
		return fmt.Errorf("writing deletes: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming deletes file: %w", err)
	}
	return nil
}

// ReadDeletes loads the sidecar of segmentPath. A segment without one has
// no deletes and yields nil.
func ReadDeletes(segmentPath string) (*docset.Bitmap, error) {
	raw, err := os.ReadFile(DeletesPath(segmentPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading deletes: %w", err)
	}
	rb := roaring.New()
	if err := rb.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decoding deletes: %w", err)
	}
	return docset.Wrap(rb), nil
}

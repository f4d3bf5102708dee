// Package packager groups generated images into ZIP archives that stay
// under a delivery size ceiling. Packing is greedy in input order: an
// archive fills until the next image would push its raw payload total past
// the threshold, then a new archive starts. An image that is alone larger
// than the threshold still ships, in an archive of its own.
package packager

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"genforge/core"
	"genforge/logging"
)

// Item is one packed image. Index is the image's position in the original
// prompt list (0-based); filenames inside the archive are derived from it.
type Item struct {
	Index   int
	Prompt  string
	Payload []byte
}

// Archive is one finished ZIP, ready for delivery.
type Archive struct {
	// Name is the archive's delivery filename.
	Name string

	// Data is the complete ZIP payload.
	Data []byte

	// Files are the image filenames inside the archive, in packing order.
	Files []string

	// RawBytes is the uncompressed payload total counted against the
	// threshold. The manifest is not included.
	RawBytes int64
}

// manifestName is the per-archive manifest file. Its size never counts
// toward the packing threshold.
const manifestName = "README.txt"

// Packager packs images into size-bounded archives.
type Packager struct {
	threshold int64
	logger    *logging.Logger

	// now stamps archive entries, replaceable in tests.
	now func() time.Time
}

// New creates a Packager. The threshold is ceiling*margin; zero or negative
// inputs fall back to the engine defaults (50 MB ceiling, 0.9 margin).
func New(ceiling int64, margin float64, logger *logging.Logger) *Packager {
	if ceiling <= 0 {
		ceiling = core.DefaultArchiveCeiling
	}
	if margin <= 0 || margin > 1 {
		margin = core.DefaultArchiveMargin
	}
	return &Packager{
		threshold: int64(float64(ceiling) * margin),
		logger:    logger.Named("packager"),
		now:       time.Now,
	}
}

// Threshold returns the effective per-archive payload limit in bytes.
func (p *Packager) Threshold() int64 {
	return p.threshold
}

// Pack groups items into archives and builds each ZIP. Items keep their
// input order; no item is ever dropped or reordered across archives.
// batchID is stamped into each archive's manifest.
func (p *Packager) Pack(batchID string, items []Item) ([]Archive, error) {
	if len(items) == 0 {
		return nil, nil
	}

	groups := p.partition(items)

	archives := make([]Archive, 0, len(groups))
	for i, group := range groups {
		archive, err := p.buildArchive(batchID, group, archiveName(i, len(groups)))
		if err != nil {
			return nil, err
		}
		archives = append(archives, archive)
	}

	p.logger.Info("packed images",
		zap.String("batch_id", batchID),
		zap.Int("images", len(items)),
		zap.Int("archives", len(archives)),
		zap.String("threshold", core.FormatBytes(p.threshold)))
	return archives, nil
}

// partition splits items greedily at the threshold. An oversized item
// always forms a group of its own.
func (p *Packager) partition(items []Item) [][]Item {
	var groups [][]Item
	var current []Item
	var currentSize int64

	for _, item := range items {
		itemSize := int64(len(item.Payload))
		if len(current) > 0 && currentSize+itemSize > p.threshold {
			groups = append(groups, current)
			current = nil
			currentSize = 0
		}
		current = append(current, item)
		currentSize += itemSize
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// buildArchive writes one group into a ZIP with its manifest.
func (p *Packager) buildArchive(batchID string, group []Item, name string) (Archive, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	modified := p.now()

	archive := Archive{
		Name:  name,
		Files: make([]string, 0, len(group)),
	}

	for _, item := range group {
		fileName := ImageFileName(item.Index)
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     fileName,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return Archive{}, fmt.Errorf("packager: creating %s in %s: %w", fileName, name, err)
		}
		if _, err := w.Write(item.Payload); err != nil {
			return Archive{}, fmt.Errorf("packager: writing %s in %s: %w", fileName, name, err)
		}
		archive.Files = append(archive.Files, fileName)
		archive.RawBytes += int64(len(item.Payload))
	}

	mw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     manifestName,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return Archive{}, fmt.Errorf("packager: creating manifest in %s: %w", name, err)
	}
	if _, err := mw.Write([]byte(buildManifest(batchID, group, modified))); err != nil {
		return Archive{}, fmt.Errorf("packager: writing manifest in %s: %w", name, err)
	}

	if err := zw.Close(); err != nil {
		return Archive{}, fmt.Errorf("packager: closing %s: %w", name, err)
	}

	archive.Data = buf.Bytes()
	return archive, nil
}

// buildManifest renders the README listing every image with its prompt.
func buildManifest(batchID string, group []Item, generated time.Time) string {
	var b strings.Builder
	b.WriteString("Generated Images\n")
	b.WriteString("================\n\n")
	if batchID != "" {
		fmt.Fprintf(&b, "Batch:     %s\n", batchID)
	}
	fmt.Fprintf(&b, "Generated: %s\n", generated.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Images:    %d\n\n", len(group))

	for _, item := range group {
		fmt.Fprintf(&b, "%s  (%s)\n", ImageFileName(item.Index), core.FormatBytes(int64(len(item.Payload))))
		if item.Prompt != "" {
			fmt.Fprintf(&b, "  prompt: %s\n", item.Prompt)
		}
	}
	return b.String()
}

// ImageFileName returns the delivery filename for the image at the given
// 0-based prompt index ("image_001.png" for index 0).
func ImageFileName(index int) string {
	return fmt.Sprintf("image_%03d.png", index+1)
}

// archiveName names archives "images.zip" for a single archive and
// "images_partN.zip" when the batch splits.
func archiveName(i, total int) string {
	if total == 1 {
		return "images.zip"
	}
	return fmt.Sprintf("images_part%d.zip", i+1)
}

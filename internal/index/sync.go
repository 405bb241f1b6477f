package index

import (
	"log/slog"
	"strings"

	"github.com/starford/marginalia/internal/checksum"
	"github.com/starford/marginalia/internal/models"
)

// Document is the indexable form of one stored collection.
type Document struct {
	Checksum string
	Rows     []Row
}

// Source enumerates stored collections. fn must not retain c.
type Source interface {
	Each(fn func(path string, c *models.Collection))
}

// Snapshot converts every collection of src into rows. It does no I/O, so
// callers may run it while holding their own lock.
func Snapshot(src Source) map[string]Document {
	out := map[string]Document{}
	src.Each(func(path string, c *models.Collection) {
		out[path] = Document{Checksum: checksum.SumJSON(c), Rows: RowsFor(c)}
	})
	return out
}

// RowsFor flattens a collection into index rows.
func RowsFor(c *models.Collection) []Row {
	all := c.All()
	rows := make([]Row, 0, len(all))
	for _, a := range all {
		tags := make([]string, len(a.Tags))
		for i, t := range a.Tags {
			tags[i] = t.Name
		}
		body := a.Text
		if a.Note != "" {
			body = strings.TrimSpace(body + "\n" + a.Note)
		}
		rows = append(rows, Row{
			ID:    a.ID,
			Kind:  string(a.Type),
			Color: string(a.Color),
			Page:  a.Page,
			Tags:  tags,
			Body:  body,
		})
	}
	return rows
}

// Sync brings the index up to date with docs:
//   - new/changed documents are upserted
//   - documents no longer present are deleted from the index
func Sync(db AnnotationIndex, docs map[string]Document, logger *slog.Logger) error {
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	for path, d := range docs {
		if checksums[path] == d.Checksum {
			continue
		}
		if err := db.UpsertDocument(path, d.Checksum, d.Rows); err != nil {
			logger.Warn("sync: index failed", slog.String("path", path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", path), slog.Int("annotations", len(d.Rows)))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := docs[p]; !ok {
			if err := db.DeleteDocument(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

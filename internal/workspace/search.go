package workspace

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/starford/marginalia/internal/index"
	"github.com/starford/marginalia/internal/links"
)

const defaultSearchLimit = 20

// syncIndex pushes changed documents to the search index. The snapshot is
// taken under the session lock; the writes happen outside it.
func (s *Session) syncIndex() {
	if s.index == nil {
		return
	}
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	s.mu.Lock()
	docs := index.Snapshot(s.store)
	s.mu.Unlock()

	if err := index.Sync(s.index, docs, s.logger); err != nil {
		s.logger.Warn("search index sync failed", slog.String("error", err.Error()))
	}
}

// Search finds annotations across every stored document whose text, note
// or tags contain query. Without an index it scans the store in memory.
func (s *Session) Search(query string, limit int) ([]index.Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if s.index != nil {
		return s.index.Search(query, limit)
	}

	s.mu.Lock()
	docs := index.Snapshot(s.store)
	s.mu.Unlock()
	return scan(docs, query, limit), nil
}

func scan(docs map[string]index.Document, query string, limit int) []index.Hit {
	q := strings.ToLower(query)
	var out []index.Hit
	for path, d := range docs {
		for _, r := range d.Rows {
			if !strings.Contains(strings.ToLower(r.Body), q) && !tagMatch(r.Tags, q) {
				continue
			}
			out = append(out, index.Hit{
				Path:    path,
				ID:      r.ID,
				Kind:    r.Kind,
				Page:    r.Page,
				Snippet: links.Excerpt(r.Body, 200),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func tagMatch(tags []string, q string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

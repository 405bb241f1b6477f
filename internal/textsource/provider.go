package textsource

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrUnsupported is returned for extensions with no registered loader.
var ErrUnsupported = errors.New("textsource: unsupported document type")

type cached struct {
	mod  time.Time
	size int64
	text Text
}

// Provider picks a loader by file extension and caches results until the
// file changes.
type Provider struct {
	loaders map[string]Loader
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]cached
}

// NewProvider returns a provider with loaders for PDF, Markdown, DOCX,
// EPUB and plain text.
func NewProvider(logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{
		loaders: map[string]Loader{},
		logger:  logger,
		cache:   map[string]cached{},
	}
	p.Register(PDFLoader{}, ".pdf")
	p.Register(MarkdownLoader{}, ".md", ".markdown")
	p.Register(DocxLoader{}, ".docx")
	p.Register(EpubLoader{}, ".epub")
	p.Register(PlainLoader{}, ".txt", ".text", "")
	return p
}

// Register installs l for the given extensions, replacing existing ones.
func (p *Provider) Register(l Loader, exts ...string) {
	for _, e := range exts {
		p.loaders[strings.ToLower(e)] = l
	}
}

// GetFullText returns the extracted text of the document at path.
func (p *Provider) GetFullText(path string) (Text, error) {
	l, ok := p.loaders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return Text{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return Text{}, fmt.Errorf("textsource: stat: %w", err)
	}

	p.mu.Lock()
	c, hit := p.cache[path]
	p.mu.Unlock()
	if hit && c.mod.Equal(info.ModTime()) && c.size == info.Size() {
		return c.text, nil
	}

	start := time.Now()
	t, err := l.Load(path)
	if err != nil {
		return Text{}, err
	}
	p.logger.Debug("text extracted",
		slog.String("path", path),
		slog.Int("chars", t.Len()),
		slog.Int("pages", len(t.Boundaries)),
		slog.Duration("took", time.Since(start)))

	p.mu.Lock()
	p.cache[path] = cached{mod: info.ModTime(), size: info.Size(), text: t}
	p.mu.Unlock()
	return t, nil
}

// Forget drops the cached text for path.
func (p *Provider) Forget(path string) {
	p.mu.Lock()
	delete(p.cache, path)
	p.mu.Unlock()
}

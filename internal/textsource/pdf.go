package textsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
)

// PDF extracts page text from a PDF file.
type PDF struct {
	path string

	mu     sync.Mutex
	file   *os.File
	reader *pdf.Reader
	meta   Metadata
}

// OpenPDF opens path and reads its metadata.
func OpenPDF(path string) (*PDF, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	p := &PDF{path: path, file: f, reader: r}
	p.meta = p.readMetadata()
	return p, nil
}

func (p *PDF) readMetadata() Metadata {
	meta := Metadata{PageCount: p.reader.NumPage()}
	info := p.reader.Trailer().Key("Info")
	if !info.IsNull() {
		meta.Title = strings.TrimSpace(info.Key("Title").Text())
		meta.Author = strings.TrimSpace(info.Key("Author").Text())
		meta.Subject = strings.TrimSpace(info.Key("Subject").Text())
		meta.Creator = strings.TrimSpace(info.Key("Creator").Text())
	}
	if meta.Title == "" {
		meta.Title = strings.TrimSuffix(filepath.Base(p.path), filepath.Ext(p.path))
	}
	if meta.Author == "" {
		meta.Author = "Unknown"
	}
	return meta
}

func (p *PDF) TotalPages() int {
	return p.meta.PageCount
}

func (p *PDF) Metadata() Metadata {
	return p.meta
}

// PageText returns the cleaned text of a zero-based page.
func (p *PDF) PageText(ctx context.Context, page int) (text string, err error) {
	if page < 0 || page >= p.meta.PageCount {
		return "", pageError(page, p.meta.PageCount)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reader == nil {
		return "", fmt.Errorf("pdf %s is closed", p.path)
	}

	// The content stream decoder panics on some malformed pages.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to extract text from page %d: %v", page, r)
		}
	}()

	pg := p.reader.Page(page + 1)
	if pg.V.IsNull() {
		return "", pageError(page, p.meta.PageCount)
	}
	text, err = pg.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("failed to extract text from page %d: %w", page, err)
	}
	return Clean(text), nil
}

func (p *PDF) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	p.reader = nil
	return err
}

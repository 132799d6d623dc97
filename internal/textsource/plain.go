package textsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Plain serves pages from text already split into pages. Files use form
// feeds as page breaks.
type Plain struct {
	pages []string
	meta  Metadata
}

// OpenPlain reads a text file and splits it on form feeds.
func OpenPlain(path string) (*Plain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read text file: %w", err)
	}
	p := FromPages(strings.Split(string(data), "\f"))
	p.meta.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return p, nil
}

// FromPages returns a Source over the given page texts.
func FromPages(pages []string) *Plain {
	cleaned := make([]string, len(pages))
	for i, page := range pages {
		cleaned[i] = Clean(page)
	}
	return &Plain{
		pages: cleaned,
		meta:  Metadata{Author: "Unknown", PageCount: len(cleaned)},
	}
}

func (p *Plain) PageText(ctx context.Context, page int) (string, error) {
	if page < 0 || page >= len(p.pages) {
		return "", pageError(page, len(p.pages))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.pages[page], nil
}

func (p *Plain) TotalPages() int {
	return len(p.pages)
}

func (p *Plain) Metadata() Metadata {
	return p.meta
}

func (p *Plain) Close() error {
	return nil
}

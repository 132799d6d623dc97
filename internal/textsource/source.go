package textsource

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrPageNotFound is returned for a page index outside the document.
var ErrPageNotFound = errors.New("page not found")

// Metadata describes the uploaded document.
type Metadata struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	Subject   string `json:"subject,omitempty"`
	Creator   string `json:"creator,omitempty"`
	PageCount int    `json:"page_count"`
}

// Source yields cleaned text for zero-based page indices.
type Source interface {
	PageText(ctx context.Context, page int) (string, error)
	TotalPages() int
	Metadata() Metadata
	Close() error
}

// Open picks a Source implementation from the file extension.
func Open(path string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return OpenPDF(path)
	case ".txt", ".text":
		return OpenPlain(path)
	default:
		return nil, fmt.Errorf("unsupported document type: %s", filepath.Ext(path))
	}
}

func pageError(page, total int) error {
	return fmt.Errorf("%w: page %d out of range (0-%d)", ErrPageNotFound, page, total-1)
}

var (
	blankLines = regexp.MustCompile(`\n{3,}`)
	spaceRuns  = regexp.MustCompile(` {2,}`)
)

// Clean collapses extraction artifacts: runs of blank lines and spaces.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

package models

import (
	"sync/atomic"
	"time"

	"github.com/lehigh-university-libraries/mangaroo/internal/bible"
	"github.com/lehigh-university-libraries/mangaroo/internal/textsource"
)

// ReadingSession is one uploaded document being read page by page.
// Each session owns exactly one Story Bible.
type ReadingSession struct {
	ID         string
	Filename   string
	SourcePath string
	TotalPages int
	Metadata   textsource.Metadata
	CreatedAt  time.Time

	Source textsource.Source
	Bible  *bible.Bible

	cursor atomic.Int64
}

// SessionSummary is the listing view of a session
type SessionSummary struct {
	ID              string              `json:"id"`
	Filename        string              `json:"filename"`
	TotalPages      int                 `json:"total_pages"`
	CurrentPage     int                 `json:"current_page"`
	LastUpdatedPage int                 `json:"last_updated_page"`
	Characters      int                 `json:"characters"`
	Metadata        textsource.Metadata `json:"metadata"`
	CreatedAt       time.Time           `json:"created_at"`
}

// CurrentPage is the page most recently read or generated.
func (s *ReadingSession) CurrentPage() int {
	return int(s.cursor.Load())
}

func (s *ReadingSession) SetCurrentPage(page int) {
	s.cursor.Store(int64(page))
}

// HasPage reports whether page is a valid zero-based index.
func (s *ReadingSession) HasPage(page int) bool {
	return page >= 0 && page < s.TotalPages
}

func (s *ReadingSession) Summary() SessionSummary {
	state := s.Bible.Current()
	return SessionSummary{
		ID:              s.ID,
		Filename:        s.Filename,
		TotalPages:      s.TotalPages,
		CurrentPage:     s.CurrentPage(),
		LastUpdatedPage: state.LastUpdatedPage,
		Characters:      len(state.Characters),
		Metadata:        s.Metadata,
		CreatedAt:       s.CreatedAt,
	}
}

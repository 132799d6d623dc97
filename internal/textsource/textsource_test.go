package textsource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestClean(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "  Aiko   ran.  ", want: "Aiko ran."},
		{in: "One.\n\n\n\n\nTwo.", want: "One.\n\nTwo."},
		{in: "One.\r\n\r\n\r\nTwo.", want: "One.\n\nTwo."},
		{in: "Kept\n\nparagraph", want: "Kept\n\nparagraph"},
	}
	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "novel.txt")
	if err := os.WriteFile(path, []byte("Page one.\fPage   two.\f\n\n\n\nPage three."), 0644); err != nil {
		t.Fatal(err)
	}

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if src.TotalPages() != 3 {
		t.Fatalf("pages = %d, want 3", src.TotalPages())
	}
	if meta := src.Metadata(); meta.Title != "novel" || meta.PageCount != 3 {
		t.Errorf("metadata = %+v", meta)
	}

	tests := []struct {
		page    int
		want    string
		wantErr error
	}{
		{page: 0, want: "Page one."},
		{page: 1, want: "Page two."},
		{page: 2, want: "Page three."},
		{page: 3, wantErr: ErrPageNotFound},
		{page: -1, wantErr: ErrPageNotFound},
	}
	for _, tt := range tests {
		got, err := src.PageText(context.Background(), tt.page)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("page %d: err = %v, want %v", tt.page, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("page %d = %q, want %q", tt.page, got, tt.want)
		}
	}
}

func TestOpenUnsupported(t *testing.T) {
	if _, err := Open("book.epub"); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if _, err := OpenPDF(filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Error("expected error for missing pdf")
	}
}

type countingSource struct {
	*Plain
	calls atomic.Int32
	delay time.Duration
}

func (c *countingSource) PageText(ctx context.Context, page int) (string, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	return c.Plain.PageText(ctx, page)
}

func TestCachedCoalescesLoads(t *testing.T) {
	src := &countingSource{Plain: FromPages([]string{"zero", "one"}), delay: 20 * time.Millisecond}
	cached := NewCached(src, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text, err := cached.PageText(context.Background(), 1)
			if err != nil || text != "one" {
				t.Errorf("PageText = %q, %v", text, err)
			}
		}()
	}
	wg.Wait()

	if _, err := cached.PageText(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("underlying loads = %d, want 1", n)
	}
	if cached.TotalPages() != 2 {
		t.Errorf("TotalPages not delegated")
	}
}

type gatedSource struct {
	*Plain
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedSource) PageText(ctx context.Context, page int) (string, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return g.Plain.PageText(ctx, page)
}

func TestCachedCancelledCallerDoesNotFailOthers(t *testing.T) {
	src := &gatedSource{
		Plain:   FromPages([]string{"zero", "one"}),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	cached := NewCached(src, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cached.PageText(ctx, 1)
		firstErr <- err
	}()
	<-src.started

	type result struct {
		text string
		err  error
	}
	second := make(chan result, 1)
	go func() {
		text, err := cached.PageText(context.Background(), 1)
		second <- result{text, err}
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller err = %v", err)
	}

	close(src.release)
	res := <-second
	if res.err != nil || res.text != "one" {
		t.Fatalf("second caller = %q, %v", res.text, res.err)
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("underlying loads = %d, want 1", n)
	}
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	src := &countingSource{Plain: FromPages([]string{"zero"})}
	cached := NewCached(src, 0)

	for i := 0; i < 2; i++ {
		if _, err := cached.PageText(context.Background(), 5); !errors.Is(err, ErrPageNotFound) {
			t.Fatalf("err = %v", err)
		}
	}
	if n := src.calls.Load(); n != 2 {
		t.Errorf("underlying loads = %d, want 2", n)
	}
}

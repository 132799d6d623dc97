package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/mangaroo/internal/bible"
	"github.com/lehigh-university-libraries/mangaroo/internal/failure"
	"github.com/lehigh-university-libraries/mangaroo/internal/imagen"
	"github.com/lehigh-university-libraries/mangaroo/internal/models"
	"github.com/lehigh-university-libraries/mangaroo/internal/narrative"
	"github.com/lehigh-university-libraries/mangaroo/internal/prompt"
	"github.com/lehigh-university-libraries/mangaroo/internal/retry"
	"github.com/lehigh-university-libraries/mangaroo/internal/storage"
	"github.com/lehigh-university-libraries/mangaroo/internal/textsource"
)

const defaultTextTimeout = 10 * time.Second

// Synthesizer turns a prompt into an image.
type Synthesizer interface {
	Synthesize(ctx context.Context, req prompt.Request) (imagen.Image, error)
}

// Stage is a step of the per-request generation state machine.
type Stage string

const (
	StageReceived       Stage = "RECEIVED"
	StageAnalyzed       Stage = "ANALYZED"
	StagePromptBuilt    Stage = "PROMPT_BUILT"
	StageImageRequested Stage = "IMAGE_REQUESTED"
	StageSucceeded      Stage = "SUCCEEDED"
	StageFailed         Stage = "FAILED"
)

// Result is a successful panel generation.
type Result struct {
	SessionID string
	Page      int
	Image     imagen.Image
	State     narrative.State
	Prompt    prompt.Request

	// Degraded is set when analysis failed and the prompt was built from the
	// prior snapshot.
	Degraded       bool
	DegradedReason string

	Trace []Stage
}

// Config tunes the orchestrator and the bibles it creates.
type Config struct {
	Style           prompt.Style
	PromptLimits    prompt.Limits
	NarrativeLimits narrative.Limits
	AnalysisPolicy  retry.Policy
	ImagePolicy     retry.Policy
	TextTimeout     time.Duration
}

// DefaultConfig returns the built-in manga preset with default limits.
func DefaultConfig() Config {
	style, _ := prompt.DefaultStyles().Lookup(prompt.DefaultStyle)
	return Config{
		Style:           style,
		PromptLimits:    prompt.DefaultLimits(),
		NarrativeLimits: narrative.DefaultLimits(),
		AnalysisPolicy:  retry.Default(),
		ImagePolicy:     retry.Default(),
		TextTimeout:     defaultTextTimeout,
	}
}

// Orchestrator runs page generation for every session in a store.
type Orchestrator struct {
	store    *storage.SessionStore
	analyzer bible.Analyzer
	synth    Synthesizer
	cfg      Config
	logger   *slog.Logger
}

// New returns an orchestrator. A nil logger uses slog.Default().
func New(store *storage.SessionStore, analyzer bible.Analyzer, synth Synthesizer, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TextTimeout <= 0 {
		cfg.TextTimeout = defaultTextTimeout
	}
	return &Orchestrator{
		store:    store,
		analyzer: analyzer,
		synth:    synth,
		cfg:      cfg,
		logger:   logger,
	}
}

// OpenSession registers a new reading session over src with a fresh Story Bible.
func (o *Orchestrator) OpenSession(filename, path string, src textsource.Source) *models.ReadingSession {
	session := &models.ReadingSession{
		Filename:   filename,
		SourcePath: path,
		TotalPages: src.TotalPages(),
		Metadata:   src.Metadata(),
		CreatedAt:  time.Now(),
		Source:     src,
		Bible: bible.New(o.analyzer,
			bible.WithLimits(o.cfg.NarrativeLimits),
			bible.WithRetryPolicy(o.cfg.AnalysisPolicy),
			bible.WithLogger(o.logger),
		),
	}
	o.store.Add(session)
	o.logger.Info("Opened reading session", "session_id", session.ID, "filename", filename, "total_pages", session.TotalPages)
	return session
}

// CloseSession removes a session and releases its text source.
func (o *Orchestrator) CloseSession(sessionID string) (*models.ReadingSession, error) {
	session, err := o.store.Close(sessionID)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return nil, failure.Wrap(failure.KindInvalidRequest, "close session", fmt.Errorf("%w: %s", err, sessionID))
	}
	if err != nil {
		return session, failure.Wrap(failure.KindInternal, "close session", err)
	}
	o.logger.Info("Closed reading session", "session_id", sessionID)
	return session, nil
}

// Session resolves a session id.
func (o *Orchestrator) Session(sessionID string) (*models.ReadingSession, error) {
	session, ok := o.store.Get(sessionID)
	if !ok {
		return nil, failure.Wrap(failure.KindInvalidRequest, "lookup session", fmt.Errorf("%w: %s", storage.ErrSessionNotFound, sessionID))
	}
	return session, nil
}

// Sessions lists every open session.
func (o *Orchestrator) Sessions() []*models.ReadingSession {
	return o.store.GetAll()
}

// CurrentState returns the session's narrative snapshot without analysis.
func (o *Orchestrator) CurrentState(sessionID string) (narrative.State, error) {
	session, err := o.Session(sessionID)
	if err != nil {
		return narrative.State{}, err
	}
	return session.Bible.Current(), nil
}

// PageText returns a page's text and moves the session cursor to it.
func (o *Orchestrator) PageText(ctx context.Context, sessionID string, page int) (string, *models.ReadingSession, error) {
	session, err := o.resolve(sessionID, page)
	if err != nil {
		return "", nil, err
	}
	text, err := o.readPage(ctx, session, page)
	if err != nil {
		return "", session, err
	}
	session.SetCurrentPage(page)
	return text, session, nil
}

// UpdateAndGetState analyzes a page into the session's Story Bible without
// generating an image. On failure the returned state is the prior snapshot.
func (o *Orchestrator) UpdateAndGetState(ctx context.Context, sessionID string, page int) (narrative.State, error) {
	session, err := o.resolve(sessionID, page)
	if err != nil {
		return narrative.State{}, err
	}
	text, err := o.readPage(ctx, session, page)
	if err != nil {
		return session.Bible.Current(), err
	}
	o.warnOutOfOrder(session, page)
	return session.Bible.Update(ctx, page, text)
}

// GeneratePanel runs the full pipeline for one page.
func (o *Orchestrator) GeneratePanel(ctx context.Context, sessionID string, page int) (*Result, error) {
	res := &Result{SessionID: sessionID, Page: page}
	logger := o.logger.With("session_id", sessionID, "page", page)
	started := time.Now()

	o.advance(logger, res, StageReceived)
	session, err := o.resolve(sessionID, page)
	if err != nil {
		return nil, o.fail(logger, res, err)
	}

	text, err := o.readPage(ctx, session, page)
	if err != nil {
		return nil, o.fail(logger, res, err)
	}
	session.SetCurrentPage(page)

	o.warnOutOfOrder(session, page)
	state, err := session.Bible.Update(ctx, page, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, o.fail(logger, res, err)
		}
		res.Degraded = true
		res.DegradedReason = string(failure.KindOf(err))
		logger.Warn("Continuing with prior story state", "kind", failure.KindOf(err), "err", err)
	}
	res.State = state
	o.advance(logger, res, StageAnalyzed)

	req := prompt.Build(state, text, o.cfg.Style, o.cfg.PromptLimits)
	res.Prompt = req
	o.advance(logger, res, StagePromptBuilt)

	o.advance(logger, res, StageImageRequested)
	var img imagen.Image
	err = o.cfg.ImagePolicy.Do(ctx, "image synthesis", func(ctx context.Context) error {
		out, err := o.synth.Synthesize(ctx, req)
		if err != nil {
			return err
		}
		img = out
		return nil
	})
	if err != nil {
		return nil, o.fail(logger, res, err)
	}

	res.Image = img
	o.advance(logger, res, StageSucceeded)
	logger.Info("Generated panel",
		"degraded", res.Degraded,
		"anchors", len(req.Anchors),
		"prompt_length", len(req.Prompt),
		"duration", time.Since(started),
	)
	return res, nil
}

func (o *Orchestrator) resolve(sessionID string, page int) (*models.ReadingSession, error) {
	session, err := o.Session(sessionID)
	if err != nil {
		return nil, err
	}
	if !session.HasPage(page) {
		return nil, failure.New(failure.KindInvalidRequest, "validate page",
			fmt.Sprintf("page %d out of range (0-%d)", page, session.TotalPages-1))
	}
	return session, nil
}

func (o *Orchestrator) readPage(ctx context.Context, session *models.ReadingSession, page int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TextTimeout)
	defer cancel()

	text, err := session.Source.PageText(ctx, page)
	switch {
	case err == nil:
		return text, nil
	case errors.Is(err, textsource.ErrPageNotFound):
		return "", failure.Wrap(failure.KindInvalidRequest, "read page", err)
	case errors.Is(err, context.Canceled):
		return "", err
	default:
		return "", failure.Wrap(failure.KindInternal, "read page", err)
	}
}

func (o *Orchestrator) warnOutOfOrder(session *models.ReadingSession, page int) {
	if last := session.Bible.Current().LastUpdatedPage; page < last {
		o.logger.Warn("Merging page out of order", "session_id", session.ID, "page", page, "last_updated_page", last)
	}
}

func (o *Orchestrator) advance(logger *slog.Logger, res *Result, stage Stage) {
	res.Trace = append(res.Trace, stage)
	logger.Debug("Generation stage", "stage", stage)
}

func (o *Orchestrator) fail(logger *slog.Logger, res *Result, err error) error {
	res.Trace = append(res.Trace, StageFailed)
	logger.Error("Panel generation failed", "kind", failure.KindOf(err), "trace", res.Trace, "err", err)
	return err
}

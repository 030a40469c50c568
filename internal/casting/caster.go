package casting

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rsamf/mink/internal/conf"
	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/httpclient"
	"github.com/rsamf/mink/internal/logger"
)

// Caster produces one note per configured note type.
type Caster struct {
	provider    Provider
	types       []conf.NoteType
	concurrency int
	limiter     *rate.Limiter
	timeout     time.Duration
	log         logger.Logger
	observe     func(noteType string, elapsed time.Duration, err error)
}

// CasterOption configures a Caster.
type CasterOption func(*Caster)

// WithObserver registers fn to be called after every provider request.
func WithObserver(fn func(noteType string, elapsed time.Duration, err error)) CasterOption {
	return func(c *Caster) { c.observe = fn }
}

// NewCaster creates a caster for the given settings. The note types are
// copied so later changes to settings do not leak in.
func NewCaster(settings *conf.CastingSettings, provider Provider, log logger.Logger, opts ...CasterOption) *Caster {
	concurrency := settings.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	limit := rate.Inf
	if settings.RequestsPerSecond > 0 {
		limit = rate.Limit(settings.RequestsPerSecond)
	}
	if log == nil {
		log = logger.Global().Module("casting")
	}

	c := &Caster{
		provider:    provider,
		types:       append([]conf.NoteType(nil), settings.Types...),
		concurrency: concurrency,
		limiter:     rate.NewLimiter(limit, concurrency),
		timeout:     settings.Timeout,
		log:         log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Types returns the configured note types.
func (c *Caster) Types() []conf.NoteType {
	return append([]conf.NoteType(nil), c.types...)
}

// Cast composes the meeting text once and requests every note type. A type
// that fails is skipped; its error is part of the joined error returned next
// to the notes that did succeed, which keep configuration order.
func (c *Caster) Cast(ctx context.Context, jobID string, transcript []datastore.TranscriptEvent, ocr []datastore.OnScreenEvent) ([]datastore.IntelligentNote, error) {
	log := c.log.With(logger.String("job_id", jobID), logger.String("provider", c.provider.Name()))
	text := MeetingText(transcript, ocr)
	log.Info("casting to intelligent notes",
		logger.Int("types", len(c.types)),
		logger.Int("text_bytes", len(text)))

	results := make([]*datastore.IntelligentNote, len(c.types))
	errs := make([]error, len(c.types))

	// Plain Group, not WithContext: one failing type must not cancel its
	// siblings.
	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for i, nt := range c.types {
		g.Go(func() error {
			content, err := c.castOne(ctx, nt, text)
			if err != nil {
				errs[i] = errors.New(err).
					Category(errors.CategoryLLM).
					JobContext(jobID).
					Context("note_type", nt.Title).
					Build()
				log.Error("note type failed", logger.String("note_type", nt.Title), logger.Error(err))
				return nil
			}
			results[i] = &datastore.IntelligentNote{Title: nt.Title, Content: content, JobID: jobID}
			log.Info("cast note type", logger.String("note_type", nt.Title), logger.Int("chars", len(content)))
			return nil
		})
	}
	_ = g.Wait()

	notes := make([]datastore.IntelligentNote, 0, len(results))
	for _, n := range results {
		if n != nil {
			notes = append(notes, *n)
		}
	}
	return notes, errors.Join(errs...)
}

func (c *Caster) castOne(ctx context.Context, nt conf.NoteType, text string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	content, err := c.provider.Complete(ctx, BuildPrompt(nt.Prompt, text), nt.MaxTokens)
	if c.observe != nil {
		c.observe(nt.Title, time.Since(start), err)
	}
	return content, err
}

// NewProvider builds the provider named in settings.
func NewProvider(settings *conf.CastingSettings, client *httpclient.Client) (Provider, error) {
	switch settings.Provider {
	case "anthropic", "":
		return NewAnthropicProvider(settings.BaseURL, settings.APIKey, settings.Model, client), nil
	default:
		return nil, errors.Newf("unsupported casting provider %q", settings.Provider).
			Category(errors.CategoryConfiguration).
			Build()
	}
}

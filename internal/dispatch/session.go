// Package dispatch runs a batch of Work Items against a rotating pool of
// credentials, one call at a time.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"promptforge/internal/cleanup"
	"promptforge/internal/discovery"
	"promptforge/internal/keypool"
	"promptforge/internal/logging"
	"promptforge/internal/prompt"
	"promptforge/internal/providers"
	"promptforge/internal/ratelimit"
	"promptforge/internal/utils"
)

// errNoModel is returned when every candidate model was missing for a credential.
var errNoModel = errors.New("no candidate model available")

// Result is the accepted output for one Work Item.
type Result struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	Label      string `json:"label"`
	Model      string `json:"model"`
	Credential string `json:"credential"` // fingerprint
	Attempts   int    `json:"attempts"`
}

// Session is the state of one batch run: the pool, the shared rotation
// cursor and everything learned about credentials along the way.
// A Session is not safe for concurrent use.
type Session struct {
	pool       *keypool.Pool
	cursor     int
	advances   int
	attempts   int
	provider   providers.Provider
	discoverer *discovery.Discoverer
	limiter    ratelimit.Limiter
	sink       logging.Sink
	sleep      SleepFunc
	opts       Options
	runID      string
	missing    map[string]struct{} // fingerprint|model known to be unavailable
	logger     *utils.Logger
	now        func() time.Time
}

// NewSession creates a Session over pool.
func NewSession(pool *keypool.Pool, deps Dependencies, opts Options) (*Session, error) {
	if pool == nil || pool.Len() == 0 {
		return nil, keypool.ErrNoCredentials
	}
	if deps.Provider == nil {
		return nil, errors.New("dispatch: provider is required")
	}
	if deps.Discoverer == nil {
		deps.Discoverer = discovery.New(deps.Provider, 0, 0)
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewNoopLimiter()
	}
	if deps.Sink == nil {
		deps.Sink = logging.NewNoopSink()
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepContext
	}
	if opts.RetryFactor < 1 {
		opts.RetryFactor = 1
	}

	runID := uuid.NewString()
	return &Session{
		pool:       pool,
		provider:   deps.Provider,
		discoverer: deps.Discoverer,
		limiter:    deps.Limiter,
		sink:       deps.Sink,
		sleep:      deps.Sleep,
		opts:       opts,
		runID:      runID,
		missing:    make(map[string]struct{}),
		logger:     utils.NewLogger("dispatch").With("run", runID[:8]),
		now:        time.Now,
	}, nil
}

// RunID identifies the batch in attempt records.
func (s *Session) RunID() string { return s.runID }

// Cursor is the pool index the next attempt will use.
func (s *Session) Cursor() int { return s.cursor }

// Attempts is the number of attempts made so far.
func (s *Session) Attempts() int { return s.attempts }

// Advances is the number of times the cursor moved.
func (s *Session) Advances() int { return s.advances }

// Pool returns the session's credential pool.
func (s *Session) Pool() *keypool.Pool { return s.pool }

// Run processes items in order. It stops at the first item that exhausts
// its attempt budget and returns the results gathered before it together
// with an *ExhaustedError. A done ctx stops the batch with ctx.Err().
func (s *Session) Run(ctx context.Context, items []prompt.WorkItem) ([]Result, error) {
	results := make([]Result, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res, err := s.dispatch(ctx, item)
		if err != nil {
			s.logger.Error("batch aborted", "item", item.Index+1, "of", len(items), "error", err)
			return results, err
		}
		results = append(results, res)
		s.logger.Info("item complete", "item", item.Index+1, "of", len(items), "credential", res.Credential, "attempts", res.Attempts)
	}
	return results, nil
}

// dispatch drives one Work Item through TRYING states until SUCCESS or EXHAUSTED.
func (s *Session) dispatch(ctx context.Context, item prompt.WorkItem) (Result, error) {
	budget := s.pool.Len() * s.opts.RetryFactor
	var last error
	made := 0

	for n := 1; n <= budget && s.pool.Len() > 0; n++ {
		made = n
		idx := s.cursor
		cred := s.pool.At(idx)

		text, model, err := s.attempt(ctx, item, n, cred)
		if err == nil {
			s.advance(idx, false)
			res := Result{
				Index:      item.Index,
				Text:       text,
				Label:      item.Label(),
				Model:      model,
				Credential: cred.Fingerprint(),
				Attempts:   n,
			}
			// A cancelled pause surfaces on the next item.
			_ = s.sleep(ctx, PacingDelay(s.opts.BaseDelay, s.opts.MinDelay, s.pool.Len()))
			return res, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		last = err
		cred.LastError = err.Error()

		removed := false
		switch providers.KindOf(err) {
		case providers.KindInvalidCredential:
			cred.Status = keypool.StatusInvalid
			s.pool.Remove(idx)
			removed = true
			s.logger.Warn("credential removed", "credential", cred.Fingerprint(), "remaining", s.pool.Len())
		case providers.KindRateLimited:
			cred.Status = keypool.StatusRateLimited
		default:
			cred.Status = keypool.StatusErrored
		}
		s.advance(idx, removed)

		if n < budget && s.pool.Len() > 0 {
			if err := s.sleep(ctx, s.opts.RetryDelay); err != nil {
				return Result{}, err
			}
		}
	}

	return Result{}, &ExhaustedError{Item: item.Index, Attempts: made, Last: last}
}

// advance moves the cursor once. After a removal the next credential has
// shifted into idx, so the cursor stays there.
func (s *Session) advance(idx int, removed bool) {
	s.advances++
	size := s.pool.Len()
	if size == 0 {
		s.cursor = 0
		return
	}
	if removed {
		s.cursor = idx % size
		return
	}
	s.cursor = (idx + 1) % size
}

// attempt is one turn on cred. Model-not-found moves to the next candidate
// model on the same credential without ending the turn.
func (s *Session) attempt(ctx context.Context, item prompt.WorkItem, n int, cred *keypool.Credential) (string, string, error) {
	s.attempts++
	fp := cred.Fingerprint()

	allowed, err := s.limiter.Allow(ctx, fp)
	if err != nil {
		s.logger.Warn("rate limiter unavailable, allowing call", "credential", fp, "error", err)
	} else if !allowed {
		err := &providers.Error{Kind: providers.KindRateLimited, Provider: s.provider.Type(), Message: "local request limit reached"}
		s.record(item, n, fp, "", time.Time{}, "", err)
		return "", "", err
	}

	var lastErr error = errNoModel
	lastModel := ""
	for _, model := range s.candidates(ctx, cred) {
		lastModel = model
		start := s.now()
		resp, err := s.provider.Generate(ctx, cred.Key, providers.GenerateRequest{
			Model:           model,
			Prompt:          item.Instruction(),
			JSON:            s.opts.ExpectJSON,
			MaxOutputTokens: s.opts.MaxOutputTokens,
		})
		if err != nil {
			s.record(item, n, fp, model, start, "", err)
			if providers.KindOf(err) == providers.KindModelNotFound {
				s.missing[fp+"|"+model] = struct{}{}
				lastErr = err
				continue
			}
			return "", model, err
		}

		text, err := s.clean(resp.Text)
		s.record(item, n, fp, model, start, text, err)
		if err != nil {
			return "", model, err
		}

		cred.Status = keypool.StatusValid
		cred.Model = model
		cred.LastUsed = s.now()
		cred.LastError = ""
		return text, model, nil
	}

	return "", lastModel, &providers.Error{
		Kind:     providers.KindUnknown,
		Provider: s.provider.Type(),
		Message:  errNoModel.Error(),
		Err:      lastErr,
	}
}

// candidates lists the models to try on cred, skipping ones already found missing.
func (s *Session) candidates(ctx context.Context, cred *keypool.Credential) []string {
	fp := cred.Fingerprint()
	var out []string
	seen := make(map[string]struct{})
	add := func(m string) {
		if m == "" {
			return
		}
		if _, ok := seen[m]; ok {
			return
		}
		seen[m] = struct{}{}
		if _, gone := s.missing[fp+"|"+m]; gone {
			return
		}
		out = append(out, m)
	}

	add(cred.Model)
	for _, m := range s.discoverer.Candidates(ctx, cred.Key) {
		add(m)
	}
	return out
}

func (s *Session) clean(raw string) (string, error) {
	var text string
	switch {
	case !s.opts.ExpectJSON:
		text = cleanup.Clean(raw)
	case s.opts.Lenient:
		text = cleanup.Lenient(raw, s.opts.ResponseField)
	default:
		v, err := cleanup.ExtractField(raw, s.opts.ResponseField)
		if err != nil {
			return "", err
		}
		text = v
	}
	if text == "" {
		return "", fmt.Errorf("empty output: %w", cleanup.ErrUnparseable)
	}
	return text, nil
}

func (s *Session) record(item prompt.WorkItem, n int, fp, model string, start time.Time, text string, err error) {
	rec := &logging.AttemptRecord{
		Timestamp:   s.now(),
		RunID:       s.runID,
		Item:        item.Index,
		Attempt:     n,
		Credential:  fp,
		Provider:    s.provider.Type(),
		Model:       model,
		Outcome:     outcome(err),
		ResultChars: len(text),
	}
	if !start.IsZero() {
		rec.LatencyMs = s.now().Sub(start).Milliseconds()
	}
	if err != nil {
		rec.Error = err.Error()
		s.logger.Debug("attempt failed", "item", item.Index+1, "attempt", n, "credential", fp, "model", model, "outcome", rec.Outcome)
	}
	if err := s.sink.Enqueue(rec); err != nil {
		s.logger.Warn("attempt record dropped", "error", err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, cleanup.ErrUnparseable):
		return "unparseable"
	default:
		return providers.KindOf(err).String()
	}
}

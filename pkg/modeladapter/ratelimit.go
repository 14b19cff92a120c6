package modeladapter

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/germanamz/egbert/pkg/chats/chat"
	"github.com/germanamz/egbert/pkg/stream"
	"github.com/germanamz/egbert/pkg/tools/toolbox"
)

var _ Streamer = (*RateLimitedStreamer)(nil)

type tokenEntry struct {
	timestamp    time.Time
	request      bool
	inputTokens  int
	outputTokens int
}

// RateLimitedStreamer wraps a Streamer with proactive TPM/RPM throttling and
// reactive 429 retry with exponential backoff and jitter. Only opening a
// stream is retried; a failure once frames are flowing is returned as is.
// Input tokens are estimated when a stream opens; output tokens are taken
// from the inner streamer's usage tracker when the stream closes.
type RateLimitedStreamer struct {
	inner      Streamer
	estimator  TokenEstimator
	mu         sync.Mutex
	window     []tokenEntry
	inputTPM   int           // input tokens-per-minute limit (0 = no limit)
	outputTPM  int           // output tokens-per-minute limit (0 = no limit)
	rpm        int           // requests-per-minute limit (0 = no limit)
	maxRetries int           // max retries on 429
	baseDelay  time.Duration // initial backoff delay

	// nowFunc is used for testing; defaults to time.Now.
	nowFunc func() time.Time
	// sleepFunc is used for testing; defaults to a context-aware sleep.
	sleepFunc func(ctx context.Context, d time.Duration) error
	// randFunc returns a random float64 in [0,1); used for jitter.
	randFunc func() float64
}

// RateLimitOpts configures the RateLimitedStreamer.
type RateLimitOpts struct {
	InputTPM   int           // Input tokens per minute (0 = no limit).
	OutputTPM  int           // Output tokens per minute (0 = no limit).
	RPM        int           // Requests per minute (0 = no limit).
	MaxRetries int           // Max retries on 429 (default 3).
	BaseDelay  time.Duration // Initial backoff delay (default 1s).
}

// NewRateLimitedStreamer wraps a Streamer with rate limiting.
func NewRateLimitedStreamer(inner Streamer, opts RateLimitOpts) *RateLimitedStreamer {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}

	return &RateLimitedStreamer{
		inner:      inner,
		inputTPM:   opts.InputTPM,
		outputTPM:  opts.OutputTPM,
		rpm:        opts.RPM,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		nowFunc:    time.Now,
		sleepFunc:  contextSleep,
		randFunc:   rand.Float64,
	}
}

// SetNowFunc overrides the time source (for testing).
func (r *RateLimitedStreamer) SetNowFunc(fn func() time.Time) { r.nowFunc = fn }

// SetSleepFunc overrides the sleep function (for testing).
func (r *RateLimitedStreamer) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	r.sleepFunc = fn
}

// SetRandFunc overrides the random number generator (for testing).
func (r *RateLimitedStreamer) SetRandFunc(fn func() float64) { r.randFunc = fn }

func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// pruneWindow removes entries older than 1 minute. Must be called with mu held.
// The surviving entries are copied so the old backing array can be released.
func (r *RateLimitedStreamer) pruneWindow(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(r.window) && !r.window[i].timestamp.After(cutoff) {
		i++
	}
	if i > 0 {
		r.window = append(r.window[:0:0], r.window[i:]...)
	}
}

// windowTotals must be called with mu held.
func (r *RateLimitedStreamer) windowTotals() (inputTotal, outputTotal, requests int) {
	for _, e := range r.window {
		inputTotal += e.inputTokens
		outputTotal += e.outputTokens
		if e.request {
			requests++
		}
	}
	return inputTotal, outputTotal, requests
}

// waitForCapacity blocks until there is capacity in both TPM and RPM windows.
func (r *RateLimitedStreamer) waitForCapacity(ctx context.Context) error {
	if r.inputTPM <= 0 && r.outputTPM <= 0 && r.rpm <= 0 {
		return nil
	}

	for {
		r.mu.Lock()
		now := r.nowFunc()
		r.pruneWindow(now)
		inputTotal, outputTotal, requests := r.windowTotals()

		inputOK := r.inputTPM <= 0 || inputTotal < r.inputTPM
		outputOK := r.outputTPM <= 0 || outputTotal < r.outputTPM
		rpmOK := r.rpm <= 0 || requests < r.rpm

		if inputOK && outputOK && rpmOK {
			r.mu.Unlock()
			return nil
		}

		var waitDur time.Duration
		if len(r.window) > 0 {
			waitDur = max(r.window[0].timestamp.Add(time.Minute).Sub(now), 0)
		}
		r.mu.Unlock()

		const minWait = 10 * time.Millisecond
		if waitDur < minWait {
			waitDur = minWait
		}

		if err := r.sleepFunc(ctx, waitDur); err != nil {
			return err
		}
	}
}

func (r *RateLimitedStreamer) record(e tokenEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.timestamp = r.nowFunc()
	r.window = append(r.window, e)
}

// jitter applies ±25% random jitter to a duration.
func (r *RateLimitedStreamer) jitter(d time.Duration) time.Duration {
	factor := 0.75 + r.randFunc()*0.5 //nolint:mnd // jitter range: ±25%
	return time.Duration(float64(d) * factor)
}

// Stream implements Streamer with proactive throttling and 429 retry.
func (r *RateLimitedStreamer) Stream(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (FrameStream, error) {
	if err := r.waitForCapacity(ctx); err != nil {
		return nil, err
	}
	if err := r.adaptFromServerInfo(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := range r.maxRetries + 1 {
		var beforeOut int
		if ur, ok := r.inner.(UsageReporter); ok {
			beforeOut = ur.UsageTracker().Total().OutputTokens
		}

		fs, err := r.inner.Stream(ctx, c, tools)
		if err == nil {
			r.record(tokenEntry{request: true, inputTokens: r.estimator.EstimateTotal(c, tools)})
			return &meteredStream{FrameStream: fs, owner: r, beforeOut: beforeOut}, nil
		}

		var rle *RateLimitError
		if !errors.As(err, &rle) {
			return nil, err
		}

		lastErr = err

		if attempt >= r.maxRetries {
			break
		}

		backoff := r.jitter(max(
			r.baseDelay*time.Duration(math.Pow(2, float64(attempt))), //nolint:mnd // exponential backoff formula
			rle.RetryAfter,
		))

		if err := r.sleepFunc(ctx, backoff); err != nil {
			return nil, err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("rate limit: exhausted retries without opening a stream")
	}

	return nil, lastErr
}

// adaptFromServerInfo sleeps until the provider's reset time when the last
// response reported near-zero remaining capacity.
func (r *RateLimitedStreamer) adaptFromServerInfo(ctx context.Context) error {
	reporter, ok := r.inner.(RateLimitInfoReporter)
	if !ok {
		return nil
	}

	info := reporter.LastRateLimitInfo()
	if info == nil {
		return nil
	}

	now := r.nowFunc()
	var sleepUntil time.Time

	if info.RemainingRequests <= 1 && !info.RequestsReset.IsZero() && info.RequestsReset.After(now) {
		sleepUntil = info.RequestsReset
	}

	if info.RemainingTokens <= 1 && !info.TokensReset.IsZero() && info.TokensReset.After(now) {
		if info.TokensReset.After(sleepUntil) {
			sleepUntil = info.TokensReset
		}
	}

	if sleepUntil.IsZero() {
		return nil
	}

	return r.sleepFunc(ctx, sleepUntil.Sub(now))
}

// meteredStream records output token usage into the owner's window on Close.
type meteredStream struct {
	FrameStream
	owner     *RateLimitedStreamer
	beforeOut int
	closeOnce sync.Once
}

func (m *meteredStream) Next() (stream.Frame, error) {
	return m.FrameStream.Next()
}

func (m *meteredStream) Close() error {
	err := m.FrameStream.Close()
	m.closeOnce.Do(func() {
		if ur, ok := m.owner.inner.(UsageReporter); ok {
			if out := ur.UsageTracker().Total().OutputTokens - m.beforeOut; out > 0 {
				m.owner.record(tokenEntry{outputTokens: out})
			}
		}
	})
	return err
}

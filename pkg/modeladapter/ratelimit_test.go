package modeladapter_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/egbert/pkg/chats/chat"
	"github.com/germanamz/egbert/pkg/chats/message"
	"github.com/germanamz/egbert/pkg/chats/role"
	"github.com/germanamz/egbert/pkg/modeladapter"
	"github.com/germanamz/egbert/pkg/modeladapter/usage"
	"github.com/germanamz/egbert/pkg/stream"
	"github.com/germanamz/egbert/pkg/tools/toolbox"
)

// meteredStreamer is a Streamer test double that also implements
// UsageReporter and RateLimitInfoReporter. Each opened stream adds
// outputTokens to the tracker when closed.
type meteredStreamer struct {
	tracker       usage.Tracker
	outputTokens  int
	open          func(ctx context.Context) error
	rateLimitInfo *modeladapter.RateLimitInfo
}

func (f *meteredStreamer) Stream(ctx context.Context, _ *chat.Chat, _ []toolbox.Tool) (modeladapter.FrameStream, error) {
	if f.open != nil {
		if err := f.open(ctx); err != nil {
			return nil, err
		}
	}
	return &closingStream{onClose: func() {
		f.tracker.Add(usage.TokenCount{OutputTokens: f.outputTokens})
	}}, nil
}

func (f *meteredStreamer) UsageTracker() *usage.Tracker                   { return &f.tracker }
func (f *meteredStreamer) ModelMaxTokens() int                            { return 0 }
func (f *meteredStreamer) LastRateLimitInfo() *modeladapter.RateLimitInfo { return f.rateLimitInfo }

type closingStream struct {
	onClose func()
}

func (s *closingStream) Next() (stream.Frame, error) {
	return stream.Frame{FinishReason: "stop"}, nil
}

func (s *closingStream) Close() error {
	s.onClose()
	return nil
}

func longChat() *chat.Chat {
	return chat.New(message.NewText("alice", role.User, "a message long enough to cost a few tokens"))
}

func openAndClose(t *testing.T, rl *modeladapter.RateLimitedStreamer, c *chat.Chat) {
	t.Helper()
	fs, err := rl.Stream(context.Background(), c, nil)
	require.NoError(t, err)
	require.NoError(t, fs.Close())
}

func TestRateLimitedStreamer_Passthrough(t *testing.T) {
	rl := modeladapter.NewRateLimitedStreamer(&meteredStreamer{}, modeladapter.RateLimitOpts{})

	fs, err := rl.Stream(context.Background(), chat.New(), nil)
	require.NoError(t, err)

	f, err := fs.Next()
	require.NoError(t, err)
	assert.Equal(t, "stop", f.FinishReason)
	require.NoError(t, fs.Close())
	require.NoError(t, fs.Close())
}

func TestRateLimitedStreamer_RetryOn429(t *testing.T) {
	var calls atomic.Int32
	fs := &meteredStreamer{open: func(context.Context) error {
		if calls.Add(1) <= 2 {
			return &modeladapter.RateLimitError{Body: "slow down"}
		}
		return nil
	}}

	sleeps := 0
	rl := modeladapter.NewRateLimitedStreamer(fs, modeladapter.RateLimitOpts{MaxRetries: 3, BaseDelay: time.Millisecond})
	rl.SetSleepFunc(func(context.Context, time.Duration) error {
		sleeps++
		return nil
	})
	rl.SetRandFunc(func() float64 { return 0.5 })

	openAndClose(t, rl, chat.New())
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2, sleeps)
}

func TestRateLimitedStreamer_MaxRetriesExhausted(t *testing.T) {
	fs := &meteredStreamer{open: func(context.Context) error {
		return &modeladapter.RateLimitError{Body: "overloaded"}
	}}

	rl := modeladapter.NewRateLimitedStreamer(fs, modeladapter.RateLimitOpts{MaxRetries: 2, BaseDelay: time.Millisecond})
	rl.SetSleepFunc(func(context.Context, time.Duration) error { return nil })

	_, err := rl.Stream(context.Background(), chat.New(), nil)

	var rle *modeladapter.RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "overloaded", rle.Body)
}

func TestRateLimitedStreamer_NonRateLimitErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	fs := &meteredStreamer{open: func(context.Context) error {
		calls.Add(1)
		return errors.New("connection refused")
	}}

	rl := modeladapter.NewRateLimitedStreamer(fs, modeladapter.RateLimitOpts{MaxRetries: 3})

	_, err := rl.Stream(context.Background(), chat.New(), nil)
	assert.EqualError(t, err, "connection refused")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRateLimitedStreamer_ContextCancellation(t *testing.T) {
	fs := &meteredStreamer{open: func(context.Context) error {
		return &modeladapter.RateLimitError{Body: "wait"}
	}}

	ctx, cancel := context.WithCancel(context.Background())
	rl := modeladapter.NewRateLimitedStreamer(fs, modeladapter.RateLimitOpts{MaxRetries: 5, BaseDelay: time.Millisecond})
	rl.SetSleepFunc(func(context.Context, time.Duration) error {
		cancel()
		return ctx.Err()
	})

	_, err := rl.Stream(ctx, chat.New(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimitedStreamer_RetryAfterUsed(t *testing.T) {
	var calls atomic.Int32
	fs := &meteredStreamer{open: func(context.Context) error {
		if calls.Add(1) == 1 {
			return &modeladapter.RateLimitError{RetryAfter: 5 * time.Second}
		}
		return nil
	}}

	var slept time.Duration
	rl := modeladapter.NewRateLimitedStreamer(fs, modeladapter.RateLimitOpts{BaseDelay: time.Millisecond})
	rl.SetRandFunc(func() float64 { return 0.5 })
	rl.SetSleepFunc(func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	})

	openAndClose(t, rl, chat.New())
	assert.Equal(t, 5*time.Second, slept)
}

func TestRateLimitedStreamer_InputTPMThrottling(t *testing.T) {
	currentTime := time.Now()
	sleepCalled := false

	rl := modeladapter.NewRateLimitedStreamer(&meteredStreamer{}, modeladapter.RateLimitOpts{InputTPM: 5})
	rl.SetNowFunc(func() time.Time { return currentTime })
	rl.SetSleepFunc(func(_ context.Context, d time.Duration) error {
		sleepCalled = true
		currentTime = currentTime.Add(d)
		return nil
	})

	openAndClose(t, rl, longChat())
	assert.False(t, sleepCalled)

	openAndClose(t, rl, longChat())
	assert.True(t, sleepCalled)
}

func TestRateLimitedStreamer_OutputTPMThrottling(t *testing.T) {
	currentTime := time.Now()
	sleepCalled := false

	rl := modeladapter.NewRateLimitedStreamer(&meteredStreamer{outputTokens: 80}, modeladapter.RateLimitOpts{OutputTPM: 80})
	rl.SetNowFunc(func() time.Time { return currentTime })
	rl.SetSleepFunc(func(_ context.Context, d time.Duration) error {
		sleepCalled = true
		currentTime = currentTime.Add(d)
		return nil
	})

	openAndClose(t, rl, chat.New())
	assert.False(t, sleepCalled)

	openAndClose(t, rl, chat.New())
	assert.True(t, sleepCalled)
}

func TestRateLimitedStreamer_RPMThrottling(t *testing.T) {
	currentTime := time.Now()
	var sleeps int

	rl := modeladapter.NewRateLimitedStreamer(&meteredStreamer{outputTokens: 10}, modeladapter.RateLimitOpts{RPM: 2})
	rl.SetNowFunc(func() time.Time { return currentTime })
	rl.SetSleepFunc(func(_ context.Context, d time.Duration) error {
		sleeps++
		currentTime = currentTime.Add(d)
		return nil
	})

	openAndClose(t, rl, chat.New())
	openAndClose(t, rl, chat.New())
	assert.Zero(t, sleeps, "output-only entries do not count as requests")

	openAndClose(t, rl, chat.New())
	assert.Positive(t, sleeps)
}

func TestRateLimitedStreamer_AdaptiveThrottle(t *testing.T) {
	now := time.Now()
	fs := &meteredStreamer{rateLimitInfo: &modeladapter.RateLimitInfo{
		RemainingRequests: 0,
		RequestsReset:     now.Add(3 * time.Second),
		RemainingTokens:   1000,
	}}

	var slept time.Duration
	rl := modeladapter.NewRateLimitedStreamer(fs, modeladapter.RateLimitOpts{})
	rl.SetNowFunc(func() time.Time { return now })
	rl.SetSleepFunc(func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	})

	openAndClose(t, rl, chat.New())
	assert.Equal(t, 3*time.Second, slept)
}

func TestRateLimitedStreamer_AdaptiveThrottle_NotTriggered(t *testing.T) {
	fs := &meteredStreamer{rateLimitInfo: &modeladapter.RateLimitInfo{RemainingRequests: 50, RemainingTokens: 5000}}

	rl := modeladapter.NewRateLimitedStreamer(fs, modeladapter.RateLimitOpts{})
	rl.SetSleepFunc(func(context.Context, time.Duration) error {
		t.Fatal("should not sleep")
		return nil
	})

	openAndClose(t, rl, chat.New())
}

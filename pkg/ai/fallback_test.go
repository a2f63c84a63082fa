package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name   string
	reply  string
	err    error
	chunks []string
	// streamErr is returned after chunks were emitted.
	streamErr error
	delay     time.Duration

	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProvider) hit() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	f.hit()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeProvider) Stream(ctx context.Context, prompt string, opts Options, onChunk func(string) error) error {
	f.hit()
	if f.err != nil {
		return f.err
	}
	for _, c := range f.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return f.streamErr
}

func TestCompleteFallsThroughInOrder(t *testing.T) {
	primary := &fakeProvider{name: "gemini/a", err: errors.New("429 quota")}
	secondary := &fakeProvider{name: "huggingface/b", reply: "from secondary"}
	c := NewCascade(time.Second, primary, secondary)

	out, name, err := c.Complete(context.Background(), "p", Options{})
	require.NoError(t, err)
	assert.Equal(t, "from secondary", out)
	assert.Equal(t, "huggingface/b", name)
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 1, secondary.Calls())
}

func TestCompleteRemembersLastGood(t *testing.T) {
	primary := &fakeProvider{name: "a", err: errors.New("down")}
	secondary := &fakeProvider{name: "b", reply: "ok"}
	c := NewCascade(time.Second, primary, secondary)

	_, _, err := c.Complete(context.Background(), "p", Options{})
	require.NoError(t, err)
	assert.Equal(t, "b", c.LastGood())

	_, name, err := c.Complete(context.Background(), "p", Options{})
	require.NoError(t, err)
	assert.Equal(t, "b", name)
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 2, secondary.Calls())
}

func TestCompleteRejectedAnswerTriesNextStrategy(t *testing.T) {
	primary := &fakeProvider{name: "a", reply: "Sure! Here are some replies..."}
	secondary := &fakeProvider{name: "b", reply: `{"replies":["A"]}`}
	c := NewCascade(time.Second, primary, secondary)

	opts := Options{JSON: true, Validate: func(text string) error {
		var v struct{ Replies []string }
		return DecodeJSON(text, &v)
	}}
	out, name, err := c.Complete(context.Background(), "p", opts)
	require.NoError(t, err)
	assert.Equal(t, "b", name)
	assert.Equal(t, `{"replies":["A"]}`, out)
	assert.Equal(t, "b", c.LastGood())

	_, _, err = c.Complete(context.Background(), "p", opts)
	require.NoError(t, err)
	assert.Equal(t, 1, primary.Calls())
}

func TestCompleteAllAnswersRejected(t *testing.T) {
	a := &fakeProvider{name: "a", reply: "prose"}
	b := &fakeProvider{name: "b", reply: "more prose"}
	c := NewCascade(time.Second, a, b)

	_, _, err := c.Complete(context.Background(), "p", Options{Validate: func(string) error { return errors.New("not json") }})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, "", c.LastGood())
}

func TestCompleteExhausted(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("x")}
	b := &fakeProvider{name: "b", err: errors.New("y")}
	c := NewCascade(time.Second, a, b)

	_, _, err := c.Complete(context.Background(), "p", Options{})
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestCompleteNoProvider(t *testing.T) {
	c := NewCascade(time.Second)
	_, _, err := c.Complete(context.Background(), "p", Options{})
	assert.ErrorIs(t, err, ErrNoProvider)
	assert.False(t, c.Enabled())
}

func TestCompleteTimeoutMovesOn(t *testing.T) {
	slow := &fakeProvider{name: "slow", reply: "late", delay: time.Second}
	fast := &fakeProvider{name: "fast", reply: "quick"}
	c := NewCascade(20*time.Millisecond, slow, fast)

	out, _, err := c.Complete(context.Background(), "p", Options{})
	require.NoError(t, err)
	assert.Equal(t, "quick", out)
}

func TestBreakerSkipsFailingStrategy(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("x")}
	b := &fakeProvider{name: "b", err: errors.New("y")}
	c := NewCascade(time.Second, a, b)

	for i := 0; i < 4; i++ {
		_, _, _ = c.Complete(context.Background(), "p", Options{})
	}
	assert.Equal(t, 3, a.Calls())
	assert.Equal(t, 3, b.Calls())
}

func TestStreamSkipsStrategyFailingBeforeOutput(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("refused")}
	b := &fakeProvider{name: "b", chunks: []string{"Hel", "lo"}}
	c := NewCascade(time.Second, a, b)

	var sb strings.Builder
	name, err := c.Stream(context.Background(), "p", Options{}, func(s string) error {
		sb.WriteString(s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "b", name)
	assert.Equal(t, "Hello", sb.String())
}

func TestStreamPartialFailureStops(t *testing.T) {
	a := &fakeProvider{name: "a", chunks: []string{"Hel"}, streamErr: errors.New("reset")}
	b := &fakeProvider{name: "b", chunks: []string{"other"}}
	c := NewCascade(time.Second, a, b)

	var got []string
	_, err := c.Stream(context.Background(), "p", Options{}, func(s string) error {
		got = append(got, s)
		return nil
	})
	assert.ErrorIs(t, err, ErrPartialStream)
	assert.Equal(t, []string{"Hel"}, got)
	assert.Equal(t, 0, b.Calls())
}

func TestStreamEmptyCountsAsFailure(t *testing.T) {
	a := &fakeProvider{name: "a"}
	c := NewCascade(time.Second, a)

	_, err := c.Stream(context.Background(), "p", Options{}, func(string) error { return nil })
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, isQuotaError(errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED")))
	assert.False(t, isQuotaError(errors.New("bad request")))
	assert.True(t, isConnectionError(errors.New("dial tcp: connection refused")))
	assert.True(t, isConnectionError(context.DeadlineExceeded))
	assert.False(t, isConnectionError(nil))
}

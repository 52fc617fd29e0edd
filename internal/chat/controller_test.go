package chat

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerSendSuccess(t *testing.T) {
	var got *Payload
	c := NewController(transportFunc(func(ctx context.Context, endpoint, token string, p *Payload) ([]byte, error) {
		got = p
		assert.Equal(t, "http://answers.invalid/webhook", endpoint)
		assert.Equal(t, "secret", token)
		return []byte(travelAnswer), nil
	}))

	cfg := testConfig()
	cfg.AuthToken = "secret"
	answer, err := c.Send(context.Background(), cfg, "user-1", "conv-1", "I want a travel card", nil)
	require.NoError(t, err)

	assert.Equal(t, "Here are options...", answer.Text)
	assert.Equal(t, []string{"Do you travel often?"}, answer.SuggestedQuestions)
	assert.False(t, c.IsBusy())
	require.NotNil(t, got)
	assert.Equal(t, "I want a travel card", got.Query)
}

func TestControllerCancelWhenIdleIsNoop(t *testing.T) {
	c := NewController(respondAfter(0, travelAnswer))
	c.Cancel()
	c.Cancel()
	assert.False(t, c.IsBusy())
}

func TestControllerRejectsConcurrentSend(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	c := NewController(transportFunc(func(ctx context.Context, _, _ string, _ *Payload) ([]byte, error) {
		close(started)
		<-release
		return []byte(travelAnswer), nil
	}))

	done := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), testConfig(), "u", "conv-1", "first", nil)
		done <- err
	}()

	<-started
	assert.True(t, c.IsBusy())

	_, err := c.Send(context.Background(), testConfig(), "u", "conv-1", "second", nil)
	var concurrent *ConcurrentRequestError
	require.True(t, errors.As(err, &concurrent))
	assert.Equal(t, "conv-1", concurrent.ConversationID)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, c.IsBusy())
}

func TestControllerTimeout(t *testing.T) {
	c := NewController(respondAfter(500*time.Millisecond, travelAnswer))
	cfg := testConfig()
	cfg.RequestTimeout = 100 * time.Millisecond

	start := time.Now()
	_, err := c.Send(context.Background(), cfg, "u", "conv-1", "slow", nil)

	var timeout *TimeoutError
	require.True(t, errors.As(err, &timeout), "got %v", err)
	assert.Equal(t, 100*time.Millisecond, timeout.Timeout)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.False(t, c.IsBusy())
	assert.True(t, IsRetryable(err))
}

func TestControllerCancelDiscardsLateSuccess(t *testing.T) {
	c := NewController(respondIgnoringCancel(50*time.Millisecond, travelAnswer))

	done := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), testConfig(), "u", "conv-1", "q", nil)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.True(t, c.IsBusy())
	c.Cancel()
	assert.False(t, c.IsBusy(), "cancel releases busy immediately")

	err := <-done
	var cancelled *CancelledError
	require.True(t, errors.As(err, &cancelled), "got %v", err)
	assert.False(t, IsRetryable(err))
}

func TestControllerSendAfterCancelWhileOldRequestSettles(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	c := NewController(transportFunc(func(ctx context.Context, _, _ string, _ *Payload) ([]byte, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			time.Sleep(80 * time.Millisecond)
		}
		return []byte(`[{"html": "second"}]`), nil
	}))

	first := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), testConfig(), "u", "conv-1", "one", nil)
		first <- err
	}()
	time.Sleep(10 * time.Millisecond)
	c.Cancel()

	answer, err := c.Send(context.Background(), testConfig(), "u", "conv-1", "two", nil)
	require.NoError(t, err)
	assert.Equal(t, "second", answer.Text)

	var cancelled *CancelledError
	assert.True(t, errors.As(<-first, &cancelled))
	assert.False(t, c.IsBusy())
}

func TestControllerParentContextCancelled(t *testing.T) {
	c := NewController(respondAfter(time.Second, travelAnswer))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.Send(ctx, testConfig(), "u", "conv-1", "q", nil)
	var cancelled *CancelledError
	assert.True(t, errors.As(err, &cancelled), "got %v", err)
}

func TestControllerErrors(t *testing.T) {
	tests := []struct {
		name    string
		respond transportFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "transport error is passed through",
			respond: func(context.Context, string, string, *Payload) ([]byte, error) {
				return nil, &TransportError{StatusCode: http.StatusBadGateway, Message: "bad gateway"}
			},
			check: func(t *testing.T, err error) {
				var te *TransportError
				require.True(t, errors.As(err, &te))
				assert.Equal(t, http.StatusBadGateway, te.StatusCode)
			},
		},
		{
			name: "plain error becomes transport error",
			respond: func(context.Context, string, string, *Payload) ([]byte, error) {
				return nil, errors.New("connection refused")
			},
			check: func(t *testing.T, err error) {
				var te *TransportError
				require.True(t, errors.As(err, &te))
				assert.Equal(t, 0, te.StatusCode)
				assert.Contains(t, te.Error(), "connection refused")
			},
		},
		{
			name:    "object body is malformed",
			respond: respondAfter(0, `{}`),
			check: func(t *testing.T, err error) {
				var malformed *MalformedResponseError
				require.True(t, errors.As(err, &malformed))
				assert.False(t, IsRetryable(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(tt.respond)
			_, err := c.Send(context.Background(), testConfig(), "u", "conv-1", "q", nil)
			require.Error(t, err)
			tt.check(t, err)
			assert.False(t, c.IsBusy())
		})
	}
}

func TestConfigNormalized(t *testing.T) {
	cfg := Config{HistoryWindow: 0, RequestTimeout: 0}.normalized()
	assert.Equal(t, 1, cfg.HistoryWindow)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)

	cfg = Config{HistoryWindow: 7, RequestTimeout: time.Second}.normalized()
	assert.Equal(t, 7, cfg.HistoryWindow)
	assert.Equal(t, time.Second, cfg.RequestTimeout)
}

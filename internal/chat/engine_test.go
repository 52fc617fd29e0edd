package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, store *memoryStore, transport Transport, opts ...Option) *Engine {
	t.Helper()
	e := NewEngine(store, transport, "user-1", opts...)
	require.NoError(t, e.Activate(context.Background(), Conversation{ID: "conv1", Title: DefaultTitle}))
	return e
}

func contents(turns []Turn) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, string(t.Role)+":"+t.Content)
	}
	return out
}

func TestEngineTravelCardScenario(t *testing.T) {
	store := newMemoryStore()
	e := newTestEngine(t, store, respondAfter(0, travelAnswer))

	answer, err := e.Submit(context.Background(), testConfig(), "I want a travel card")
	require.NoError(t, err)

	assert.Equal(t, "Here are options...", answer.Text)
	assert.Equal(t, []string{"Do you travel often?"}, answer.SuggestedQuestions)
	assert.Equal(t, RoleAssistant, answer.Turn.Role)

	assert.Equal(t, []string{"user:I want a travel card", "assistant:Here are options..."}, contents(e.Transcript()))
	assert.Equal(t, "I want a travel card", e.Conversation().Title)
	assert.Equal(t, "I want a travel card", store.titles["conv1"])
	assert.Equal(t, 1, store.touched["conv1"])

	// both turns are confirmed by the store
	persisted, _ := store.ListTurns(context.Background(), "user-1", "conv1")
	assert.Equal(t, ids(persisted), ids(e.Transcript()))
	for _, turn := range e.Transcript() {
		assert.False(t, turn.Pending)
	}
	assert.False(t, e.IsBusy())
}

func TestEngineSendsPriorHistoryOnly(t *testing.T) {
	var payloads []*Payload
	transport := transportFunc(func(ctx context.Context, _, _ string, p *Payload) ([]byte, error) {
		payloads = append(payloads, p)
		return []byte(`[{"html": "answer"}]`), nil
	})
	e := newTestEngine(t, newMemoryStore(), transport)

	_, err := e.Submit(context.Background(), testConfig(), "one")
	require.NoError(t, err)
	_, err = e.Submit(context.Background(), testConfig(), "two")
	require.NoError(t, err)

	require.Len(t, payloads, 2)
	assert.Empty(t, payloads[0].ConversationHistory)
	assert.Len(t, payloads[0].Messages, 2)

	// the new turn is only carried as the final message, not as history
	require.Len(t, payloads[1].ConversationHistory, 2)
	assert.Equal(t, "one", payloads[1].ConversationHistory[0].Content)
	assert.Equal(t, "answer", payloads[1].ConversationHistory[1].Content)
	assert.Len(t, payloads[1].Messages, 4)
	assert.Equal(t, "two", payloads[1].Messages[3].Content)
}

func TestEngineTitleDerivedOnlyOnce(t *testing.T) {
	store := newMemoryStore()
	e := newTestEngine(t, store, respondAfter(0, `[{"html": "a"}]`))

	_, err := e.Submit(context.Background(), testConfig(), strings.Repeat("x", 70))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 50)+"...", e.Conversation().Title)

	require.NoError(t, e.Rename(context.Background(), DefaultTitle))
	_, err = e.Submit(context.Background(), testConfig(), "second question")
	require.NoError(t, err)

	assert.Equal(t, DefaultTitle, e.Conversation().Title)
	assert.Equal(t, DefaultTitle, store.titles["conv1"])
}

func TestEngineTimeoutKeepsUserTurn(t *testing.T) {
	store := newMemoryStore()
	e := newTestEngine(t, store, respondAfter(500*time.Millisecond, travelAnswer))
	cfg := testConfig()
	cfg.RequestTimeout = 100 * time.Millisecond

	_, err := e.Submit(context.Background(), cfg, "slow question")

	var timeout *TimeoutError
	require.True(t, errors.As(err, &timeout), "got %v", err)
	assert.Equal(t, []string{"user:slow question"}, contents(e.Transcript()))
	assert.Equal(t, 0, store.touched["conv1"])
	assert.False(t, e.IsBusy())
}

func TestEngineMalformedResponseKeepsUserTurn(t *testing.T) {
	e := newTestEngine(t, newMemoryStore(), respondAfter(0, `{}`))

	_, err := e.Submit(context.Background(), testConfig(), "hello")

	var malformed *MalformedResponseError
	require.True(t, errors.As(err, &malformed), "got %v", err)
	assert.Equal(t, []string{"user:hello"}, contents(e.Transcript()))
}

func TestEngineCancelDiscardsLateAnswer(t *testing.T) {
	store := newMemoryStore()
	e := newTestEngine(t, store, respondIgnoringCancel(50*time.Millisecond, travelAnswer))

	done := make(chan error, 1)
	go func() {
		_, err := e.Submit(context.Background(), testConfig(), "question")
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	e.Cancel()
	assert.False(t, e.IsBusy())

	err := <-done
	var cancelled *CancelledError
	require.True(t, errors.As(err, &cancelled), "got %v", err)

	// give a late resolution every chance to sneak in
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []string{"user:question"}, contents(e.Transcript()))
	persisted, _ := store.ListTurns(context.Background(), "user-1", "conv1")
	assert.Len(t, persisted, 1)
}

func TestEngineConcurrentSubmitLeavesTranscriptAlone(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	e := newTestEngine(t, newMemoryStore(), transportFunc(func(ctx context.Context, _, _ string, _ *Payload) ([]byte, error) {
		close(started)
		<-release
		return []byte(`[{"html": "done"}]`), nil
	}))

	done := make(chan error, 1)
	go func() {
		_, err := e.Submit(context.Background(), testConfig(), "first")
		done <- err
	}()
	<-started

	before := contents(e.Transcript())
	_, err := e.Submit(context.Background(), testConfig(), "second")

	var concurrent *ConcurrentRequestError
	require.True(t, errors.As(err, &concurrent))
	assert.Equal(t, before, contents(e.Transcript()))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"user:first", "assistant:done"}, contents(e.Transcript()))
}

func TestEngineUserTurnPersistFailure(t *testing.T) {
	store := newMemoryStore()
	store.failCreate = errors.New("disk full")
	called := false
	e := newTestEngine(t, store, transportFunc(func(context.Context, string, string, *Payload) ([]byte, error) {
		called = true
		return []byte(travelAnswer), nil
	}))

	_, err := e.Submit(context.Background(), testConfig(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, called)
	assert.Empty(t, e.Transcript())
	assert.False(t, e.IsBusy())
}

func TestEngineTransientAnswers(t *testing.T) {
	store := newMemoryStore()
	e := newTestEngine(t, store, respondAfter(0, travelAnswer), WithTransientAnswers())

	answer, err := e.Submit(context.Background(), testConfig(), "hi")
	require.NoError(t, err)

	assert.Len(t, e.Transcript(), 2)
	persisted, _ := store.ListTurns(context.Background(), "user-1", "conv1")
	require.Len(t, persisted, 1)
	assert.Equal(t, RoleUser, persisted[0].Role)
	assert.NotEqual(t, persisted[0].ID, answer.Turn.ID)
}

func TestEngineTitleFailureDoesNotFailSend(t *testing.T) {
	store := newMemoryStore()
	store.failTitle = errors.New("read only")
	e := newTestEngine(t, store, respondAfter(0, travelAnswer))

	_, err := e.Submit(context.Background(), testConfig(), "hi")
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, e.Conversation().Title)
}

func TestEngineActivateLoadsState(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	first, _ := store.CreateTurn(ctx, "user-1", "conv2", RoleUser, "old question")
	_, _ = store.CreateTurn(ctx, "user-1", "conv2", RoleAssistant, "old answer")
	require.NoError(t, store.AddBookmark(ctx, "user-1", first.ID))

	e := NewEngine(store, respondAfter(0, travelAnswer), "user-1")
	require.NoError(t, e.Activate(ctx, Conversation{ID: "conv2", Title: "Cards"}))

	assert.Equal(t, []string{"user:old question", "assistant:old answer"}, contents(e.Transcript()))
	assert.True(t, e.IsBookmarked(first.ID))

	// an already titled conversation is never retitled
	require.NoError(t, e.Clear(ctx))
	_, err := e.Submit(ctx, testConfig(), "fresh start")
	require.NoError(t, err)
	assert.Equal(t, "Cards", e.Conversation().Title)
}

func TestEngineClear(t *testing.T) {
	store := newMemoryStore()
	e := newTestEngine(t, store, respondAfter(0, travelAnswer))
	_, err := e.Submit(context.Background(), testConfig(), "hi")
	require.NoError(t, err)

	require.NoError(t, e.Clear(context.Background()))
	assert.Empty(t, e.Transcript())
	persisted, _ := store.ListTurns(context.Background(), "user-1", "conv1")
	assert.Empty(t, persisted)
}

func TestEngineClearRetitles(t *testing.T) {
	store := newMemoryStore()
	e := newTestEngine(t, store, respondAfter(0, travelAnswer))
	_, err := e.Submit(context.Background(), testConfig(), "hi")
	require.NoError(t, err)
	require.NoError(t, e.Clear(context.Background()))

	_, err = e.Submit(context.Background(), testConfig(), "lounge access cards")
	require.NoError(t, err)
	assert.Equal(t, "lounge access cards", e.Conversation().Title)
	assert.Equal(t, "lounge access cards", store.titles["conv1"])
}

func TestEngineClearKeepsExplicitTitle(t *testing.T) {
	store := newMemoryStore()
	e := newTestEngine(t, store, respondAfter(0, travelAnswer))
	require.NoError(t, e.Rename(context.Background(), "Cards"))
	_, err := e.Submit(context.Background(), testConfig(), "hi")
	require.NoError(t, err)
	require.NoError(t, e.Clear(context.Background()))

	_, err = e.Submit(context.Background(), testConfig(), "something else")
	require.NoError(t, err)
	assert.Equal(t, "Cards", e.Conversation().Title)
	assert.Equal(t, "Cards", e.Conversation().DisplayName())
}

func TestConversationNames(t *testing.T) {
	e := newTestEngine(t, newMemoryStore(), respondAfter(0, travelAnswer))
	assert.Equal(t, "conv1", e.Conversation().ShortID())
	assert.Equal(t, DefaultTitle, e.Conversation().DisplayName())

	c := Conversation{ID: "0123456789abcdef"}
	assert.Equal(t, "01234567", c.ShortID())
	assert.Equal(t, "01234567", c.DisplayName())
}

func TestEngineSubmitWithoutConversation(t *testing.T) {
	e := NewEngine(newMemoryStore(), respondAfter(0, travelAnswer), "user-1")
	_, err := e.Submit(context.Background(), testConfig(), "hi")
	require.Error(t, err)
	assert.False(t, e.IsBusy())
}

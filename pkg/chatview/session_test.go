package chatview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gemini-chat-go/internal/model"
	"gemini-chat-go/pkg/chatclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSub struct {
	in       chan model.MessageEvent
	released chan struct{}
}

type fakeBackend struct {
	mu      sync.Mutex
	history map[string][]model.Message
	subs    []*fakeSub
	chatErr error
	chats   []chatclient.ChatRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{history: map[string][]model.Message{}}
}

func (f *fakeBackend) GetMessages(_ context.Context, userID string, _, _ int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.history[userID]...), nil
}

func (f *fakeBackend) ChatWithGemini(_ context.Context, req chatclient.ChatRequest) (*chatclient.ChatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, req)
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &chatclient.ChatResult{Success: true, Response: "ok"}, nil
}

func (f *fakeBackend) Subscribe(ctx context.Context) (<-chan model.MessageEvent, error) {
	sub := &fakeSub{in: make(chan model.MessageEvent), released: make(chan struct{})}
	out := make(chan model.MessageEvent)
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	go func() {
		defer close(out)
		defer close(sub.released)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-sub.in:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// waitSub blocks until the n-th (0-based) subscription exists.
func (f *fakeBackend) waitSub(t *testing.T, n int) *fakeSub {
	t.Helper()
	var sub *fakeSub
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.subs) > n {
			sub = f.subs[n]
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)
	return sub
}

func released(sub *fakeSub) bool {
	select {
	case <-sub.released:
		return true
	default:
		return false
	}
}

func newTestSession(t *testing.T) (*Session, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	s := NewSession(backend, New())
	t.Cleanup(s.Close)
	return s, backend
}

// next pumps one event through Apply, like the UI loop does.
func next(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		s.Apply(ev)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
		return nil
	}
}

func TestSessionFetchesOnIdentity(t *testing.T) {
	s, backend := newTestSession(t)
	backend.history["u1"] = []model.Message{msg("m1", model.RoleUser, "earlier", t0)}

	s.SetIdentity("u1")
	ev := next(t, s)
	require.IsType(t, FetchedEvent{}, ev)
	require.Len(t, s.View().Entries(), 1)
	assert.Equal(t, "earlier", s.View().Entries()[0].Content)
}

func TestSessionMergesPushes(t *testing.T) {
	s, backend := newTestSession(t)
	s.SetIdentity("u1")
	next(t, s) // fetch

	sub := backend.waitSub(t, 0)

	pushed := msg("p1", model.RoleAssistant, "pushed", t0)
	sub.in <- model.NewInsertEvent(pushed)
	next(t, s)
	sub.in <- model.NewInsertEvent(pushed)
	next(t, s)

	entries := s.View().Entries()
	require.Len(t, entries, 1, "duplicate pushes are merged by id")
	assert.Equal(t, "p1", entries[0].ID)
}

func TestSessionSendFailureRollsBack(t *testing.T) {
	s, backend := newTestSession(t)
	backend.chatErr = errors.New("network down")
	s.SetIdentity("u1")
	next(t, s)

	s.View().SetInput("/image a cat")
	sub, err := s.Send(t0)
	require.NoError(t, err)
	require.Len(t, optimisticEntries(s.View()), 1)

	_, err = s.Send(t0)
	assert.ErrorIs(t, err, ErrEmptyInput)

	ev := next(t, s)
	require.IsType(t, SettledEvent{}, ev)
	assert.Equal(t, sub.TempID, ev.(SettledEvent).TempID)
	assert.Empty(t, s.View().Entries())
	assert.EqualError(t, s.View().LastError(), "network down")
	assert.Equal(t, []chatclient.ChatRequest{{Message: "a cat", UserID: "u1", IsImageRequest: true}}, backend.chats)
}

func TestSessionSendSuccessRefetches(t *testing.T) {
	s, backend := newTestSession(t)
	s.SetIdentity("u1")
	next(t, s)

	s.View().SetInput("hello")
	_, err := s.Send(t0)
	require.NoError(t, err)

	backend.mu.Lock()
	backend.history["u1"] = []model.Message{
		msg("m1", model.RoleUser, "hello", t0.Add(time.Second)),
		msg("m2", model.RoleAssistant, "ok", t0.Add(2*time.Second)),
	}
	backend.mu.Unlock()

	require.IsType(t, SettledEvent{}, next(t, s))
	require.IsType(t, FetchedEvent{}, next(t, s))

	entries := s.View().Entries()
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Optimistic)
	assert.Equal(t, "ok", entries[1].Content)
}

func TestSessionReleasesSubscriptionOnIdentityChange(t *testing.T) {
	s, backend := newTestSession(t)
	s.SetIdentity("u1")
	first := backend.waitSub(t, 0)

	s.SetIdentity("u2")
	assert.Eventually(t, func() bool { return released(first) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "u2", s.View().UserID())

	second := backend.waitSub(t, 1)
	assert.False(t, released(second))
	s.SetIdentity("")
	assert.Eventually(t, func() bool { return released(second) }, time.Second, 5*time.Millisecond)
}

func TestSessionIgnoresStaleEvents(t *testing.T) {
	s, _ := newTestSession(t)
	s.View().SetIdentity("u2")
	assert.False(t, s.Apply(PushedEvent{UserID: "u1", Event: model.NewInsertEvent(msg("x", model.RoleUser, "stale", t0))}))
	assert.Empty(t, s.View().Entries())
}

func TestSessionCloseReleases(t *testing.T) {
	backend := newFakeBackend()
	s := NewSession(backend, New())
	s.SetIdentity("u1")
	sub := backend.waitSub(t, 0)

	s.Close()
	assert.True(t, released(sub))
}

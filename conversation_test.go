package telethon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gotd/td/clock"
	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SickLays/Telethon/internal/fixtures"
)

// testClock is a manual clock.  Travel advances it and fires due timers.
type testClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*testTimer
	// armed receives a signal whenever a timer is created, so tests can
	// synchronize with a waiter before travelling.
	armed chan struct{}
}

func newTestClock() *testClock {
	return &testClock{
		now:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		armed: make(chan struct{}, 16),
	}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Timer(d time.Duration) clock.Timer {
	c.mu.Lock()
	t := &testTimer{ch: make(chan time.Time, 1), at: c.now.Add(d)}
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	select {
	case c.armed <- struct{}{}:
	default:
	}
	return t
}

func (c *testClock) Ticker(time.Duration) clock.Ticker {
	panic("not used")
}

func (c *testClock) Travel(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, t := range c.timers {
		t.fire(c.now)
	}
}

type testTimer struct {
	mu    sync.Mutex
	ch    chan time.Time
	at    time.Time
	fired bool
}

func (t *testTimer) C() <-chan time.Time { return t.ch }

func (t *testTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	stopped := !t.fired
	t.fired = true
	return stopped
}

func (t *testTimer) Reset(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fired = false
	t.at = t.at.Add(d)
}

func (t *testTimer) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.at.After(now) {
		return
	}
	t.fired = true
	t.ch <- now
}

func newConvClient(t *testing.T, api Querier, clk clock.Clock) *Client {
	t.Helper()
	c, err := New(api,
		WithClock(clk),
		WithLimits(Limits{RequestsPerMinute: 0, Burst: 1, DialogsPerPage: 100}))
	require.NoError(t, err)
	return c
}

var convPeer = &tg.InputPeerUser{UserID: 1, AccessHash: 1 << 4}

func inbound(id int) *tg.Message {
	return fixtures.Message(id, 1700000000, &tg.PeerUser{UserID: 1})
}

func inboundReply(id, replyTo int) *tg.Message {
	return fixtures.Reply(id, 1700000000, &tg.PeerUser{UserID: 1}, replyTo)
}

func TestConversation_responseFlow(t *testing.T) {
	ctx := context.Background()
	api := &fakeInvoker{sent: &tg.UpdateShortSentMessage{ID: 7, Out: true}}
	c := newConvClient(t, api, newTestClock())

	conv, err := c.Conversation(convPeer)
	require.NoError(t, err)
	defer conv.Close()

	id, err := conv.SendMessage(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, 7, id)
	require.Len(t, api.sendReqs, 1)
	assert.Equal(t, "hello", api.sendReqs[0].Message)
	assert.Equal(t, convPeer, api.sendReqs[0].Peer)
	assert.NotZero(t, api.sendReqs[0].RandomID)

	msg := inbound(100)
	assert.True(t, c.RouteMessage(msg), "message for the open chat is consumed")

	got, err := conv.GetResponse(ctx)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestConversation_replySemantics(t *testing.T) {
	ctx := context.Background()
	open := func(t *testing.T, opts ...ConversationOption) (*Conversation, *Client) {
		api := &fakeInvoker{sent: &tg.UpdateShortSentMessage{ID: 7, Out: true}}
		c := newConvClient(t, api, newTestClock())
		conv, err := c.Conversation(convPeer, opts...)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conv.Close() })
		_, err = conv.SendMessage(ctx, "question")
		require.NoError(t, err)
		return conv, c
	}

	t.Run("replies are responses", func(t *testing.T) {
		conv, c := open(t)
		c.RouteMessage(inboundReply(101, 7))
		c.RouteMessage(inboundReply(102, 7))

		resp, err := conv.GetResponse(ctx)
		require.NoError(t, err)
		reply, err := conv.GetReply(ctx)
		require.NoError(t, err)
		assert.Equal(t, 101, resp.ID)
		assert.Equal(t, 102, reply.ID, "a reply consumed as a response is not returned again")
	})
	t.Run("independent consumption", func(t *testing.T) {
		conv, c := open(t, WithRepliesAreResponses(false))
		c.RouteMessage(inboundReply(101, 7))
		c.RouteMessage(inboundReply(102, 7))

		resp, err := conv.GetResponse(ctx)
		require.NoError(t, err)
		reply, err := conv.GetReply(ctx)
		require.NoError(t, err)
		assert.Equal(t, 101, resp.ID)
		assert.Equal(t, 101, reply.ID, "the same message serves both roles")
	})
	t.Run("reply to a foreign message does not match", func(t *testing.T) {
		conv, c := open(t)
		c.RouteMessage(inboundReply(101, 999))

		resp, err := conv.GetResponse(ctx)
		require.NoError(t, err)
		assert.Equal(t, 101, resp.ID, "still a response")

		ctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = conv.GetReply(ctx)
		assert.ErrorIs(t, err, context.Canceled, "but never a reply")
	})
}

func TestConversation_totalTimeout(t *testing.T) {
	clk := newTestClock()
	c := newConvClient(t, &fakeInvoker{}, clk)

	conv, err := c.Conversation(convPeer) // default total timeout 60s
	require.NoError(t, err)
	defer conv.Close()

	clk.Travel(61 * time.Second)
	_, err = conv.GetResponse(context.Background())
	assert.ErrorIs(t, err, ErrConversationTimeout)
}

func TestConversation_actionTimeout(t *testing.T) {
	clk := newTestClock()
	c := newConvClient(t, &fakeInvoker{}, clk)

	conv, err := c.Conversation(convPeer, WithActionTimeout(time.Second))
	require.NoError(t, err)
	defer conv.Close()

	errc := make(chan error, 1)
	go func() {
		_, err := conv.GetResponse(context.Background())
		errc <- err
	}()
	<-clk.armed // the waiter has armed its timer
	clk.Travel(2 * time.Second)
	assert.ErrorIs(t, <-errc, ErrConversationTimeout)
}

func TestConversation_full(t *testing.T) {
	clk := newTestClock()
	c := newConvClient(t, &fakeInvoker{}, clk)

	conv, err := c.Conversation(convPeer, WithMaxMessages(1))
	require.NoError(t, err)
	defer conv.Close()

	c.RouteMessage(inbound(100))
	c.RouteMessage(inbound(101)) // over the cap

	_, err = conv.GetResponse(context.Background())
	assert.ErrorIs(t, err, ErrConversationFull)
	_, err = conv.SendMessage(context.Background(), "x")
	assert.ErrorIs(t, err, ErrConversationFull)
}

func TestConversation_busyAndClose(t *testing.T) {
	c := newConvClient(t, &fakeInvoker{}, newTestClock())

	conv, err := c.Conversation(convPeer)
	require.NoError(t, err)

	_, err = c.Conversation(convPeer)
	assert.ErrorIs(t, err, ErrConversationBusy)

	require.NoError(t, conv.Close())
	assert.False(t, c.RouteMessage(inbound(100)), "closed conversation no longer consumes")

	conv2, err := c.Conversation(convPeer)
	require.NoError(t, err)
	_ = conv2.Close()

	_, err = conv.GetResponse(context.Background())
	assert.ErrorIs(t, err, ErrConversationClosed)
}

func TestConversation_closeWakesWaiter(t *testing.T) {
	clk := newTestClock()
	c := newConvClient(t, &fakeInvoker{}, clk)

	conv, err := c.Conversation(convPeer)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := conv.GetResponse(context.Background())
		errc <- err
	}()
	<-clk.armed
	require.NoError(t, conv.Close())
	assert.ErrorIs(t, <-errc, ErrConversationClosed)
}

func TestConversation_validation(t *testing.T) {
	c := newConvClient(t, &fakeInvoker{}, newTestClock())
	tests := []struct {
		name string
		opts []ConversationOption
	}{
		{"zero max messages", []ConversationOption{WithMaxMessages(0)}},
		{"negative total timeout", []ConversationOption{WithTotalTimeout(-time.Second)}},
		{"negative action timeout", []ConversationOption{WithActionTimeout(-time.Second)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Conversation(convPeer, tt.opts...)
			assert.Error(t, err)
		})
	}

	_, err := c.Conversation(&tg.InputPeerEmpty{})
	assert.Error(t, err, "peer without identity cannot hold a conversation")
}

func Test_sentMessageID(t *testing.T) {
	out := fixtures.Message(42, 1, &tg.PeerUser{UserID: 1})
	out.Out = true
	tests := []struct {
		name string
		res  tg.UpdatesClass
		want int
	}{
		{"short sent", &tg.UpdateShortSentMessage{ID: 7}, 7},
		{"update message id", &tg.Updates{Updates: []tg.UpdateClass{&tg.UpdateMessageID{ID: 8}}}, 8},
		{"new message", &tg.Updates{Updates: []tg.UpdateClass{&tg.UpdateNewMessage{Message: out}}}, 42},
		{"unknown", &tg.UpdatesTooLong{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sentMessageID(tt.res))
		})
	}
}

func TestRouteMessage(t *testing.T) {
	c := newConvClient(t, &fakeInvoker{}, newTestClock())
	conv, err := c.Conversation(convPeer)
	require.NoError(t, err)
	defer conv.Close()

	assert.False(t, c.RouteMessage(nil))

	other := fixtures.Message(1, 1, &tg.PeerUser{UserID: 99})
	assert.False(t, c.RouteMessage(other), "message for another chat")

	ours := inbound(2)
	ours.Out = true
	assert.False(t, c.RouteMessage(ours), "own outgoing messages are not inbound")

	assert.True(t, c.RouteMessage(inbound(3)))
}

package telethon

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/td/clock"
	"github.com/gotd/td/constant"
	"github.com/gotd/td/tg"

	"github.com/SickLays/Telethon/internal/peerid"
)

var (
	// ErrConversationClosed is returned by actions on a closed conversation.
	ErrConversationClosed = errors.New("conversation closed")
	// ErrConversationFull is returned once the conversation has remembered
	// its maximum number of messages.
	ErrConversationFull = errors.New("conversation full")
	// ErrConversationTimeout is returned when the per-action or the total
	// conversation timeout expires.
	ErrConversationTimeout = errors.New("conversation timed out")
	// ErrConversationBusy is returned when a conversation is already open on
	// the chat.
	ErrConversationBusy = errors.New("conversation already open for this chat")
)

type conversationConfig struct {
	// ActionTimeout limits each individual Get* call.  Zero means no
	// per-action limit; the total timeout still applies.
	ActionTimeout time.Duration `validate:"gte=0"`
	// TotalTimeout limits the whole conversation from the moment it is
	// opened.  Zero means no total limit.
	TotalTimeout time.Duration `validate:"gte=0"`
	// MaxMessages is how many inbound messages the conversation remembers
	// before subsequent actions fail.
	MaxMessages int `validate:"gte=1"`
	// RepliesAreResponses makes a message consumed as a response also count
	// as consumed for replies, and vice versa, so alternating GetResponse and
	// GetReply never return the same message twice.
	RepliesAreResponses bool
}

var defConvConfig = conversationConfig{
	TotalTimeout:        60 * time.Second,
	MaxMessages:         100,
	RepliesAreResponses: true,
}

// ConversationOption is the signature of a conversation option.
type ConversationOption func(*conversationConfig)

// WithActionTimeout sets the default timeout per action.
func WithActionTimeout(d time.Duration) ConversationOption {
	return func(cfg *conversationConfig) {
		cfg.ActionTimeout = d
	}
}

// WithTotalTimeout sets the timeout for the whole conversation.  Zero
// disables it.
func WithTotalTimeout(d time.Duration) ConversationOption {
	return func(cfg *conversationConfig) {
		cfg.TotalTimeout = d
	}
}

// WithMaxMessages sets how many inbound messages the conversation remembers.
func WithMaxMessages(n int) ConversationOption {
	return func(cfg *conversationConfig) {
		cfg.MaxMessages = n
	}
}

// WithRepliesAreResponses sets whether replies are treated as responses too.
func WithRepliesAreResponses(b bool) ConversationOption {
	return func(cfg *conversationConfig) {
		cfg.RepliesAreResponses = b
	}
}

// Conversation is an interactive request/response session with one chat.  It
// correlates messages sent through it with inbound messages delivered by
// Client.RouteMessage, and enforces the configured timeouts on a monotonic
// clock.
type Conversation struct {
	client *Client
	peer   tg.InputPeerClass
	id     constant.TDLibPeerID
	cfg    conversationConfig
	clock  clock.Clock
	// deadline is the absolute total-timeout deadline, zero if unlimited.
	deadline time.Time

	mu            sync.Mutex
	wake          chan struct{}
	msgs          []*tg.Message
	outIDs        map[int]struct{}
	respConsumed  map[int]struct{}
	replyConsumed map[int]struct{}
	full          bool
	closed        bool
}

// Conversation opens a conversation with the peer.  Only one conversation per
// chat may be open at a time; Close releases the chat.
func (c *Client) Conversation(peer tg.InputPeerClass, opts ...ConversationOption) (*Conversation, error) {
	cfg := defConvConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, errors.Wrap(validationError(err), "conversation config")
	}
	id, ok := peerid.FromInputPeer(peer)
	if !ok {
		return nil, errors.New("conversation peer carries no identity")
	}
	conv := &Conversation{
		client:        c,
		peer:          peer,
		id:            id,
		cfg:           cfg,
		clock:         c.clock,
		wake:          make(chan struct{}),
		outIDs:        make(map[int]struct{}),
		respConsumed:  make(map[int]struct{}),
		replyConsumed: make(map[int]struct{}),
	}
	if cfg.TotalTimeout > 0 {
		conv.deadline = c.clock.Now().Add(cfg.TotalTimeout)
	}
	if err := c.registerConv(id, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// PeerID returns the normalized identifier of the conversation chat.
func (cv *Conversation) PeerID() constant.TDLibPeerID {
	return cv.id
}

// SendMessage sends a text message to the conversation chat and records its
// ID for reply matching.
func (cv *Conversation) SendMessage(ctx context.Context, text string) (int, error) {
	cv.mu.Lock()
	if cv.closed {
		cv.mu.Unlock()
		return 0, ErrConversationClosed
	}
	if cv.full {
		cv.mu.Unlock()
		return 0, ErrConversationFull
	}
	cv.mu.Unlock()

	res, err := cv.client.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     cv.peer,
		Message:  text,
		RandomID: randomID(),
	})
	if err != nil {
		return 0, errors.Wrap(err, "send message")
	}
	id := sentMessageID(res)
	if id != 0 {
		cv.mu.Lock()
		cv.outIDs[id] = struct{}{}
		cv.mu.Unlock()
	}
	return id, nil
}

// GetResponse waits for the next inbound message not yet consumed as a
// response.
func (cv *Conversation) GetResponse(ctx context.Context) (*tg.Message, error) {
	return cv.await(ctx, cv.nextResponse, cv.consumeResponse)
}

// GetReply waits for the next inbound message that replies to a message sent
// through this conversation and is not yet consumed as a reply.
func (cv *Conversation) GetReply(ctx context.Context) (*tg.Message, error) {
	return cv.await(ctx, cv.nextReply, cv.consumeReply)
}

// Close closes the conversation, releasing the chat for a new one.  Pending
// waiters fail with ErrConversationClosed.
func (cv *Conversation) Close() error {
	cv.mu.Lock()
	if cv.closed {
		cv.mu.Unlock()
		return nil
	}
	cv.closed = true
	close(cv.wake)
	cv.wake = make(chan struct{})
	cv.mu.Unlock()
	cv.client.unregisterConv(cv.id)
	return nil
}

// deliver feeds an inbound message into the conversation.  Beyond the
// remembered-message cap the message is dropped and the conversation marked
// full.
func (cv *Conversation) deliver(msg *tg.Message) {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	if cv.closed {
		return
	}
	if len(cv.msgs) >= cv.cfg.MaxMessages {
		cv.full = true
	} else {
		cv.msgs = append(cv.msgs, msg)
	}
	close(cv.wake)
	cv.wake = make(chan struct{})
}

// nextResponse returns the oldest unconsumed inbound message.  Callers hold
// the mutex.
func (cv *Conversation) nextResponse() (*tg.Message, bool) {
	for _, m := range cv.msgs {
		if _, done := cv.respConsumed[m.ID]; !done {
			return m, true
		}
	}
	return nil, false
}

// nextReply returns the oldest unconsumed inbound message replying to one of
// the conversation's outgoing messages.  Callers hold the mutex.
func (cv *Conversation) nextReply() (*tg.Message, bool) {
	for _, m := range cv.msgs {
		if _, done := cv.replyConsumed[m.ID]; done {
			continue
		}
		hdr, ok := m.GetReplyTo()
		if !ok {
			continue
		}
		reply, ok := hdr.(*tg.MessageReplyHeader)
		if !ok {
			continue
		}
		replyTo, ok := reply.GetReplyToMsgID()
		if !ok {
			continue
		}
		if _, ours := cv.outIDs[replyTo]; ours {
			return m, true
		}
	}
	return nil, false
}

func (cv *Conversation) consumeResponse(id int) {
	cv.respConsumed[id] = struct{}{}
	if cv.cfg.RepliesAreResponses {
		cv.replyConsumed[id] = struct{}{}
	}
}

func (cv *Conversation) consumeReply(id int) {
	cv.replyConsumed[id] = struct{}{}
	if cv.cfg.RepliesAreResponses {
		cv.respConsumed[id] = struct{}{}
	}
}

// await blocks until pick matches a message, the timeouts expire, the context
// is cancelled, or the conversation is closed or full.
func (cv *Conversation) await(ctx context.Context, pick func() (*tg.Message, bool), consume func(int)) (*tg.Message, error) {
	deadline := cv.deadline
	if cv.cfg.ActionTimeout > 0 {
		action := cv.clock.Now().Add(cv.cfg.ActionTimeout)
		if deadline.IsZero() || action.Before(deadline) {
			deadline = action
		}
	}
	for {
		cv.mu.Lock()
		if cv.closed {
			cv.mu.Unlock()
			return nil, ErrConversationClosed
		}
		if cv.full {
			cv.mu.Unlock()
			return nil, ErrConversationFull
		}
		if m, ok := pick(); ok {
			consume(m.ID)
			cv.mu.Unlock()
			return m, nil
		}
		wake := cv.wake
		cv.mu.Unlock()

		var (
			timer  clock.Timer
			timerC <-chan time.Time
		)
		if !deadline.IsZero() {
			d := deadline.Sub(cv.clock.Now())
			if d <= 0 {
				return nil, ErrConversationTimeout
			}
			timer = cv.clock.Timer(d)
			timerC = timer.C()
		}
		select {
		case <-ctx.Done():
			stopTimer(timer)
			return nil, ctx.Err()
		case <-timerC:
			return nil, ErrConversationTimeout
		case <-wake:
			stopTimer(timer)
		}
	}
}

func stopTimer(t clock.Timer) {
	if t != nil {
		t.Stop()
	}
}

func peeridFromMessage(msg *tg.Message) constant.TDLibPeerID {
	return peerid.FromPeer(msg.PeerID)
}

// randomID generates the client random ID required by send requests.
func randomID() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err) // crypto/rand does not fail on supported platforms
	}
	return int64(binary.LittleEndian.Uint64(buf[:]))
}

// sentMessageID extracts the ID assigned to a just-sent message from the
// updates response.
func sentMessageID(res tg.UpdatesClass) int {
	switch u := res.(type) {
	case *tg.UpdateShortSentMessage:
		return u.ID
	case *tg.Updates:
		return sentMessageIDFromUpdates(u.Updates)
	case *tg.UpdatesCombined:
		return sentMessageIDFromUpdates(u.Updates)
	}
	return 0
}

func sentMessageIDFromUpdates(upds []tg.UpdateClass) int {
	for _, upd := range upds {
		switch x := upd.(type) {
		case *tg.UpdateMessageID:
			return x.ID
		case *tg.UpdateNewMessage:
			if m, ok := x.Message.(*tg.Message); ok && m.Out {
				return m.ID
			}
		case *tg.UpdateNewChannelMessage:
			if m, ok := x.Message.(*tg.Message); ok && m.Out {
				return m.ID
			}
		}
	}
	return 0
}

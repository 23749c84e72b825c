// Package telethon lists and consumes Telegram dialogs: the open chats,
// joined groups and subscribed channels of an account.  It turns the
// page-limited messages.getDialogs endpoint into a single lazy, deduplicated
// stream of dialog records, lists draft messages, and opens interactive
// request/response conversations with a peer.
//
// The package is a sequencing layer over a trusted transport: it issues one
// request at a time, performs no retries and surfaces transport errors
// unchanged.  Flood control belongs to the invoker middleware (see
// NewTelegramClient).
package telethon

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/gotd/td/clock"
	"github.com/gotd/td/constant"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/SickLays/Telethon/internal/network"
)

// Querier is the subset of the Telegram API consumed by the client.  It is
// implemented by *tg.Client and by test fakes.
type Querier interface {
	MessagesGetDialogs(ctx context.Context, request *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error)
	MessagesGetAllDrafts(ctx context.Context) (tg.UpdatesClass, error)
	MessagesSendMessage(ctx context.Context, request *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error)
}

// Client provides dialog enumeration, draft listing and conversations over a
// Telegram invoker.  Zero value is not usable, must be initialised with New.
// Methods are safe for concurrent use; each enumeration call owns its cursor
// and dedup state exclusively.
type Client struct {
	api    Querier
	log    *zap.Logger
	clock  clock.Clock
	limits Limits
	lim    *rate.Limiter

	mu         sync.Mutex
	channelPts map[constant.TDLibPeerID]int
	convs      map[constant.TDLibPeerID]*Conversation
}

// New creates a new client over the given API surface.  For a live connection
// pass client.API() of a running gotd telegram client, or anything else that
// satisfies Querier.
func New(api Querier, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("nil api")
	}
	c := &Client{
		api:        api,
		log:        zap.NewNop(),
		clock:      clock.System,
		limits:     DefLimits,
		channelPts: make(map[constant.TDLibPeerID]int),
		convs:      make(map[constant.TDLibPeerID]*Conversation),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.limits.Validate(); err != nil {
		return nil, errors.Wrap(validationError(err), "limits")
	}
	c.lim = network.NewLimiter(c.limits.RequestsPerMinute, c.limits.Burst)
	return c, nil
}

// ChannelPts returns the last per-channel state counter observed for the
// dialog during enumeration.  The updates machinery uses it to resume
// incremental sync for that channel.
func (c *Client) ChannelPts(id constant.TDLibPeerID) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pts, ok := c.channelPts[id]
	return pts, ok
}

func (c *Client) setChannelPts(id constant.TDLibPeerID, pts int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channelPts[id] = pts
}

func (c *Client) registerConv(id constant.TDLibPeerID, conv *Conversation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.convs[id]; busy {
		return ErrConversationBusy
	}
	c.convs[id] = conv
	return nil
}

func (c *Client) unregisterConv(id constant.TDLibPeerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.convs, id)
}

// RouteMessage delivers an inbound message to the conversation open on its
// chat, if any.  Call it from the application's new-message update handler;
// it reports whether a conversation consumed the message.
func (c *Client) RouteMessage(msg *tg.Message) bool {
	if msg == nil || msg.Out {
		return false
	}
	c.mu.Lock()
	conv, ok := c.convs[peeridFromMessage(msg)]
	c.mu.Unlock()
	if !ok {
		return false
	}
	conv.deliver(msg)
	return true
}

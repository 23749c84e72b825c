package telethon

import (
	"context"
	"iter"
	"runtime/trace"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/td/constant"
	"github.com/gotd/td/tg"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/SickLays/Telethon/internal/peerid"
	"github.com/SickLays/Telethon/internal/primitive"
)

// Total carries the dialog count reported by the server during an
// enumeration.  It is overwritten on every page, because later pages may carry
// a more accurate figure, and is safe to read while the iterator runs.
type Total struct {
	n      atomic.Int64
	approx atomic.Bool
}

// Load returns the last reported total.
func (t *Total) Load() int {
	return int(t.n.Load())
}

// Approximate reports whether the total was inferred from a page length
// because the response shape carried no authoritative count.  An approximate
// total is a lower bound, not an exact figure.
func (t *Total) Approximate() bool {
	return t.approx.Load()
}

func (t *Total) set(n int, approx bool) {
	t.n.Store(int64(n))
	t.approx.Store(approx)
}

// Dialog is one dialog record: the server's dialog summary joined with its
// resolved peer entity and last message.  Records are immutable once emitted.
type Dialog struct {
	// ID is the normalized peer identifier of the dialog.
	ID constant.TDLibPeerID
	// Raw is the dialog summary as returned by the server.
	Raw tg.DialogClass
	// Entity is the resolved user, chat or channel.  It may be nil if the
	// server omitted the entity from the page.
	Entity PeerEntity
	// Last is the dialog's top message, bound to the entities of the page it
	// arrived on.  It may be nil.
	Last *Message
}

// Pinned reports whether the dialog is pinned.
func (d Dialog) Pinned() bool {
	return d.Raw.GetPinned()
}

// TopMessage returns the ID of the latest message in the dialog.
func (d Dialog) TopMessage() int {
	return d.Raw.GetTopMessage()
}

// UnreadCount returns the number of unread messages.
func (d Dialog) UnreadCount() int {
	if raw, ok := d.Raw.(*tg.Dialog); ok {
		return raw.UnreadCount
	}
	return 0
}

// Pts returns the per-channel state counter, present on channel dialogs.
func (d Dialog) Pts() (int, bool) {
	if raw, ok := d.Raw.(*tg.Dialog); ok {
		return raw.GetPts()
	}
	return 0, false
}

// MigratedTo returns the channel a basic group was upgraded to, if the
// resolved entity indicates it was superseded.
func (d Dialog) MigratedTo() (tg.InputChannelClass, bool) {
	if chat, ok := d.Entity.(*tg.Chat); ok {
		return chat.GetMigratedTo()
	}
	return nil, false
}

// Title returns the display name of the dialog: the user's name for private
// chats, the title for groups and channels.
func (d Dialog) Title() string {
	switch ent := d.Entity.(type) {
	case *tg.User:
		return strings.TrimSpace(ent.FirstName + " " + ent.LastName)
	case *tg.Chat:
		return ent.Title
	case *tg.ChatForbidden:
		return ent.Title
	case *tg.Channel:
		return ent.Title
	case *tg.ChannelForbidden:
		return ent.Title
	}
	return ""
}

// Dialogs is the materialized result of a dialog enumeration.
type Dialogs struct {
	Items []Dialog
	// Total is the dialog count reported by the server, which may exceed
	// len(Items) when the enumeration was limited.
	Total int
	// Approximate is set when the server reported no authoritative count and
	// Total was inferred from page contents.
	Approximate bool
}

// DialogsOption is the signature of a per-enumeration option.
type DialogsOption func(*dialogsParams)

type dialogsParams struct {
	limit          int
	offsetDate     time.Time
	offsetID       int
	offsetPeer     tg.InputPeerClass
	ignoreMigrated bool
	total          *Total
}

// OptLimit caps the number of records the enumeration emits.  Negative n
// (the default) retrieves all dialogs.  Zero emits nothing: on its own it is
// a no-op, combined with OptTotal it is a cheap total count probe costing a
// single size-1 page fetch.
func OptLimit(n int) DialogsOption {
	return func(p *dialogsParams) {
		p.limit = n
	}
}

// OptOffsetDate starts the enumeration at the given offset date.
func OptOffsetDate(t time.Time) DialogsOption {
	return func(p *dialogsParams) {
		p.offsetDate = t
	}
}

// OptOffsetID starts the enumeration at the given offset message ID.
func OptOffsetID(id int) DialogsOption {
	return func(p *dialogsParams) {
		p.offsetID = id
	}
}

// OptOffsetPeer starts the enumeration at the given offset peer.
func OptOffsetPeer(peer tg.InputPeerClass) DialogsOption {
	return func(p *dialogsParams) {
		if peer != nil {
			p.offsetPeer = peer
		}
	}
}

// OptIgnoreMigrated excludes basic groups that were upgraded to a channel,
// the way official applications hide them.  The channel itself still has its
// own dialog.
func OptIgnoreMigrated() DialogsOption {
	return func(p *dialogsParams) {
		p.ignoreMigrated = true
	}
}

// OptTotal attaches a Total handle which receives the server-reported dialog
// count on every fetched page.
func OptTotal(t *Total) DialogsOption {
	return func(p *dialogsParams) {
		p.total = t
	}
}

// dialogsPage is one page of the dialog list in tagged form.  full
// distinguishes a complete messages.dialogs response from a partial
// messages.dialogsSlice; only a slice carries an authoritative count.
type dialogsPage struct {
	dialogs  []tg.DialogClass
	messages []tg.MessageClass
	chats    []tg.ChatClass
	users    []tg.UserClass
	count    int
	full     bool
}

// IterDialogs returns an iterator over the dialogs, emitting at most the
// limited number of records in server order.  The iterator fetches one page
// ahead of demand and no further: a consumer that stops ranging stops the
// fetching.  Pinned dialogs repeated by the server across page boundaries are
// emitted once.  Transport errors are yielded unchanged and end the sequence.
//
// The enumeration owns its cursor and dedup state; iterators from separate
// calls are independent.
func (c *Client) IterDialogs(ctx context.Context, opt ...DialogsOption) iter.Seq2[Dialog, error] {
	p := dialogsParams{limit: -1, offsetPeer: &tg.InputPeerEmpty{}}
	for _, o := range opt {
		o(&p)
	}
	return func(yield func(Dialog, error) bool) {
		ctx, task := trace.NewTask(ctx, "IterDialogs")
		defer task.End()

		req := &tg.MessagesGetDialogsRequest{
			OffsetID:   p.offsetID,
			OffsetPeer: p.offsetPeer,
		}
		if !p.offsetDate.IsZero() {
			req.OffsetDate = int(p.offsetDate.Unix())
		}

		if p.limit == 0 {
			if p.total == nil {
				return
			}
			// Total count probe: a single dialog is enough to learn the
			// count without materializing anything.
			req.Limit = 1
			page, err := c.dialogsPage(ctx, req)
			if err != nil {
				yield(Dialog{}, err)
				return
			}
			p.total.set(page.count, page.full)
			return
		}

		seen := make(map[constant.TDLibPeerID]struct{})
		emitted := 0
		for {
			req.Limit = c.pageSize(p.limit, emitted)
			page, err := c.dialogsPage(ctx, req)
			if err != nil {
				yield(Dialog{}, err)
				return
			}
			if p.total != nil {
				p.total.set(page.count, page.full)
			}
			c.log.Debug("dialogs page",
				zap.Int("requested", req.Limit),
				zap.Int("dialogs", len(page.dialogs)),
				zap.Int("count", page.count),
				zap.Bool("full", page.full))

			ents := newEntities(page.users, page.chats)
			msgs := messageTable(page.messages, ents)

			dialogs := page.dialogs
			if len(dialogs) > req.Limit {
				// The server returns all pinned dialogs regardless of the
				// requested page size.
				dialogs = dialogs[:req.Limit]
			}
			for _, d := range dialogs {
				id := peerid.FromPeer(d.GetPeer())
				if _, dup := seen[id]; dup {
					// Pinned dialogs reappear across page boundaries.
					continue
				}
				seen[id] = struct{}{}
				ent, _ := ents.Peer(d.GetPeer())
				dlg := Dialog{ID: id, Raw: d, Entity: ent, Last: msgs[d.GetTopMessage()]}
				if raw, ok := d.(*tg.Dialog); ok {
					if pts, ok := raw.GetPts(); ok {
						c.setChannelPts(id, pts)
					}
				}
				if p.ignoreMigrated {
					if _, migrated := dlg.MigratedTo(); migrated {
						continue
					}
				}
				emitted++
				if !yield(dlg, nil) {
					return
				}
				if p.limit > 0 && emitted >= p.limit {
					return
				}
			}

			if len(page.dialogs) < req.Limit || page.full {
				// A short page, or a complete (non-sliced) response, means
				// the server has nothing further.
				return
			}
			last, ok := lastNotEmpty(page.messages)
			if !ok {
				return // no message to advance the cursor with
			}
			req.OffsetDate = last.GetDate()
			req.OffsetPeer = ents.inputPeer(dialogs[len(dialogs)-1].GetPeer())
			if req.OffsetID == last.GetID() {
				// The server is replaying the page; advancing would reuse the
				// same offsets forever.
				c.log.Debug("stuck cursor, stopping", zap.Int("offset_id", req.OffsetID))
				return
			}
			req.OffsetID = last.GetID()
			req.ExcludePinned = true
		}
	}
}

// GetDialogs is IterDialogs materialized: it drains the iterator into an
// ordered, duplicate-free collection together with the server-reported total.
func (c *Client) GetDialogs(ctx context.Context, opt ...DialogsOption) (*Dialogs, error) {
	var total Total
	opt = append(opt[:len(opt):len(opt)], OptTotal(&total))
	items, err := primitive.Collect(c.IterDialogs(ctx, opt...))
	if err != nil {
		return nil, err
	}
	return &Dialogs{Items: items, Total: total.Load(), Approximate: total.Approximate()}, nil
}

// pageSize returns the size of the next page request: the smaller of what is
// still needed and the page cap.
func (c *Client) pageSize(limit, emitted int) int {
	size := c.limits.DialogsPerPage
	if limit > 0 && limit-emitted < size {
		size = limit - emitted
	}
	return size
}

// dialogsPage issues exactly one list request and returns the page in tagged
// form.  Transport and deserialization errors propagate unchanged.
func (c *Client) dialogsPage(ctx context.Context, req *tg.MessagesGetDialogsRequest) (dialogsPage, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return dialogsPage{}, err
	}
	res, err := c.api.MessagesGetDialogs(ctx, req)
	if err != nil {
		return dialogsPage{}, errors.Wrap(err, "get dialogs")
	}
	switch d := res.(type) {
	case *tg.MessagesDialogs:
		return dialogsPage{
			dialogs:  d.Dialogs,
			messages: d.Messages,
			chats:    d.Chats,
			users:    d.Users,
			count:    len(d.Dialogs),
			full:     true,
		}, nil
	case *tg.MessagesDialogsSlice:
		return dialogsPage{
			dialogs:  d.Dialogs,
			messages: d.Messages,
			chats:    d.Chats,
			users:    d.Users,
			count:    d.Count,
		}, nil
	default:
		// messages.dialogsNotModified cannot occur with a zero hash.
		return dialogsPage{}, errors.Errorf("unexpected response type %T", res)
	}
}

// lastNotEmpty returns the last non-empty message of a page.
func lastNotEmpty(msgs []tg.MessageClass) (tg.NotEmptyMessage, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if m, ok := msgs[i].AsNotEmpty(); ok {
			return m, true
		}
	}
	return nil, false
}

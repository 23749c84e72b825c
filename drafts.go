package telethon

import (
	"context"
	"iter"
	"runtime/trace"

	"github.com/go-faster/errors"
	"github.com/gotd/td/constant"
	"github.com/gotd/td/tg"

	"github.com/SickLays/Telethon/internal/peerid"
	"github.com/SickLays/Telethon/internal/primitive"
)

// Draft is one open draft message, resolved against the entities embedded in
// the draft list response.
type Draft struct {
	// ID is the normalized identifier of the chat the draft belongs to.
	ID constant.TDLibPeerID
	// Peer is the raw peer reference of the chat.
	Peer tg.PeerClass
	// Entity is the resolved user, chat or channel.  It may be nil if the
	// server omitted it.
	Entity PeerEntity
	// Raw is the draft as returned by the server.
	Raw tg.DraftMessageClass
}

// Text returns the draft message text, empty for cleared drafts.
func (d Draft) Text() string {
	if m, ok := d.Raw.(*tg.DraftMessage); ok {
		return m.Message
	}
	return ""
}

// Empty reports whether the draft has been cleared.
func (d Draft) Empty() bool {
	_, ok := d.Raw.(*tg.DraftMessageEmpty)
	return ok
}

// IterDrafts returns an iterator over all open drafts.  The draft list is a
// single unpaginated request issued on first consumption; there is no cursor
// and no dedup.
func (c *Client) IterDrafts(ctx context.Context) iter.Seq2[Draft, error] {
	return func(yield func(Draft, error) bool) {
		ctx, task := trace.NewTask(ctx, "IterDrafts")
		defer task.End()

		if err := c.lim.Wait(ctx); err != nil {
			yield(Draft{}, err)
			return
		}
		res, err := c.api.MessagesGetAllDrafts(ctx)
		if err != nil {
			yield(Draft{}, errors.Wrap(err, "get all drafts"))
			return
		}
		var (
			upds []tg.UpdateClass
			ents *Entities
		)
		switch u := res.(type) {
		case *tg.Updates:
			upds, ents = u.Updates, newEntities(u.Users, u.Chats)
		case *tg.UpdatesCombined:
			upds, ents = u.Updates, newEntities(u.Users, u.Chats)
		default:
			yield(Draft{}, errors.Errorf("unexpected response type %T", res))
			return
		}
		for _, upd := range upds {
			ud, ok := upd.(*tg.UpdateDraftMessage)
			if !ok {
				continue
			}
			ent, _ := ents.Peer(ud.Peer)
			d := Draft{
				ID:     peerid.FromPeer(ud.Peer),
				Peer:   ud.Peer,
				Entity: ent,
				Raw:    ud.Draft,
			}
			if !yield(d, nil) {
				return
			}
		}
	}
}

// GetDrafts is IterDrafts materialized into an ordered collection.
func (c *Client) GetDrafts(ctx context.Context) ([]Draft, error) {
	return primitive.Collect(c.IterDrafts(ctx))
}

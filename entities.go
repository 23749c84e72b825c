package telethon

import (
	"time"

	"github.com/gotd/td/tg"
)

// PeerEntity is a user, chat or channel object embedded in a server response.
// The concrete type is one of the tg user or chat classes.
type PeerEntity interface {
	GetID() (value int64)
}

// Entities is the lookup table of peer entities embedded in a single response
// page.  It is built fresh for every page and never merged across pages: a
// later page may carry newer data for the same peer, and that page's table is
// then the one its records resolve against.
type Entities struct {
	users    map[int64]tg.UserClass
	chats    map[int64]tg.ChatClass
	channels map[int64]tg.ChatClass
}

// newEntities indexes the users and chats of one page.  Key collisions within
// a page are last-write-wins; the server does not send duplicate peers per
// page, so this is only defensive ordering, not a merge policy.
func newEntities(users []tg.UserClass, chats []tg.ChatClass) *Entities {
	e := &Entities{
		users:    make(map[int64]tg.UserClass, len(users)),
		chats:    make(map[int64]tg.ChatClass),
		channels: make(map[int64]tg.ChatClass),
	}
	for _, u := range users {
		e.users[u.GetID()] = u
	}
	for _, c := range chats {
		switch c.(type) {
		case *tg.Channel, *tg.ChannelForbidden:
			e.channels[c.GetID()] = c
		default:
			e.chats[c.GetID()] = c
		}
	}
	return e
}

// Peer resolves a peer reference against the table.
func (e *Entities) Peer(peer tg.PeerClass) (PeerEntity, bool) {
	switch p := peer.(type) {
	case *tg.PeerUser:
		u, ok := e.users[p.UserID]
		return u, ok
	case *tg.PeerChat:
		c, ok := e.chats[p.ChatID]
		return c, ok
	case *tg.PeerChannel:
		c, ok := e.channels[p.ChannelID]
		return c, ok
	}
	return nil, false
}

// User returns the user with the given ID, if the page embedded it.
func (e *Entities) User(id int64) (tg.UserClass, bool) {
	u, ok := e.users[id]
	return u, ok
}

// Chat returns the basic group chat with the given ID, if the page embedded it.
func (e *Entities) Chat(id int64) (tg.ChatClass, bool) {
	c, ok := e.chats[id]
	return c, ok
}

// Channel returns the channel with the given ID, if the page embedded it.
func (e *Entities) Channel(id int64) (tg.ChatClass, bool) {
	c, ok := e.channels[id]
	return c, ok
}

// Len returns the number of entities in the table.
func (e *Entities) Len() int {
	return len(e.users) + len(e.chats) + len(e.channels)
}

// inputPeer converts a peer reference into the input peer form required by
// offset parameters, recovering access hashes from the table.  Unresolvable
// peers degrade to InputPeerEmpty.
func (e *Entities) inputPeer(peer tg.PeerClass) tg.InputPeerClass {
	switch p := peer.(type) {
	case *tg.PeerUser:
		if u, ok := e.users[p.UserID]; ok {
			if usr, ok := u.AsNotEmpty(); ok {
				return usr.AsInputPeer()
			}
		}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}
	case *tg.PeerChannel:
		if c, ok := e.channels[p.ChannelID]; ok {
			if ch, ok := c.(*tg.Channel); ok {
				return ch.AsInputPeer()
			}
		}
	}
	return &tg.InputPeerEmpty{}
}

// Message is a message bound to the entity table of the page it arrived on,
// so its peer and sender resolve without further server calls.
type Message struct {
	Raw  tg.MessageClass
	ents *Entities
}

func bindMessage(m tg.MessageClass, ents *Entities) *Message {
	return &Message{Raw: m, ents: ents}
}

// ID returns the message ID.
func (m *Message) ID() int {
	return m.Raw.GetID()
}

// Date returns the message timestamp.  Empty messages carry none.
func (m *Message) Date() (time.Time, bool) {
	nm, ok := m.Raw.AsNotEmpty()
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(nm.GetDate()), 0), true
}

// Peer resolves the peer the message was sent to.
func (m *Message) Peer() (PeerEntity, bool) {
	nm, ok := m.Raw.AsNotEmpty()
	if !ok {
		return nil, false
	}
	return m.ents.Peer(nm.GetPeerID())
}

// Sender resolves the message sender.  Channel posts without a signature have
// no sender and resolve to the channel itself.
func (m *Message) Sender() (PeerEntity, bool) {
	nm, ok := m.Raw.AsNotEmpty()
	if !ok {
		return nil, false
	}
	if from, ok := nm.GetFromID(); ok {
		return m.ents.Peer(from)
	}
	return m.ents.Peer(nm.GetPeerID())
}

// messageTable indexes a page's messages by ID, each bound to the page's
// entity table.
func messageTable(msgs []tg.MessageClass, ents *Entities) map[int]*Message {
	table := make(map[int]*Message, len(msgs))
	for _, m := range msgs {
		table[m.GetID()] = bindMessage(m, ents)
	}
	return table
}

// Package peerid normalizes Telegram peer references into comparable
// identifiers.  Users, basic chats and channels live in separate ID spaces on
// the wire; TDLib-style marked IDs fold them into a single int64 space, so two
// references to the same entity always compare equal.
package peerid

import (
	"github.com/gotd/td/constant"
	"github.com/gotd/td/tg"
)

// User returns the normalized ID for a user.
func User(id int64) constant.TDLibPeerID {
	var p constant.TDLibPeerID
	p.User(id)
	return p
}

// Chat returns the normalized ID for a basic group chat.
func Chat(id int64) constant.TDLibPeerID {
	var p constant.TDLibPeerID
	p.Chat(id)
	return p
}

// Channel returns the normalized ID for a channel or supergroup.
func Channel(id int64) constant.TDLibPeerID {
	var p constant.TDLibPeerID
	p.Channel(id)
	return p
}

// FromPeer normalizes a peer reference embedded in a server object.  Zero is
// returned for a nil peer.
func FromPeer(peer tg.PeerClass) constant.TDLibPeerID {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return User(p.UserID)
	case *tg.PeerChat:
		return Chat(p.ChatID)
	case *tg.PeerChannel:
		return Channel(p.ChannelID)
	}
	return 0
}

// FromInputPeer normalizes an input peer.  It reports false for peers that do
// not carry an identity of their own (empty, self).
func FromInputPeer(peer tg.InputPeerClass) (constant.TDLibPeerID, bool) {
	switch p := peer.(type) {
	case *tg.InputPeerUser:
		return User(p.UserID), true
	case *tg.InputPeerUserFromMessage:
		return User(p.UserID), true
	case *tg.InputPeerChat:
		return Chat(p.ChatID), true
	case *tg.InputPeerChannel:
		return Channel(p.ChannelID), true
	case *tg.InputPeerChannelFromMessage:
		return Channel(p.ChannelID), true
	}
	return 0, false
}

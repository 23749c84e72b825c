// Package fixtures provides canned Telegram API objects for tests.
//
// Flagged fields are populated through the generated setters so that the
// conditional flag bits are consistent with what a decoded object would
// carry.
package fixtures

import (
	"strconv"

	"github.com/gotd/td/tg"
)

// User returns a test user.  The access hash is derived from the ID.
func User(id int64) *tg.User {
	u := &tg.User{
		ID:        id,
		FirstName: "User",
		LastName:  strconv.FormatInt(id, 10),
	}
	u.SetAccessHash(id << 4)
	return u
}

// Chat returns a test basic group.
func Chat(id int64) *tg.Chat {
	return &tg.Chat{ID: id, Title: "chat " + strconv.FormatInt(id, 10)}
}

// MigratedChat returns a basic group that was upgraded to the given channel.
func MigratedChat(id, channelID int64) *tg.Chat {
	c := Chat(id)
	c.SetMigratedTo(&tg.InputChannel{ChannelID: channelID, AccessHash: channelID << 4})
	return c
}

// Channel returns a test channel.
func Channel(id int64) *tg.Channel {
	c := &tg.Channel{
		ID:    id,
		Title: "channel " + strconv.FormatInt(id, 10),
	}
	c.SetAccessHash(id << 4)
	return c
}

// Message returns a test message in the given chat.
func Message(id, date int, peer tg.PeerClass) *tg.Message {
	return &tg.Message{
		ID:      id,
		Date:    date,
		PeerID:  peer,
		Message: "message " + strconv.Itoa(id),
	}
}

// Reply returns a test message replying to another message.
func Reply(id, date int, peer tg.PeerClass, replyTo int) *tg.Message {
	m := Message(id, date, peer)
	hdr := &tg.MessageReplyHeader{}
	hdr.SetReplyToMsgID(replyTo)
	m.SetReplyTo(hdr)
	return m
}

// UserDialog returns a dialog with a user.
func UserDialog(userID int64, topMessage int) *tg.Dialog {
	return &tg.Dialog{Peer: &tg.PeerUser{UserID: userID}, TopMessage: topMessage}
}

// ChatDialog returns a dialog with a basic group.
func ChatDialog(chatID int64, topMessage int) *tg.Dialog {
	return &tg.Dialog{Peer: &tg.PeerChat{ChatID: chatID}, TopMessage: topMessage}
}

// ChannelDialog returns a channel dialog carrying a pts value.
func ChannelDialog(channelID int64, topMessage, pts int) *tg.Dialog {
	d := &tg.Dialog{Peer: &tg.PeerChannel{ChannelID: channelID}, TopMessage: topMessage}
	d.SetPts(pts)
	return d
}

// Pinned marks a dialog pinned.
func Pinned(d *tg.Dialog) *tg.Dialog {
	d.SetPinned(true)
	return d
}

// Slice assembles a partial (sliced) dialogs page with an authoritative
// count.
func Slice(count int, dialogs []tg.DialogClass, messages []tg.MessageClass, users []tg.UserClass, chats []tg.ChatClass) *tg.MessagesDialogsSlice {
	return &tg.MessagesDialogsSlice{
		Count:    count,
		Dialogs:  dialogs,
		Messages: messages,
		Users:    users,
		Chats:    chats,
	}
}

// Full assembles a complete (non-sliced) dialogs page.
func Full(dialogs []tg.DialogClass, messages []tg.MessageClass, users []tg.UserClass, chats []tg.ChatClass) *tg.MessagesDialogs {
	return &tg.MessagesDialogs{
		Dialogs:  dialogs,
		Messages: messages,
		Users:    users,
		Chats:    chats,
	}
}

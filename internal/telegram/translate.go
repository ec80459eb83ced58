package telegram

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/slackarchive/internal/ingest"
	"github.com/edgard/slackarchive/internal/model"
	"github.com/edgard/slackarchive/internal/timeline"
)

// Source labels events translated from Telegram updates.
const Source = "telegram"

// Translate maps a Telegram update onto live archive events. A chat becomes
// a channel and a message id becomes the message timestamp, which keeps
// per-chat ordering. A reply becomes a thread reply to the replied-to
// message; reaction updates are diffed into add and remove events.
func Translate(update *models.Update) []ingest.Event {
	switch {
	case update.Message != nil:
		return translateMessage(update.Message)
	case update.EditedMessage != nil:
		msg := update.EditedMessage
		return []ingest.Event{{
			Type:    ingest.EventEdit,
			Channel: ChannelID(msg.Chat.ID),
			TS:      float64(msg.ID),
			Text:    messageText(msg),
		}}
	case update.MessageReaction != nil:
		return translateReaction(update.MessageReaction)
	default:
		return nil
	}
}

// ChannelID is the archive channel id for a Telegram chat.
func ChannelID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func translateMessage(msg *models.Message) []ingest.Event {
	var events []ingest.Event
	for i := range msg.NewChatMembers {
		u := userFromTelegram(&msg.NewChatMembers[i])
		events = append(events, ingest.Event{Type: ingest.EventUserJoined, Member: &u})
	}
	if len(events) > 0 {
		return events
	}

	text := messageText(msg)
	if text == "" {
		return nil
	}

	record := timeline.Raw{
		"type": mustJSON("message"),
		"ts":   mustJSON(timeline.FormatTimestamp(float64(msg.ID))),
		"text": mustJSON(text),
		"date": mustJSON(msg.Date),
	}
	if msg.From != nil {
		record["user"] = mustJSON(strconv.FormatInt(msg.From.ID, 10))
		if msg.From.Username != "" {
			record["username"] = mustJSON(msg.From.Username)
		}
	}
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.ID != msg.ID {
		record["thread_ts"] = mustJSON(timeline.FormatTimestamp(float64(msg.ReplyToMessage.ID)))
	}

	return []ingest.Event{{Type: ingest.EventMessage, Channel: ChannelID(msg.Chat.ID), Record: record}}
}

func translateReaction(r *models.MessageReactionUpdated) []ingest.Event {
	var user string
	switch {
	case r.User != nil:
		user = strconv.FormatInt(r.User.ID, 10)
	case r.ActorChat != nil:
		user = ChannelID(r.ActorChat.ID)
	default:
		return nil
	}

	before := reactionNames(r.OldReaction)
	after := reactionNames(r.NewReaction)
	channel := ChannelID(r.Chat.ID)
	ts := float64(r.MessageID)

	var events []ingest.Event
	for _, name := range before {
		if !slices.Contains(after, name) {
			events = append(events, ingest.Event{
				Type: ingest.EventReactionRemoved, Channel: channel, TS: ts, Reaction: name, User: user,
			})
		}
	}
	for _, name := range after {
		if !slices.Contains(before, name) {
			events = append(events, ingest.Event{
				Type: ingest.EventReactionAdded, Channel: channel, TS: ts, Reaction: name, User: user,
			})
		}
	}
	return events
}

func reactionNames(rs []models.ReactionType) []string {
	names := make([]string, 0, len(rs))
	for _, r := range rs {
		switch {
		case r.ReactionTypeEmoji != nil:
			names = append(names, r.ReactionTypeEmoji.Emoji)
		case r.ReactionTypeCustomEmoji != nil:
			names = append(names, "custom:"+r.ReactionTypeCustomEmoji.CustomEmojiID)
		}
	}
	return names
}

func messageText(msg *models.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func userFromTelegram(u *models.User) model.User {
	realName := strings.TrimSpace(u.FirstName + " " + u.LastName)
	name := u.Username
	if name == "" {
		name = realName
	}
	raw, _ := json.Marshal(u)
	return model.User{ID: strconv.FormatInt(u.ID, 10), Name: name, RealName: realName, Raw: raw}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

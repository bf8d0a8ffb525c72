package ingest

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	"alphafeed/internal/client/telegram"
	"alphafeed/internal/models"
)

var (
	ErrMalformed   = errors.New("malformed chat update")
	ErrUndecodable = errors.New("undecodable update body")
	// ErrMessageNotStored wraps a failed message write. Without the message
	// row Reprocess cannot recover the update.
	ErrMessageNotStored = errors.New("chat message not stored")
)

type Kind string

const (
	KindNew    Kind = "new"
	KindEdited Kind = "edited"
)

const (
	OriginMessage     = "message"
	OriginChannelPost = "channel_post"
)

// Envelope is a normalised update: the canonical message plus how it arrived.
type Envelope struct {
	UpdateID int64
	Kind     Kind
	Origin   string
	Message  models.TelegramMessage
}

// Normalize maps a Bot API update onto the canonical message. Updates without
// a chat id or message id are ErrMalformed; text falls back to the caption.
func Normalize(u telegram.Update) (Envelope, error) {
	env := Envelope{UpdateID: u.UpdateID}
	var m *telegram.Message
	switch {
	case u.Message != nil:
		m, env.Kind, env.Origin = u.Message, KindNew, OriginMessage
	case u.EditedMessage != nil:
		m, env.Kind, env.Origin = u.EditedMessage, KindEdited, OriginMessage
	case u.ChannelPost != nil:
		m, env.Kind, env.Origin = u.ChannelPost, KindNew, OriginChannelPost
	case u.EditedChannelPost != nil:
		m, env.Kind, env.Origin = u.EditedChannelPost, KindEdited, OriginChannelPost
	default:
		return Envelope{}, ErrMalformed
	}
	if m.Chat == nil || m.Chat.ID == 0 || m.MessageID == 0 {
		return Envelope{}, ErrMalformed
	}

	text := m.Text
	if strings.TrimSpace(text) == "" {
		text = m.Caption
	}
	ts := time.Now().UTC()
	if m.Date > 0 {
		ts = time.Unix(m.Date, 0).UTC()
	}

	msg := models.TelegramMessage{
		SourceID:   strconv.FormatInt(m.Chat.ID, 10),
		MessageID:  m.MessageID,
		Text:       text,
		Timestamp:  ts,
		IsBot:      isBot(m),
		SourceName: sourceName(m),
		ChatType:   m.Chat.Type,
		Edited:     env.Kind == KindEdited,
	}
	if m.From != nil {
		id := m.From.ID
		msg.SenderID = &id
		if m.From.Username != "" {
			name := m.From.Username
			msg.SenderUsername = &name
		}
	}
	raw := u.Raw
	if len(raw) == 0 {
		raw, _ = json.Marshal(u)
	}
	msg.RawUpdate = datatypes.JSON(raw)
	env.Message = msg
	return env, nil
}

func isBot(m *telegram.Message) bool {
	return (m.From != nil && m.From.IsBot) || m.ViaBot != nil
}

func sourceName(m *telegram.Message) string {
	switch {
	case m.Chat.Title != "":
		return m.Chat.Title
	case m.Chat.Username != "":
		return "@" + m.Chat.Username
	case m.From != nil && m.From.Username != "":
		return "@" + m.From.Username
	default:
		return strconv.FormatInt(m.Chat.ID, 10)
	}
}

package ingest

import (
	"errors"
	"testing"

	"alphafeed/internal/client/telegram"
)

func TestNormalize(t *testing.T) {
	u := telegram.Update{
		UpdateID: 9,
		EditedMessage: &telegram.Message{
			MessageID: 3,
			Date:      1_700_000_000,
			Chat:      &telegram.Chat{ID: -42, Type: "supergroup", Username: "degens"},
			From:      &telegram.User{ID: 7, Username: "caller"},
			ViaBot:    &telegram.User{ID: 8, IsBot: true},
			Caption:   "TP 2.5",
		},
	}
	env, err := Normalize(u)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	m := env.Message
	if env.Kind != KindEdited || env.Origin != OriginMessage {
		t.Fatalf("kind=%s origin=%s", env.Kind, env.Origin)
	}
	if m.SourceID != "-42" || m.MessageID != 3 || m.Text != "TP 2.5" || !m.Edited {
		t.Fatalf("message=%+v", m)
	}
	if !m.IsBot || m.SourceName != "@degens" || m.ChatType != "supergroup" {
		t.Fatalf("message=%+v", m)
	}
	if m.SenderID == nil || *m.SenderID != 7 || m.SenderUsername == nil || *m.SenderUsername != "caller" {
		t.Fatalf("sender=%v/%v", m.SenderID, m.SenderUsername)
	}
	if m.Timestamp.Unix() != 1_700_000_000 {
		t.Fatalf("timestamp=%v", m.Timestamp)
	}
	if len(m.RawUpdate) == 0 {
		t.Fatalf("expected raw update")
	}
}

func TestNormalize_Malformed(t *testing.T) {
	for _, u := range []telegram.Update{
		{},
		{Message: &telegram.Message{MessageID: 1}},
		{ChannelPost: &telegram.Message{Chat: &telegram.Chat{ID: 1}}},
	} {
		if _, err := Normalize(u); !errors.Is(err, ErrMalformed) {
			t.Fatalf("err=%v want ErrMalformed", err)
		}
	}
}

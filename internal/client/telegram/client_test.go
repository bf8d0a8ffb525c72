package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGetUpdates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/getUpdates" {
			t.Errorf("path=%s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["offset"].(float64) != 11 || body["timeout"].(float64) != 5 {
			t.Errorf("body=%v", body)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[
			{"update_id":11,"channel_post":{"message_id":7,"date":1700000000,"chat":{"id":-100123,"type":"channel","title":"Alpha"},"text":"BUY $SOL"}},
			{"update_id":12,"message":"not an object"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "TOKEN")
	got, err := c.GetUpdates(context.Background(), 11, 100, 5*time.Second)
	if err != nil {
		t.Fatalf("getUpdates: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d want 2", len(got))
	}
	if got[0].ChannelPost == nil || got[0].ChannelPost.Text != "BUY $SOL" || got[0].ChannelPost.Chat.ID != -100123 {
		t.Fatalf("unexpected first update %+v", got[0])
	}
	if len(got[0].Raw) == 0 {
		t.Fatalf("expected raw payload to be kept")
	}
	if got[1].UpdateID != 12 || got[1].Message != nil {
		t.Fatalf("undecodable update should keep only its id: %+v", got[1])
	}
}

func TestCall_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
		case strings.HasPrefix(r.URL.Path, "/botBAD/"):
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(srv.Client(), srv.URL, "TOKEN")
	if err := c.SetWebhook(ctx, "https://example.com/hook", "s3cret"); err != nil {
		t.Fatalf("setWebhook: %v", err)
	}

	err := c.SendMessage(ctx, "42", "hi")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 400 || !strings.Contains(apiErr.Desc, "chat not found") {
		t.Fatalf("err=%v", err)
	}
	if err := c.SendMessage(ctx, "", "hi"); err == nil {
		t.Fatalf("expected error for empty chat id")
	}

	bad := NewClient(srv.Client(), srv.URL, "BAD")
	if err := bad.DeleteWebhook(ctx); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err=%v want ErrUnauthorized", err)
	}

	none := NewClient(nil, srv.URL, "")
	if _, err := none.GetUpdates(ctx, 0, 0, 0); !errors.Is(err, ErrNoToken) {
		t.Fatalf("err=%v want ErrNoToken", err)
	}
}

package viber

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/bus-ticketing-crm/internal/conversation"
	"github.com/iliyamo/bus-ticketing-crm/internal/model"
	"github.com/iliyamo/bus-ticketing-crm/internal/notify"
)

type apiStub struct {
	mu     sync.Mutex
	status int
	bodies []outMessage
	tokens []string
}

func (s *apiStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var m outMessage
		_ = json.Unmarshal(raw, &m)
		s.mu.Lock()
		s.bodies = append(s.bodies, m)
		s.tokens = append(s.tokens, r.Header.Get(AuthHeader))
		status := s.status
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(apiResponse{Status: status, StatusMessage: "stub"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fakeConversation struct {
	events  []conversation.Event
	replies []conversation.Reply
}

func (f *fakeConversation) HandleEvent(_ context.Context, p model.Platform, _ string, ev conversation.Event) ([]conversation.Reply, error) {
	if p != model.PlatformViber {
		return nil, errors.New("wrong platform")
	}
	f.events = append(f.events, ev)
	return f.replies, nil
}

func TestSendStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{0, nil},
		{5, notify.ErrUserUnreachable},
		{6, notify.ErrUserUnreachable},
		{2, notify.ErrChannelUnavailable},
	}
	for _, tt := range tests {
		stub := &apiStub{status: tt.status}
		srv := stub.server(t)
		b := New(Config{Token: "tok", Name: "Bus CRM", BaseURL: srv.URL}, nil, nil, zerolog.Nop())
		err := b.Send(context.Background(), "user==", "hello")
		if tt.want == nil && err != nil {
			t.Fatalf("status %d: err = %v", tt.status, err)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Fatalf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
		if stub.tokens[0] != "tok" || stub.bodies[0].Receiver != "user==" || stub.bodies[0].Text != "hello" {
			t.Fatalf("request = %+v token=%s", stub.bodies[0], stub.tokens[0])
		}
	}
}

func TestSendUnreachableServer(t *testing.T) {
	b := New(Config{Token: "tok", BaseURL: "http://127.0.0.1:1"}, nil, nil, zerolog.Nop())
	if err := b.Send(context.Background(), "u", "x"); !errors.Is(err, notify.ErrChannelUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func post(t *testing.T, h echo.HandlerFunc, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/viber", strings.NewReader(body))
	req.Header.Set(SignatureHeader, signature)
	rec := httptest.NewRecorder()
	if err := h(echo.New().NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestWebhookMessage(t *testing.T) {
	stub := &apiStub{}
	srv := stub.server(t)
	conv := &fakeConversation{replies: []conversation.Reply{{
		Text:    "Оберіть місце",
		Columns: 5,
		Options: []conversation.Option{{Label: "✅1", Data: "seat:1"}, {Label: "❌2", Data: "seat:2"}},
	}}}
	b := New(Config{Token: "tok", BaseURL: srv.URL}, conv, nil, zerolog.Nop())
	h := b.WebhookHandler()

	body := `{"event":"message","timestamp":1,"message_token":5,"sender":{"id":"abc==","name":"Olena"},"message":{"type":"text","text":"trip:3"}}`
	if rec := post(t, h, body, "deadbeef"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature status = %d", rec.Code)
	}
	if rec := post(t, h, body, Sign("tok", []byte(body))); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(conv.events) != 1 || conv.events[0].Callback != "trip:3" || conv.events[0].Text != "" {
		t.Fatalf("events = %+v", conv.events)
	}
	sent := stub.bodies[0]
	if sent.Receiver != "abc==" || sent.Keyboard == nil || len(sent.Keyboard.Buttons) != 2 {
		t.Fatalf("sent = %+v", sent)
	}
	if btn := sent.Keyboard.Buttons[1]; btn.ActionBody != "seat:2" || btn.ActionType != "reply" || btn.Columns != 1 {
		t.Fatalf("button = %+v", btn)
	}

	contact := `{"event":"message","sender":{"id":"abc=="},"message":{"type":"contact","contact":{"phone_number":"380501234567"}}}`
	post(t, h, contact, Sign("tok", []byte(contact)))
	if conv.events[1].Contact != "380501234567" {
		t.Fatalf("contact event = %+v", conv.events[1])
	}
}

func TestWebhookConversationStarted(t *testing.T) {
	b := New(Config{Token: "tok", Name: "Bus CRM", BaseURL: "http://unused"}, nil, nil, zerolog.Nop())
	body := `{"event":"conversation_started","user":{"id":"u1","name":"A"}}`
	rec := post(t, b.WebhookHandler(), body, Sign("tok", []byte(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var welcome outMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &welcome); err != nil {
		t.Fatal(err)
	}
	if welcome.Text != b.msg.Welcome || welcome.Sender.Name != "Bus CRM" || len(welcome.Keyboard.Buttons) != 4 {
		t.Fatalf("welcome = %+v", welcome)
	}
}

package discord

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/zulandar/lectern/internal/notify"
)

type mockSession struct {
	mu   sync.Mutex
	sent []*discordgo.MessageSend
	errs []error
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	m.sent = append(m.sent, data)
	return &discordgo.Message{ID: "m1", ChannelID: channelID}, nil
}

func rateLimited() error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}
}

func newTestPoster(t *testing.T, sess session) *Poster {
	t.Helper()
	p, err := New(Opts{ChannelID: "chan-1", Session: sess})
	if err != nil {
		t.Fatal(err)
	}
	p.baseBackoff = time.Millisecond
	p.maxBackoff = time.Millisecond
	return p
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{ChannelID: "c"}); err == nil {
		t.Error("expected error without a bot token")
	}
	if _, err := New(Opts{BotToken: "tok"}); err == nil {
		t.Error("expected error without a channel")
	}
}

func TestSend(t *testing.T) {
	mock := &mockSession{}
	p := newTestPoster(t, mock)
	msg := notify.Message{Text: "Optimizer: 2 items awaiting approval", Events: []notify.Event{
		{Title: "Optimizer", Color: notify.ColorInfo, Fields: []notify.Field{{Name: "Rescored", Value: "3", Short: true}}},
	}}
	if err := p.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(mock.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(mock.sent))
	}
	got := mock.sent[0]
	if got.Content != msg.Text {
		t.Errorf("content = %q", got.Content)
	}
	if len(got.Embeds) != 1 || got.Embeds[0].Color != 0x2196f3 {
		t.Errorf("embeds = %+v", got.Embeds)
	}
	if !got.Embeds[0].Fields[0].Inline {
		t.Error("short field should be inline")
	}
}

func TestSend_RetriesRateLimit(t *testing.T) {
	mock := &mockSession{errs: []error{rateLimited(), rateLimited(), nil}}
	p := newTestPoster(t, mock)
	if err := p.Send(context.Background(), notify.Message{Text: "x"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(mock.sent) != 1 {
		t.Errorf("sent %d, want 1", len(mock.sent))
	}
}

func TestSend_OtherErrorNotRetried(t *testing.T) {
	mock := &mockSession{errs: []error{fmt.Errorf("missing access"), nil}}
	p := newTestPoster(t, mock)
	if err := p.Send(context.Background(), notify.Message{Text: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if len(mock.errs) != 1 {
		t.Error("non rate limit errors must not be retried")
	}
}

func TestRetryOnRateLimit_ExhaustsRetries(t *testing.T) {
	p := newTestPoster(t, &mockSession{})
	calls := 0
	err := p.retryOnRateLimit(context.Background(), func() error {
		calls++
		return rateLimited()
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != maxRetries+1 {
		t.Errorf("calls = %d, want %d", calls, maxRetries+1)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"#36a64f", 0x36a64f},
		{"E53935", 0xe53935},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseHexColor(tt.in); got != tt.want {
			t.Errorf("parseHexColor(%q) = %x, want %x", tt.in, got, tt.want)
		}
	}
}

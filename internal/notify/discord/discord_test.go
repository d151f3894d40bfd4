package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/notify"
	"github.com/bwmarrin/discordgo"
)

// mockSession records sent embeds.
type mockSession struct {
	channels []string
	embeds   []*discordgo.MessageEmbed
	sendErr  error
	closed   bool
}

func (m *mockSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.channels = append(m.channels, channelID)
	m.embeds = append(m.embeds, embed)
	return &discordgo.Message{}, nil
}

func (m *mockSession) Close() error {
	m.closed = true
	return nil
}

func TestNew_RequiresChannel(t *testing.T) {
	_, err := New(AdapterOpts{BotToken: "token"})
	if err == nil {
		t.Fatal("expected error for missing channel id")
	}
}

func TestSend_PostsEmbed(t *testing.T) {
	mock := &mockSession{}
	a, err := New(AdapterOpts{ChannelID: "456", Session: mock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ev := notify.FormattedEvent{
		Title:  "Assistant run completed",
		Body:   "done",
		Color:  notify.ColorSuccess,
		Fields: []notify.Field{{Name: "Project", Value: "p1", Short: true}},
	}
	if err := a.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(mock.embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(mock.embeds))
	}
	e := mock.embeds[0]
	if e.Title != "Assistant run completed" || e.Color != 0x36a64f {
		t.Errorf("embed = %+v", e)
	}
	if len(e.Fields) != 1 || !e.Fields[0].Inline {
		t.Errorf("fields = %+v", e.Fields)
	}
}

func TestSend_Error(t *testing.T) {
	mock := &mockSession{sendErr: errors.New("missing access")}
	a, _ := New(AdapterOpts{ChannelID: "456", Session: mock})
	if err := a.Send(context.Background(), notify.FormattedEvent{Title: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestClose(t *testing.T) {
	mock := &mockSession{}
	a, _ := New(AdapterOpts{ChannelID: "456", Session: mock})
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !mock.closed {
		t.Error("session not closed")
	}
}

func TestColorValue(t *testing.T) {
	if v := colorValue("#36a64f"); v != 0x36a64f {
		t.Errorf("colorValue = %#x", v)
	}
	if v := colorValue("not-a-color"); v != 0 {
		t.Errorf("colorValue = %d, want 0", v)
	}
}

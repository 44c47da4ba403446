package notify

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
)

// mockDiscordSession records sent embeds.
type mockDiscordSession struct {
	channels []string
	embeds   []*discordgo.MessageEmbed
	closed   bool
}

func (m *mockDiscordSession) Open() error  { return nil }
func (m *mockDiscordSession) Close() error { m.closed = true; return nil }
func (m *mockDiscordSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.channels = append(m.channels, channelID)
	m.embeds = append(m.embeds, embed)
	return &discordgo.Message{ID: "1"}, nil
}

func TestNewDiscordSink_Validation(t *testing.T) {
	if _, err := NewDiscordSink(DiscordOpts{ChannelID: "123"}); err == nil {
		t.Error("expected error without token or session")
	}
	if _, err := NewDiscordSink(DiscordOpts{Session: &mockDiscordSession{}}); err == nil {
		t.Error("expected error without channel")
	}
}

func TestDiscordSink_Send(t *testing.T) {
	mock := &mockDiscordSession{}
	sink, err := NewDiscordSink(DiscordOpts{Session: mock, ChannelID: "123"})
	if err != nil {
		t.Fatal(err)
	}

	msg := formatEvent("analysis completed", "250101_120000", "3 files analyzed")
	if err := sink.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(mock.embeds) != 1 || mock.channels[0] != "123" {
		t.Fatalf("embeds = %d, channels = %v", len(mock.embeds), mock.channels)
	}
	embed := mock.embeds[0]
	if embed.Title != "Monitoring analysis completed" {
		t.Errorf("Title = %q", embed.Title)
	}
	if embed.Color != 0x36a64f {
		t.Errorf("Color = %#x, want success green", embed.Color)
	}
	if len(embed.Fields) != 2 || embed.Fields[0].Value != "250101_120000" {
		t.Errorf("Fields = %+v", embed.Fields)
	}

	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	if !mock.closed {
		t.Error("Close did not reach the session")
	}
}

func TestHexColorToInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"#36a64f", 0x36a64f},
		{"2196f3", 0x2196f3},
		{"not-a-color", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := hexColorToInt(tt.in); got != tt.want {
			t.Errorf("hexColorToInt(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

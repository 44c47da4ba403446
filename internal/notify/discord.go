package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// discordSession abstracts the discordgo.Session methods we use, enabling
// test mocks.
type discordSession interface {
	Open() error
	Close() error
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// realDiscordSession wraps *discordgo.Session to implement discordSession.
type realDiscordSession struct {
	s *discordgo.Session
}

func (r *realDiscordSession) Open() error  { return r.s.Open() }
func (r *realDiscordSession) Close() error { return r.s.Close() }
func (r *realDiscordSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSendEmbed(channelID, embed, options...)
}

// DiscordSink posts lifecycle events to one Discord channel as embeds.
type DiscordSink struct {
	sess      discordSession
	channelID string
}

// DiscordOpts holds parameters for creating a DiscordSink.
type DiscordOpts struct {
	BotToken  string // Discord bot token
	ChannelID string // channel to post to
	// For testing: inject a mock session instead of the real Discord API.
	Session discordSession
}

// NewDiscordSink creates a Discord sink. With a real token the Gateway
// connection is opened eagerly so send failures surface at startup.
func NewDiscordSink(opts DiscordOpts) (*DiscordSink, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify: discord bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: discord channel is required")
	}

	d := &DiscordSink{sess: opts.Session, channelID: opts.ChannelID}
	if d.sess == nil {
		dg, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("notify: create discord session: %w", err)
		}
		d.sess = &realDiscordSession{s: dg}
		if err := d.sess.Open(); err != nil {
			return nil, fmt.Errorf("notify: open discord gateway: %w", err)
		}
	}
	return d, nil
}

// Name identifies the sink in logs.
func (d *DiscordSink) Name() string { return "discord" }

// Send posts the message as a single embed.
func (d *DiscordSink) Send(ctx context.Context, msg Message) error {
	embed := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Body,
		Color:       hexColorToInt(msg.Color),
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Short,
		})
	}

	if _, err := d.sess.ChannelMessageSendEmbed(d.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("notify: discord send embed: %w", err)
	}
	return nil
}

// Close shuts down the Gateway connection.
func (d *DiscordSink) Close() error {
	return d.sess.Close()
}

// hexColorToInt converts a "#rrggbb" color hint to Discord's integer form.
func hexColorToInt(hex string) int {
	hex = strings.TrimPrefix(hex, "#")
	v, err := strconv.ParseInt(hex, 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}

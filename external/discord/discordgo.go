package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/foxseedlab/livescribe/internal/remote"
	"github.com/foxseedlab/livescribe/internal/transcript"
)

const (
	messageMaxChars = 2000
	// Longer transcripts are attached as a text file instead of flooding the channel.
	maxMessagesPerEntry = 4
)

// ChannelStore posts each transcribed segment to a text channel.
type ChannelStore struct {
	session   *discordgo.Session
	channelID string
}

func NewChannelStore(token, channelID string) (*ChannelStore, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &ChannelStore{session: s, channelID: channelID}, nil
}

func (c *ChannelStore) Name() string {
	return "discord"
}

// Check verifies the channel is reachable with the configured token.
func (c *ChannelStore) Check(ctx context.Context) error {
	ch, err := c.session.Channel(c.channelID, discordgo.WithContext(ctx))
	if err != nil {
		if isRESTNotFound(err) {
			return fmt.Errorf("discord channel %s not found", c.channelID)
		}
		return fmt.Errorf("fetch discord channel: %w", err)
	}
	if ch.Type != discordgo.ChannelTypeGuildText && ch.Type != discordgo.ChannelTypeGuildNews {
		return fmt.Errorf("discord channel %s is not a text channel", c.channelID)
	}
	return nil
}

func (c *ChannelStore) Append(ctx context.Context, e remote.Entry) error {
	body := formatEntry(e)
	parts := splitMessage(body, messageMaxChars)
	if len(parts) > maxMessagesPerEntry {
		return c.sendAsFile(ctx, e, body)
	}
	for _, p := range parts {
		if _, err := c.session.ChannelMessageSend(c.channelID, p, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

func (c *ChannelStore) sendAsFile(ctx context.Context, e remote.Entry, body string) error {
	_, err := c.session.ChannelMessageSendComplex(c.channelID, &discordgo.MessageSend{
		Content: entryHeading(e),
		Files: []*discordgo.File{
			{Name: strings.TrimSuffix(e.Segment, fileExt(e.Segment)) + ".txt", ContentType: "text/plain", Reader: bytes.NewReader([]byte(body))},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send discord file: %w", err)
	}
	return nil
}

func entryHeading(e remote.Entry) string {
	h := fmt.Sprintf("**%s** (%s, %d utterances)", e.Segment, transcript.FormatSeconds(e.Duration), e.Utterances)
	if e.Degraded {
		h += " [degraded]"
	}
	return h
}

func formatEntry(e remote.Entry) string {
	return entryHeading(e) + "\n" + e.TimestampedText
}

// splitMessage cuts s into pieces of at most limit runes, preferring line
// breaks, then spaces.
func splitMessage(s string, limit int) []string {
	var parts []string
	for utf8.RuneCountInString(s) > limit {
		cut := runeOffset(s, limit)
		if i := strings.LastIndexByte(s[:cut], '\n'); i > 0 {
			cut = i
		} else if i := strings.LastIndexByte(s[:cut], ' '); i > 0 {
			cut = i
		}
		parts = append(parts, s[:cut])
		s = strings.TrimLeft(s[cut:], "\n ")
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}

func runeOffset(s string, n int) int {
	i := 0
	for range n {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i
}

func fileExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}

func isRESTNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

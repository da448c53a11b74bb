// Package discord implements platform.Platform on top of discordgo.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/ksteinfeldt/wipbot/internal/platform"
)

// Intents the bot needs: member join/leave, guild and direct messages,
// and message content for the update listener.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

// membersPage is the largest page the member list endpoint returns.
const membersPage = 1000

// Client is a connected bot session scoped to one guild.
type Client struct {
	session *discordgo.Session
	guildID string
	logger  *slog.Logger
	remove  []func()
}

var _ platform.Platform = (*Client)(nil)

// New creates a Client. The session is not opened until Open.
func New(token, guildID string, logger *slog.Logger) (*Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	s.Identify.Intents = Intents
	return &Client{
		session: s,
		guildID: guildID,
		logger:  logger.With("component", "discord"),
	}, nil
}

// Open registers h for gateway events and connects. Events are
// dispatched with ctx.
func (c *Client) Open(ctx context.Context, h platform.Handler) error {
	c.remove = append(c.remove,
		c.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.GuildMemberAdd) {
			if ev.Member == nil || ev.GuildID != c.guildID {
				return
			}
			h.MemberJoined(ctx, memberEvent(ev.Member))
		}),
		c.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.GuildMemberRemove) {
			if ev.Member == nil || ev.GuildID != c.guildID {
				return
			}
			h.MemberLeft(ctx, memberEvent(ev.Member))
		}),
		c.session.AddHandler(func(s *discordgo.Session, ev *discordgo.MessageCreate) {
			if ev.Message == nil || ev.Author == nil {
				return
			}
			if s.State != nil && s.State.User != nil && ev.Author.ID == s.State.User.ID {
				return
			}
			if ev.GuildID != "" && ev.GuildID != c.guildID {
				return
			}
			h.MessageReceived(ctx, messageEvent(ev.Message))
		}),
		c.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.Ready) {
			c.logger.Info("connected", "user", ev.User.Username, "guilds", len(ev.Guilds))
		}),
	)

	if err := c.session.Open(); err != nil {
		return platform.Wrap("Open", err)
	}
	return nil
}

// Close disconnects and drops the event handlers.
func (c *Client) Close() error {
	for _, rm := range c.remove {
		rm()
	}
	c.remove = nil
	return c.session.Close()
}

func memberEvent(m *discordgo.Member) platform.MemberEvent {
	ev := platform.MemberEvent{Name: m.Nick}
	if m.User != nil {
		ev.UserID = m.User.ID
		ev.Bot = m.User.Bot
		if ev.Name == "" {
			ev.Name = displayName(m.User)
		}
	}
	return ev
}

func messageEvent(m *discordgo.Message) platform.MessageEvent {
	ev := platform.MessageEvent{
		ChannelID:  m.ChannelID,
		MessageID:  m.ID,
		AuthorID:   m.Author.ID,
		AuthorName: displayName(m.Author),
		AuthorBot:  m.Author.Bot,
		Direct:     m.GuildID == "",
		Text:       m.Content,
	}
	if m.Member != nil {
		ev.AuthorRoles = m.Member.Roles
		if m.Member.Nick != "" {
			ev.AuthorName = m.Member.Nick
		}
	}
	return ev
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// wrap classifies a REST failure: 403 responses wrap
// platform.ErrForbidden so callers can tell permission problems apart.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if statusOf(err) == http.StatusForbidden {
		err = fmt.Errorf("%w: %v", platform.ErrForbidden, err)
	}
	return platform.Wrap(op, err)
}

func statusOf(err error) int {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return rest.Response.StatusCode
	}
	return 0
}

func toPermissions(p platform.Permission) int64 {
	var out int64
	if p.Has(platform.PermViewChannel) {
		out |= discordgo.PermissionViewChannel
	}
	if p.Has(platform.PermSendMessages) {
		out |= discordgo.PermissionSendMessages
	}
	if p.Has(platform.PermManageChannels) {
		out |= discordgo.PermissionManageChannels
	}
	if p.Has(platform.PermManageMessages) {
		out |= discordgo.PermissionManageMessages
	}
	return out
}

// toOverwrites maps overwrites onto the wire form. The everyone role
// shares its ID with the guild.
func toOverwrites(guildID string, in []platform.Overwrite) []*discordgo.PermissionOverwrite {
	out := make([]*discordgo.PermissionOverwrite, 0, len(in))
	for _, ow := range in {
		po := &discordgo.PermissionOverwrite{
			ID:    ow.ID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: toPermissions(ow.Allow),
			Deny:  toPermissions(ow.Deny),
		}
		switch ow.Kind {
		case platform.TargetEveryone:
			po.ID = guildID
		case platform.TargetMember:
			po.Type = discordgo.PermissionOverwriteTypeMember
		}
		out = append(out, po)
	}
	return out
}

package discord

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/ksteinfeldt/wipbot/internal/platform"
)

var errNotConnected = errors.New("session not connected")

func (c *Client) CreateWorkspace(ctx context.Context, name string, overwrites []platform.Overwrite) (string, error) {
	ch, err := c.session.GuildChannelCreateComplex(c.guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildCategory,
		PermissionOverwrites: toOverwrites(c.guildID, overwrites),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", wrap("CreateWorkspace", err)
	}
	return ch.ID, nil
}

func (c *Client) CreateChannel(ctx context.Context, workspaceID, name string) (string, error) {
	ch, err := c.session.GuildChannelCreateComplex(c.guildID, discordgo.GuildChannelCreateData{
		Name:     name,
		Type:     discordgo.ChannelTypeGuildText,
		ParentID: workspaceID,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", wrap("CreateChannel", err)
	}
	return ch.ID, nil
}

func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := c.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return wrap("DeleteChannel", err)
}

// DeleteWorkspace deletes the category. Discord moves any remaining
// children to the top level rather than deleting them.
func (c *Client) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	_, err := c.session.ChannelDelete(workspaceID, discordgo.WithContext(ctx))
	return wrap("DeleteWorkspace", err)
}

func (c *Client) LookupRole(ctx context.Context, name string) (string, bool, error) {
	roles, err := c.session.GuildRoles(c.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", false, wrap("LookupRole", err)
	}
	for _, r := range roles {
		if r.Name == name {
			return r.ID, true, nil
		}
	}
	return "", false, nil
}

// CategoryOfChannel reports ok=false for a deleted channel or one
// outside any category.
func (c *Client) CategoryOfChannel(ctx context.Context, channelID string) (string, bool, error) {
	ch, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return "", false, nil
		}
		return "", false, wrap("CategoryOfChannel", err)
	}
	if ch.ParentID == "" {
		return "", false, nil
	}
	return ch.ParentID, true, nil
}

// CanManageChannels checks the bot's guild-level permissions: guild
// owner, administrator, or a role granting Manage Channels.
func (c *Client) CanManageChannels(ctx context.Context) (bool, error) {
	if c.session.State == nil || c.session.State.User == nil {
		return false, wrap("CanManageChannels", errNotConnected)
	}
	self := c.session.State.User.ID

	guild, err := c.session.Guild(c.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false, wrap("CanManageChannels", err)
	}
	if guild.OwnerID == self {
		return true, nil
	}
	member, err := c.session.GuildMember(c.guildID, self, discordgo.WithContext(ctx))
	if err != nil {
		return false, wrap("CanManageChannels", err)
	}
	roles, err := c.session.GuildRoles(c.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false, wrap("CanManageChannels", err)
	}
	return canManage(c.guildID, member.Roles, roles), nil
}

// canManage folds the everyone role and the member's roles into one
// permission set.
func canManage(guildID string, memberRoles []string, roles []*discordgo.Role) bool {
	held := make(map[string]bool, len(memberRoles)+1)
	held[guildID] = true
	for _, id := range memberRoles {
		held[id] = true
	}

	var perms int64
	for _, r := range roles {
		if held[r.ID] {
			perms |= r.Permissions
		}
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return perms&discordgo.PermissionManageChannels != 0
}

func (c *Client) SendMessage(ctx context.Context, channelID, text string) (string, error) {
	m, err := c.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return "", wrap("SendMessage", err)
	}
	return m.ID, nil
}

func (c *Client) SendDirect(ctx context.Context, userID, text string) (string, error) {
	ch, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", wrap("SendDirect", err)
	}
	m, err := c.session.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx))
	if err != nil {
		return "", wrap("SendDirect", err)
	}
	return m.ID, nil
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID, text string) error {
	_, err := c.session.ChannelMessageEdit(channelID, messageID, text, discordgo.WithContext(ctx))
	return wrap("EditMessage", err)
}

func (c *Client) PinMessage(ctx context.Context, channelID, messageID string) error {
	return wrap("PinMessage", c.session.ChannelMessagePin(channelID, messageID, discordgo.WithContext(ctx)))
}

func (c *Client) FetchMessage(ctx context.Context, channelID, messageID string) (string, error) {
	m, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return "", wrap("FetchMessage", err)
	}
	return m.Content, nil
}

// Members pages through the guild member list.
func (c *Client) Members(ctx context.Context) ([]platform.Member, error) {
	var out []platform.Member
	after := ""
	for {
		page, err := c.session.GuildMembers(c.guildID, after, membersPage, discordgo.WithContext(ctx))
		if err != nil {
			return nil, wrap("Members", err)
		}
		for _, m := range page {
			if m.User == nil {
				continue
			}
			ev := memberEvent(m)
			out = append(out, platform.Member{ID: ev.UserID, Name: ev.Name, Bot: ev.Bot})
			after = m.User.ID
		}
		if len(page) < membersPage {
			return out, nil
		}
	}
}

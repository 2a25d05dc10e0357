/**
 * @description
 * Chat platform adapter over a discordgo session. Guilds, members, roles and channels
 * are always addressed by snowflake ID.
 *
 * discordgo drops a guild from its state on every GuildDelete, outages included, and a
 * fresh Ready lists every guild as unavailable. The adapter remembers those guilds so an
 * outage is never reported as the bot leaving.
 */
package discordplatform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Platform implements the chat platform operations used by the service.
type Platform struct {
	session *discordgo.Session

	mu          sync.RWMutex
	unavailable map[string]struct{}
}

// New wraps an opened or unopened session.
func New(session *discordgo.Session) *Platform {
	return &Platform{session: session, unavailable: make(map[string]struct{})}
}

// TrackAvailability registers the gateway handlers that keep GuildIDs accurate across
// outages. Call it before opening the session.
func (p *Platform) TrackAvailability() {
	p.session.AddHandler(p.onReady)
	p.session.AddHandler(p.onGuildCreate)
	p.session.AddHandler(p.onGuildDelete)
}

func (p *Platform) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, g := range r.Guilds {
		if g.Unavailable {
			p.unavailable[g.ID] = struct{}{}
		}
	}
}

func (p *Platform) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	p.mu.Lock()
	delete(p.unavailable, g.ID)
	p.mu.Unlock()
}

func (p *Platform) onGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Guild == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if g.Unavailable {
		p.unavailable[g.ID] = struct{}{}
		return
	}
	delete(p.unavailable, g.ID)
}

// MemberHasRole reports whether the member currently holds roleID, preferring the gateway cache.
func (p *Platform) MemberHasRole(ctx context.Context, guildID, memberID, roleID string) (bool, error) {
	member, err := p.session.State.Member(guildID, memberID)
	if err != nil || member == nil {
		member, err = p.session.GuildMember(guildID, memberID, discordgo.WithContext(ctx))
		if err != nil {
			return false, fmt.Errorf("failed to fetch member %s: %w", memberID, err)
		}
	}
	return slices.Contains(member.Roles, roleID), nil
}

// AddMemberRole grants roleID to the member. Discord treats re-adding a held role as a no-op.
func (p *Platform) AddMemberRole(ctx context.Context, guildID, memberID, roleID string) error {
	if err := p.session.GuildMemberRoleAdd(guildID, memberID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to add role %s to member %s: %w", roleID, memberID, err)
	}
	return nil
}

// SendChannelMessage posts content to a channel. Only user mentions ping; role mentions render silently.
func (p *Platform) SendChannelMessage(ctx context.Context, channelID, content string) error {
	_, err := p.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: content,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to send message to channel %s: %w", channelID, err)
	}
	return nil
}

// ChannelExists reports whether channelID still exists and is visible to the bot.
func (p *Platform) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	if ch, err := p.session.State.Channel(channelID); err == nil && ch != nil {
		return true, nil
	}
	if _, err := p.session.Channel(channelID, discordgo.WithContext(ctx)); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to fetch channel %s: %w", channelID, err)
	}
	return true, nil
}

// GuildIDs lists the guilds the bot belongs to as far as the gateway knows, counting
// guilds that are only unavailable. It is empty until the session is ready.
func (p *Platform) GuildIDs() []string {
	seen := make(map[string]struct{})

	state := p.session.State
	state.RLock()
	for _, g := range state.Guilds {
		seen[g.ID] = struct{}{}
	}
	state.RUnlock()

	p.mu.RLock()
	for id := range p.unavailable {
		seen[id] = struct{}{}
	}
	p.mu.RUnlock()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids
}

// IsMember asks Discord directly whether the bot still belongs to guildID.
func (p *Platform) IsMember(ctx context.Context, guildID string) (bool, error) {
	if _, err := p.session.Guild(guildID, discordgo.WithContext(ctx)); err != nil {
		if isRemovedFromGuild(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to fetch guild %s: %w", guildID, err)
	}
	return true, nil
}

func isRemovedFromGuild(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return false
	}
	switch restErr.Message.Code {
	case discordgo.ErrCodeUnknownGuild, discordgo.ErrCodeMissingAccess:
		return true
	}
	return false
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return true
	}
	return restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownChannel
}

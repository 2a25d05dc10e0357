/**
 * @description
 * Discord gateway glue. Events are translated into app calls; the app layer owns every
 * decision and message text.
 */
package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/Salmandabbakuti/xenea-discord-bot/internal/app"
	"github.com/bwmarrin/discordgo"
)

const handlerTimeout = 15 * time.Second

// Intents required by the handlers below.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsGuildMessages

// Bot dispatches gateway events.
type Bot struct {
	session   *discordgo.Session
	appID     string
	commands  *app.Commands
	lifecycle *app.Lifecycle
	logger    *slog.Logger
}

// New creates a bot over session. Call Register before opening the session.
func New(session *discordgo.Session, appID string, commands *app.Commands, lifecycle *app.Lifecycle, logger *slog.Logger) *Bot {
	return &Bot{
		session:   session,
		appID:     appID,
		commands:  commands,
		lifecycle: lifecycle,
		logger:    logger,
	}
}

// Register installs the event handlers and gateway intents.
func (b *Bot) Register() {
	b.session.Identify.Intents = Intents
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildCreate)
	b.session.AddHandler(b.onGuildDelete)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onInteractionCreate)
}

// DeployCommands overwrites the guild's slash commands.
func (b *Bot) DeployCommands(ctx context.Context, guildID string) error {
	_, err := b.session.ApplicationCommandBulkOverwrite(b.appID, guildID, ApplicationCommands(), discordgo.WithContext(ctx))
	return err
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("discord gateway ready", "user", r.User.Username, "guilds", len(r.Guilds))
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Unavailable {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := b.DeployCommands(ctx, g.ID); err != nil {
		b.lifecycle.CommandsDeployFailed(ctx, g.ID, g.Name, err)
		return
	}
	b.logger.Info("deployed commands", "guild_id", g.ID, "guild", g.Name)
}

func (b *Bot) onGuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	// Outages also emit GuildDelete with Unavailable set; the bot is still a member then.
	if g.Unavailable {
		b.logger.Warn("guild became unavailable", "guild_id", g.ID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := b.lifecycle.GuildRemoved(ctx, g.ID); err != nil {
		b.logger.Error("failed to clean up removed guild", "guild_id", g.ID, "error", err)
	}
}

func (b *Bot) onGuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil || m.User.Bot {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := b.lifecycle.MemberJoined(ctx, m.GuildID, m.User.ID); err != nil {
		b.logger.Error("failed to welcome member", "guild_id", m.GuildID, "member_id", m.User.ID, "error", err)
	}
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" || m.Type != discordgo.MessageTypeDefault {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	reply, ok, err := b.lifecycle.GateChannelReply(ctx, m.GuildID, m.ChannelID)
	if err != nil {
		b.logger.Error("failed to resolve gate channel", "guild_id", m.GuildID, "error", err)
		return
	}
	if !ok {
		return
	}
	if _, err := s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference(), discordgo.WithContext(ctx)); err != nil {
		b.logger.Error("failed to reply in gate channel", "guild_id", m.GuildID, "error", err)
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	data := i.ApplicationCommandData()
	logger := b.logger.With("guild_id", i.GuildID, "member_id", i.Member.User.ID, "command", data.Name)
	logger.Info("interaction received")

	inv := app.Invoker{GuildID: i.GuildID, UserID: i.Member.User.ID, OwnerID: b.guildOwner(ctx, i.GuildID)}

	var (
		reply app.Reply
		err   error
	)
	switch data.Name {
	case app.CommandPing:
		reply = b.commands.Ping()
	case app.CommandVerify:
		reply, err = b.commands.Verify(ctx, inv)
	case app.CommandSetServerConfig:
		reply, err = b.commands.SetServerConfig(ctx, inv, configInput(data.Options))
	case app.CommandGetServerConfig:
		reply, err = b.commands.GetServerConfig(ctx, inv)
	default:
		reply = b.commands.Unknown()
	}
	if err != nil {
		logger.Error("command failed", "error", err)
		reply = app.Reply{Content: "Something went wrong. Please try again later."}
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: responseData(reply),
	}, discordgo.WithContext(ctx)); err != nil {
		logger.Error("failed to respond to interaction", "error", err)
	}
}

func (b *Bot) guildOwner(ctx context.Context, guildID string) string {
	if g, err := b.session.State.Guild(guildID); err == nil && g.OwnerID != "" {
		return g.OwnerID
	}
	g, err := b.session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		b.logger.Warn("failed to resolve guild owner", "guild_id", guildID, "error", err)
		return ""
	}
	return g.OwnerID
}

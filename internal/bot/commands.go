/**
 * @description
 * Guild slash command definitions and option parsing.
 */
package bot

import (
	"github.com/Salmandabbakuti/xenea-discord-bot/internal/app"
	"github.com/Salmandabbakuti/xenea-discord-bot/internal/domain"
	"github.com/bwmarrin/discordgo"
)

const (
	optTokenAddress   = "tokenaddress"
	optMinimumBalance = "minimumbalance"
	optStartChannel   = "startchannel"
	optRole           = "role"
	optWebhookURL     = "webhookurl"
)

var (
	minimumBalanceFloor = float64(0)
	ownerOnly           = int64(discordgo.PermissionManageGuild)
)

// ApplicationCommands returns the guild commands the bot registers.
func ApplicationCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        app.CommandPing,
			Description: "Replies with pong!",
		},
		{
			Name:        app.CommandVerify,
			Description: "Verify your wallet to get the gated role",
		},
		{
			Name:                     app.CommandSetServerConfig,
			Description:              "Configure token gating for this server",
			DefaultMemberPermissions: &ownerOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optTokenAddress,
					Description: "Address of the token contract",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        optMinimumBalance,
					Description: "Minimum token balance required",
					Required:    true,
					MinValue:    &minimumBalanceFloor,
				},
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         optStartChannel,
					Description:  "Channel for welcome and verification messages",
					Required:     true,
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        optRole,
					Description: "Role to assign to verified users",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optWebhookURL,
					Description: "Discord webhook URL for operational alerts",
				},
			},
		},
		{
			Name:        app.CommandGetServerConfig,
			Description: "Show the token gating settings of this server",
		},
	}
}

// configInput reads /set-serverconfig options. Channels and roles are taken by ID only.
func configInput(options []*discordgo.ApplicationCommandInteractionDataOption) domain.ServerConfigInput {
	var input domain.ServerConfigInput
	for _, opt := range options {
		switch opt.Name {
		case optTokenAddress:
			input.TokenAddress = opt.StringValue()
		case optMinimumBalance:
			input.MinimumBalance = opt.IntValue()
		case optStartChannel:
			input.StartChannelID = opt.ChannelValue(nil).ID
		case optRole:
			input.RoleID = opt.RoleValue(nil, "").ID
		case optWebhookURL:
			input.WebhookURL = opt.StringValue()
		}
	}
	return input
}

// responseData renders an app reply as an ephemeral message with link buttons.
func responseData(reply app.Reply) *discordgo.InteractionResponseData {
	data := &discordgo.InteractionResponseData{
		Content: reply.Content,
		Flags:   discordgo.MessageFlagsEphemeral,
	}
	if len(reply.Links) == 0 {
		return data
	}

	buttons := make([]discordgo.MessageComponent, 0, len(reply.Links))
	for _, link := range reply.Links {
		buttons = append(buttons, discordgo.Button{
			Label: link.Label,
			Style: discordgo.LinkButton,
			URL:   link.URL,
		})
	}
	data.Components = []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
	return data
}

package bot

import (
	"testing"

	"github.com/Salmandabbakuti/xenea-discord-bot/internal/app"
	"github.com/bwmarrin/discordgo"
)

func TestApplicationCommandsCoverDispatchedNames(t *testing.T) {
	want := map[string]bool{
		app.CommandPing:            true,
		app.CommandVerify:          true,
		app.CommandSetServerConfig: true,
		app.CommandGetServerConfig: true,
	}

	commands := ApplicationCommands()
	if len(commands) != len(want) {
		t.Fatalf("expected %d commands, got %d", len(want), len(commands))
	}
	for _, cmd := range commands {
		if !want[cmd.Name] {
			t.Fatalf("unexpected command %q", cmd.Name)
		}
		if cmd.Name != app.CommandSetServerConfig {
			continue
		}
		required := 0
		for _, opt := range cmd.Options {
			if opt.Required {
				required++
			}
		}
		if required != 4 || len(cmd.Options) != 5 {
			t.Fatalf("expected 4 required and 1 optional option, got %d of %d", required, len(cmd.Options))
		}
	}
}

func TestConfigInputReadsIDs(t *testing.T) {
	options := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: optTokenAddress, Type: discordgo.ApplicationCommandOptionString, Value: "0x1000000000000000000000000000000000000001"},
		{Name: optMinimumBalance, Type: discordgo.ApplicationCommandOptionInteger, Value: float64(25)},
		{Name: optStartChannel, Type: discordgo.ApplicationCommandOptionChannel, Value: "111"},
		{Name: optRole, Type: discordgo.ApplicationCommandOptionRole, Value: "222"},
		{Name: optWebhookURL, Type: discordgo.ApplicationCommandOptionString, Value: "https://discord.com/api/webhooks/1/x"},
	}

	input := configInput(options)
	if input.TokenAddress != "0x1000000000000000000000000000000000000001" ||
		input.MinimumBalance != 25 ||
		input.StartChannelID != "111" ||
		input.RoleID != "222" ||
		input.WebhookURL != "https://discord.com/api/webhooks/1/x" {
		t.Fatalf("unexpected input %+v", input)
	}

	if got := configInput(options[:4]); got.WebhookURL != "" {
		t.Fatalf("expected empty webhook when omitted, got %q", got.WebhookURL)
	}
}

func TestResponseDataIsEphemeralWithLinkButtons(t *testing.T) {
	data := responseData(app.Reply{
		Content: "hello",
		Links: []app.Link{
			{Label: "Verify with Wallet", URL: "https://guard.example.com/verify?token=abc"},
			{Label: "View Token on Explorer", URL: "https://explorer.example.com/token/0x1"},
		},
	})

	if data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Fatal("expected ephemeral flag")
	}
	if len(data.Components) != 1 {
		t.Fatalf("expected one action row, got %d", len(data.Components))
	}
	row, ok := data.Components[0].(discordgo.ActionsRow)
	if !ok || len(row.Components) != 2 {
		t.Fatalf("expected an action row with two buttons, got %#v", data.Components[0])
	}
	button, ok := row.Components[0].(discordgo.Button)
	if !ok || button.Style != discordgo.LinkButton || button.URL != "https://guard.example.com/verify?token=abc" {
		t.Fatalf("unexpected button %#v", row.Components[0])
	}

	plain := responseData(app.Reply{Content: "pong!"})
	if len(plain.Components) != 0 {
		t.Fatal("expected no components without links")
	}
}

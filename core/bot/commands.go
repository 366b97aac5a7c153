package bot

import (
	"fmt"
	"strings"

	"github.com/klipworks/memberbot/core/buildinfo"
	"github.com/klipworks/memberbot/core/telegram/commands"
	tghelpers "github.com/klipworks/memberbot/core/telegram/helpers"
	"github.com/klipworks/memberbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// registerSlashCommands wires the bot's slash commands into the registry.
func (b *Bot) registerSlashCommands() {
	admin := middleware.AdminOptions{
		AdminID: b.adminID,
		OnReject: func(c tele.Context) error {
			return tghelpers.SendText(c, "This command is restricted.")
		},
	}

	b.registry.RegisterCommand("/start", commands.Command{
		Description: "Show the welcome message",
		Handler:     b.cmdStart,
	})
	b.registry.RegisterCommand("/help", commands.Command{
		Description: "List what this bot can do",
		Handler:     b.cmdHelp,
	})
	b.registry.RegisterCommand("/cancel", commands.Command{
		Description: "Cancel the current conversation",
		Handler:     b.cmdCancel,
	})
	b.registry.RegisterCommand("/diag", commands.Command{
		Description: "Show runtime diagnostics",
		AdminOnly:   true,
		Hidden:      true,
		Handler:     middleware.WithAdminCheck(admin, true, b.cmdDiag),
	})
}

func (b *Bot) cmdStart(c tele.Context) error {
	return tghelpers.SendText(c,
		"Welcome! Use "+b.prefix+"add-account to register and verify your account, "+
			"or "+b.prefix+"users to manage an existing one.")
}

func (b *Bot) cmdHelp(c tele.Context) error {
	var sb strings.Builder
	sb.WriteString("Available commands:\n")
	sb.WriteString(b.prefix + "add-account - register and verify your account\n")
	sb.WriteString(b.prefix + "users - manage your verified account\n")
	sb.WriteString("/cancel - abort the current conversation\n")
	return tghelpers.SendText(c, sb.String())
}

func (b *Bot) cmdCancel(c tele.Context) error {
	userID := c.Sender().ID
	if !b.fsm.InProgress(userID) {
		return tghelpers.SendText(c, "Nothing to cancel.")
	}
	b.fsm.Clear(userID)
	return tghelpers.SendText(c, "Cancelled.")
}

// cmdDiag reports registered handlers and sender health for the admin.
func (b *Bot) cmdDiag(c tele.Context) error {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("version: %s (%s)\n", buildinfo.Version, buildinfo.Commit))
	sb.WriteString(fmt.Sprintf("actions: %v\n", b.router.ListActions()))
	sb.WriteString(fmt.Sprintf("forms: %v\n", b.router.ListForms()))
	if b.senderErrors != nil {
		sb.WriteString(fmt.Sprintf("sender_errors: %d\n", b.senderErrors()))
	}
	return tghelpers.SendText(c, sb.String())
}

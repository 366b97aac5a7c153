package bot

import (
	"context"
	"fmt"

	"github.com/klipworks/memberbot/core/logger"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// InviteGranter grants membership by minting a single-use invite link to
// the members group. It implements verify.Granter.
type InviteGranter struct {
	bot    *tele.Bot
	chatID int64
}

// NewInviteGranter returns a granter for the given members chat. A zero
// chatID disables granting.
func NewInviteGranter(bot *tele.Bot, chatID int64) *InviteGranter {
	return &InviteGranter{bot: bot, chatID: chatID}
}

// SetBot wires the running bot instance. Grants are disabled until it is
// called.
func (g *InviteGranter) SetBot(bot *tele.Bot) {
	g.bot = bot
}

// GrantMember creates a one-member invite link for the freshly verified
// user and returns it.
func (g *InviteGranter) GrantMember(ctx context.Context, userID string) (string, error) {
	if g == nil || g.bot == nil || g.chatID == 0 {
		return "", nil
	}
	link, err := g.bot.CreateInviteLink(tele.ChatID(g.chatID), &tele.ChatInviteLink{
		Name:        "member " + userID,
		MemberLimit: 1,
	})
	if err != nil {
		return "", fmt.Errorf("create invite link: %w", err)
	}
	logger.Debug(ctx, "tg", "grant.invite_created",
		slog.String("subject", userID),
	)
	return link.InviteLink, nil
}

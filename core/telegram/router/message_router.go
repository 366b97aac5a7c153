package router

import (
	"strconv"
	"time"

	tg "github.com/klipworks/memberbot/core/telegram"
	tghelpers "github.com/klipworks/memberbot/core/telegram/helpers"
	"github.com/klipworks/memberbot/core/telegram/middleware"
	"github.com/klipworks/memberbot/core/telegram/render"
	"github.com/klipworks/memberbot/core/textcmd"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// FSM defines the minimal interface for a conversation manager.
type FSM interface {
	InProgress(userID int64) bool
	ManagerHandler(c tele.Context) error
}

// TextOptions controls text message routing.
type TextOptions struct {
	// Content handles prefixed commands and keyword triggers after slash
	// commands and conversations had their chance.
	Content *textcmd.Dispatcher
}

// TextRoutes builds the text routing chain: active conversation first,
// then slash commands, then stored commands and triggers.
func TextRoutes(fsmMgr FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if fsmMgr != nil && c.Sender() != nil && fsmMgr.InProgress(c.Sender().ID) {
			return handleWithSummary(c, "fsm", start, func() error {
				return fsmMgr.ManagerHandler(c)
			})
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, func() error {
					return cmd.Handler(c)
				})
			}
		}

		if opts.Content != nil {
			return contentRoute(c, start, opts.Content)
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, func() error {
					return fb(c)
				})
			}
		}

		logHandlerSummary(c, "unknown_text", start, "skip", nil)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		},
	}
}

func contentRoute(c tele.Context, start time.Time, content *textcmd.Dispatcher) error {
	user := c.Sender()
	if user == nil || user.IsBot {
		logHandlerSummary(c, "content", start, "skip", nil)
		return nil
	}

	msg := textcmd.Message{
		UserID:      strconv.FormatInt(user.ID, 10),
		DisplayName: displayName(user),
		Text:        c.Text(),
	}

	var out textcmd.Outcome
	err := handleWithSummary(c, "content", start, func() error {
		ctx := tghelpers.BuildContext(c)
		var handleErr error
		out, handleErr = content.Handle(ctx, msg, render.Responder(c))
		return handleErr
	}, slog.String("operation", "content.route"))
	if err != nil {
		return err
	}

	if out.Replied && out.DeleteInvocation {
		tghelpers.DeleteInvoking(c)
	}
	return nil
}

package router

import (
	"strconv"
	"time"

	"github.com/klipworks/memberbot/core/dispatch"
	tg "github.com/klipworks/memberbot/core/telegram"
	tghelpers "github.com/klipworks/memberbot/core/telegram/helpers"
	"github.com/klipworks/memberbot/core/telegram/middleware"
	"github.com/klipworks/memberbot/core/telegram/render"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions wires callback updates into the interaction router.
type CallbackOptions struct {
	Router *dispatch.Router
}

// CallbackRoute returns a handler that converts Telegram callback updates
// into action events and dispatches them.
func CallbackRoute(opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		cb := c.Callback()
		if cb == nil || opts.Router == nil {
			return nil
		}

		key, _ := middleware.ParseCallback(cb)
		name := "callback." + normalizeHandlerName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		// Ack early so the client stops its spinner regardless of outcome.
		_ = c.Respond()

		ev := dispatch.Event{
			Kind: dispatch.KindAction,
			ID:   key,
		}
		if user := c.Sender(); user != nil {
			ev.UserID = strconv.FormatInt(user.ID, 10)
			ev.DisplayName = displayName(user)
		}

		return handleWithSummary(c, name, start, func() error {
			ctx := tghelpers.BuildContext(c)
			return opts.Router.Dispatch(ctx, ev, render.Responder(c))
		}, extras...)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}

func displayName(user *tele.User) string {
	if user == nil {
		return ""
	}
	if user.Username != "" {
		return user.Username
	}
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	return name
}

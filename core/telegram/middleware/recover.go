package middleware

import (
	"context"
	"runtime/debug"

	"github.com/klipworks/memberbot/core/logger"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// RecoverMiddleware keeps a panicking handler from taking down the
// poller. The update that triggered it is identified in the log so the
// offending message can be traced.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			attrs := []slog.Attr{
				slog.String("event", "tg.panic"),
				slog.Any("err", r),
				slog.Int("update_id", c.Update().ID),
				slog.String("stack", string(debug.Stack())),
			}
			if user := c.Sender(); user != nil {
				attrs = append(attrs, slog.Int64("user_id", user.ID))
			}
			logger.TG.LogAttrs(context.Background(), slog.LevelError, "panic recovered", attrs...)
		}()
		return next(c)
	}
}

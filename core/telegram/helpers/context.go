package helpers

import (
	"context"

	"github.com/klipworks/memberbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// ctxCacheKey is the tele.Context slot holding the derived context, so
// the middleware → router → service chain builds it once per update.
const ctxCacheKey = "logger_ctx"

// StoreContext caches a derived context on the update.
func StoreContext(c tele.Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(ctxCacheKey, ctx)
}

// ContextFrom returns the context cached by StoreContext, if any.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	if ctx, ok := c.Get(ctxCacheKey).(context.Context); ok {
		return ctx, true
	}
	return nil, false
}

// BuildContext derives the logging context for one update: the request
// id plus the update/user/chat metadata every verify and content log
// line downstream carries.
func BuildContext(c tele.Context) context.Context {
	if cached, ok := ContextFrom(c); ok {
		return cached
	}

	updID, userID, chatID := updateMeta(c)
	rid, _ := c.Get("rid").(string)
	if rid == "" {
		rid = logger.BuildRID(updID, chatID, userID)
	}

	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, updID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	StoreContext(c, ctx)
	return ctx
}

func updateMeta(c tele.Context) (updID int, userID, chatID int64) {
	updID = c.Update().ID
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	return updID, userID, chatID
}

// WithHandler tags the cached context with the handler name once routing
// has decided where the update goes.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}

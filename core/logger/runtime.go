package logger

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

type contextKey int

const (
	ctxMeta contextKey = iota
	ctxRID
	ctxLogger
	ctxHandler
)

// updateMeta carries the per-update identifiers as one context value
// rather than a key per field; every handler summary reads all of them
// together anyway.
type updateMeta struct {
	updateID int
	userID   int64
	chatID   int64
}

func value[T any](ctx context.Context, key contextKey) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	v, ok := ctx.Value(key).(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// WithLogger stores a logger in context for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, log)
}

// FromContext extracts the logger from context, falling back to the
// global default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := value[*slog.Logger](ctx, ctxLogger); ok {
		return l
	}
	return L
}

// WithRID attaches the request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRID, rid)
}

// RIDFrom extracts the correlation id, or "".
func RIDFrom(ctx context.Context) string {
	rid, _ := value[string](ctx, ctxRID)
	return rid
}

// WithUpdateMeta attaches the update/user/chat identifiers.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxMeta, updateMeta{
		updateID: updateID,
		userID:   userID,
		chatID:   chatID,
	})
}

// WithHandler stores the resolved handler name for downstream logs.
func WithHandler(ctx context.Context, handler string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if handler == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxHandler, handler)
}

// HandlerFrom returns the handler name, or "".
func HandlerFrom(ctx context.Context) string {
	h, _ := value[string](ctx, ctxHandler)
	return h
}

// UserIDFrom extracts the Telegram user id, or 0.
func UserIDFrom(ctx context.Context) int64 {
	m, _ := value[updateMeta](ctx, ctxMeta)
	return m.userID
}

// ChatIDFrom extracts the chat id, or 0.
func ChatIDFrom(ctx context.Context) int64 {
	m, _ := value[updateMeta](ctx, ctxMeta)
	return m.chatID
}

// UpdateIDFrom extracts the update id, or 0.
func UpdateIDFrom(ctx context.Context) int {
	m, _ := value[updateMeta](ctx, ctxMeta)
	return m.updateID
}

// Sanitize strips control and format runes (keeping tab and newline) so
// user-authored text like trigger keywords cannot mangle a log line.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == 0x7F, unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit applies Sanitize and caps the result at max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(Sanitize(s))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}

// BuildRID returns the correlation id in the form updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return strconv.Itoa(updateID) + ":" +
		strconv.FormatInt(chatID, 10) + ":" +
		strconv.FormatInt(userID, 10)
}

// CompactRID shortens a colon-separated rid into base36 segments. Input
// that does not look like a rid comes back unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	if rid == "" {
		return ""
	}
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	compact := make([]string, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return rid
		}
		compact = append(compact, strconv.FormatInt(n, 36))
	}
	return strings.Join(compact, ".")
}

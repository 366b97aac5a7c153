package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/klipworks/memberbot/core/logger"
	"log/slog"
)

// Kind tags the two interaction event shapes delivered by the platform.
type Kind int

const (
	// KindAction is a button activation carrying only an identifier.
	KindAction Kind = iota + 1
	// KindForm is a form submission carrying an identifier with an
	// embedded subject id plus the entered field values.
	KindForm
)

// String returns the log-friendly name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAction:
		return "action"
	case KindForm:
		return "form"
	default:
		return "unknown"
	}
}

// Event is one inbound interaction to be routed to exactly one handler.
type Event struct {
	Kind        Kind
	ID          string
	UserID      string
	DisplayName string
	// Fields holds user-entered values for form submissions; nil for actions.
	Fields map[string]string
}

// ActionFunc handles a button activation.
type ActionFunc func(ctx context.Context, ev Event, rsp Responder) error

// FormFunc handles a form submission. subject is the user id decoded from
// the wire identifier.
type FormFunc func(ctx context.Context, ev Event, subject string, rsp Responder) error

const defaultFailureText = "Something went wrong. Please try again later."

// Router maps interaction identifiers to handlers. Registrations happen
// once at startup; dispatch is read-only and safe for concurrent use.
type Router struct {
	mu          sync.RWMutex
	actions     map[string]ActionFunc
	forms       map[string]FormFunc
	failureText string
}

// Option customises router construction.
type Option func(*Router)

// WithFailureText overrides the best-effort reply sent when a handler fails
// before producing any response.
func WithFailureText(text string) Option {
	return func(r *Router) {
		if text != "" {
			r.failureText = text
		}
	}
}

// NewRouter creates an empty Router.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		actions:     make(map[string]ActionFunc),
		forms:       make(map[string]FormFunc),
		failureText: defaultFailureText,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleAction registers a handler for an exact action identifier.
func (r *Router) HandleAction(id string, fn ActionFunc) error {
	if r == nil || id == "" || fn == nil {
		return errors.New("invalid action registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[id]; exists {
		logger.Warn(logger.Background(), "tg", "register.action.duplicate", slog.String("cb_key", id))
		return fmt.Errorf("action already registered: %s", id)
	}
	r.actions[id] = fn
	return nil
}

// HandleForm registers a handler for a form identifier key. The key must
// end with the subject separator; FormIdent normalizes this on the encode
// side.
func (r *Router) HandleForm(key string, fn FormFunc) error {
	if r == nil || key == "" || fn == nil {
		return errors.New("invalid form registration")
	}
	if !strings.HasSuffix(key, subjectSep) {
		return fmt.Errorf("form key must end with %q: %s", subjectSep, key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.forms[key]; exists {
		logger.Warn(logger.Background(), "tg", "register.form.duplicate", slog.String("cb_key", key))
		return fmt.Errorf("form already registered: %s", key)
	}
	r.forms[key] = fn
	return nil
}

// ListActions returns sorted registered action identifiers (for diagnostics).
func (r *Router) ListActions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for k := range r.actions {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ListForms returns sorted registered form keys (for diagnostics).
func (r *Router) ListForms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.forms))
	for k := range r.forms {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Dispatch resolves the event to exactly one handler and invokes it at
// most once. Unknown identifiers are dropped silently: the platform is
// expected to deliver stale interactive elements from old deployments.
// A handler failure never escapes as a panic; if the handler produced no
// reply, a single best-effort failure reply is attempted. The handler
// error is returned for summary logging by the caller.
func (r *Router) Dispatch(ctx context.Context, ev Event, rsp Responder) error {
	tracked := &trackedResponder{next: rsp}

	var err error
	switch ev.Kind {
	case KindAction:
		r.mu.RLock()
		fn := r.actions[ev.ID]
		r.mu.RUnlock()
		if fn == nil {
			r.logMiss(ctx, ev, "")
			return nil
		}
		err = invoke(func() error { return fn(ctx, ev, tracked) })
	case KindForm:
		id, ok := DecodeForm(ev.ID)
		if !ok {
			r.logMiss(ctx, ev, "")
			return nil
		}
		r.mu.RLock()
		fn := r.forms[id.Key]
		r.mu.RUnlock()
		if fn == nil {
			r.logMiss(ctx, ev, id.Subject)
			return nil
		}
		err = invoke(func() error { return fn(ctx, ev, id.Subject, tracked) })
	default:
		return fmt.Errorf("dispatch: unknown event kind %d", ev.Kind)
	}

	if err != nil {
		logger.Error(ctx, "tg", "dispatch.handler_failed",
			slog.String("cb_key", ev.ID),
			slog.String("kind", ev.Kind.String()),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		if !tracked.replied {
			if sendErr := tracked.Reply(ctx, Reply{Text: r.failureText, Private: true}); sendErr != nil {
				logger.Warn(ctx, "tg", "dispatch.failure_reply_failed",
					slog.String("cb_key", ev.ID),
					slog.String("err", sendErr.Error()),
				)
			}
		}
	}
	return err
}

func (r *Router) logMiss(ctx context.Context, ev Event, subject string) {
	attrs := []slog.Attr{
		slog.String("cb_key", logger.SanitizeLimit(ev.ID, 128)),
		slog.String("kind", ev.Kind.String()),
		slog.String("reason", "not_found"),
	}
	if subject != "" {
		attrs = append(attrs, slog.String("subject", subject))
	}
	logger.Debug(ctx, "tg", "dispatch.miss", attrs...)
}

// invoke shields the dispatch loop from handler panics.
func invoke(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return fn()
}

type trackedResponder struct {
	next    Responder
	replied bool
}

func (t *trackedResponder) Reply(ctx context.Context, r Reply) error {
	if t.next == nil {
		return nil
	}
	if err := t.next.Reply(ctx, r); err != nil {
		return err
	}
	t.replied = true
	return nil
}

package textcmd

import (
	"context"
	"strings"

	"github.com/klipworks/memberbot/core/dispatch"
	"github.com/klipworks/memberbot/core/logger"
	"log/slog"
)

// Message is one inbound chat message considered for command and trigger
// handling.
type Message struct {
	UserID      string
	DisplayName string
	Text        string
}

// BuiltinFunc handles a code-defined prefixed command. args is the raw
// remainder of the message after the command name.
type BuiltinFunc func(ctx context.Context, msg Message, args string, rsp dispatch.Responder) error

// MatchType selects how a trigger keyword is compared against a message.
type MatchType string

const (
	// MatchExact fires when the whole message equals the keyword.
	MatchExact MatchType = "exact"
	// MatchContains fires when the keyword appears anywhere in the message.
	MatchContains MatchType = "contains"
)

// Template is the stored response body of a dynamic command or trigger.
type Template struct {
	Text string
	// View fields render as structured display content when Title or Body
	// is set.
	Title        string
	Body         string
	Color        string
	ImageURL     string
	ThumbnailURL string
	// Ephemeral directs the reply to the invoking user only.
	Ephemeral bool
	// DeleteInvocation asks the transport to remove the invoking message.
	DeleteInvocation bool
}

// Trigger is a stored keyword rule. Triggers are evaluated in stored
// order; the first match wins.
type Trigger struct {
	ID      int64
	Keyword string
	Match   MatchType
	Reply   Template
}

// ContentStore serves operator-managed dynamic commands and triggers.
// CommandTemplate returns (nil, nil) when no such command exists.
type ContentStore interface {
	CommandTemplate(ctx context.Context, name string) (*Template, error)
	Triggers(ctx context.Context) ([]Trigger, error)
}

// Outcome summarizes what Handle did with a message.
type Outcome struct {
	Replied bool
	// Source is "builtin", "command" or "trigger" when Replied is set.
	Source string
	// Command is the matched command name or trigger keyword.
	Command string
	// DeleteInvocation asks the caller to remove the invoking message.
	// Always set for builtins; stored templates opt in per row.
	DeleteInvocation bool
}

// Dispatcher routes plain chat messages: prefixed text is resolved as a
// built-in or stored command, and unmatched messages are checked against
// keyword triggers. At most one reply is produced per message.
type Dispatcher struct {
	prefix   string
	store    ContentStore
	builtins map[string]BuiltinFunc
}

// NewDispatcher creates a Dispatcher with the given command prefix.
func NewDispatcher(prefix string, store ContentStore) *Dispatcher {
	if prefix == "" {
		prefix = "!"
	}
	return &Dispatcher{
		prefix:   prefix,
		store:    store,
		builtins: make(map[string]BuiltinFunc),
	}
}

// Builtin registers a code-defined command under a lowercase name.
func (d *Dispatcher) Builtin(name string, fn BuiltinFunc) {
	if name == "" || fn == nil {
		return
	}
	d.builtins[strings.ToLower(name)] = fn
}

// Handle processes one message. Messages from bots should be filtered by
// the caller before reaching here. A prefixed message that resolves to a
// builtin or stored command replies and stops; anything else falls
// through to trigger evaluation, prefixed or not.
func (d *Dispatcher) Handle(ctx context.Context, msg Message, rsp dispatch.Responder) (Outcome, error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return Outcome{}, nil
	}

	if strings.HasPrefix(text, d.prefix) {
		out, handled, err := d.handleCommand(ctx, msg, text, rsp)
		if err != nil || handled {
			return out, err
		}
	}
	return d.handleTriggers(ctx, msg, text, rsp)
}

func (d *Dispatcher) handleCommand(ctx context.Context, msg Message, text string, rsp dispatch.Responder) (Outcome, bool, error) {
	rest := strings.TrimPrefix(text, d.prefix)
	name, args := splitCommand(rest)
	if name == "" {
		return Outcome{}, false, nil
	}

	if fn, ok := d.builtins[name]; ok {
		if err := fn(ctx, msg, args, rsp); err != nil {
			return Outcome{}, true, err
		}
		logger.Debug(ctx, "content", "command.builtin",
			slog.String("command", name),
		)
		// Panel commands clean up after themselves: the invoking message
		// is removed once the panel is posted.
		return Outcome{Replied: true, Source: "builtin", Command: name, DeleteInvocation: true}, true, nil
	}

	tpl, err := d.store.CommandTemplate(ctx, name)
	if err != nil {
		logger.Error(ctx, "content", "command.lookup_failed",
			slog.String("command", name),
			slog.String("err", err.Error()),
		)
		return Outcome{}, true, err
	}
	if tpl == nil {
		// Unknown prefixed commands still get a shot at the triggers.
		return Outcome{}, false, nil
	}

	if err := rsp.Reply(ctx, tpl.reply()); err != nil {
		return Outcome{}, true, err
	}
	logger.Debug(ctx, "content", "command.dynamic",
		slog.String("command", name),
	)
	return Outcome{
		Replied:          true,
		Source:           "command",
		Command:          name,
		DeleteInvocation: tpl.DeleteInvocation,
	}, true, nil
}

func (d *Dispatcher) handleTriggers(ctx context.Context, msg Message, text string, rsp dispatch.Responder) (Outcome, error) {
	triggers, err := d.store.Triggers(ctx)
	if err != nil {
		logger.Error(ctx, "content", "trigger.list_failed",
			slog.String("err", err.Error()),
		)
		return Outcome{}, err
	}

	lowered := strings.ToLower(text)
	for _, tr := range triggers {
		if !tr.matches(text, lowered) {
			continue
		}
		if err := rsp.Reply(ctx, tr.Reply.reply()); err != nil {
			return Outcome{}, err
		}
		logger.Debug(ctx, "content", "trigger.matched",
			slog.Int64("trigger_id", tr.ID),
			slog.String("keyword", logger.SanitizeLimit(tr.Keyword, 64)),
			slog.String("match_type", string(tr.Match)),
		)
		return Outcome{
			Replied:          true,
			Source:           "trigger",
			Command:          tr.Keyword,
			DeleteInvocation: tr.Reply.DeleteInvocation,
		}, nil
	}
	return Outcome{}, nil
}

func (tr Trigger) matches(text, lowered string) bool {
	keyword := strings.TrimSpace(tr.Keyword)
	if keyword == "" {
		return false
	}
	switch tr.Match {
	case MatchExact:
		return strings.EqualFold(text, keyword)
	case MatchContains:
		return strings.Contains(lowered, strings.ToLower(keyword))
	default:
		return false
	}
}

// reply converts the template into the transport-neutral reply payload.
func (t Template) reply() dispatch.Reply {
	r := dispatch.Reply{Text: t.Text, Private: t.Ephemeral}
	if t.Title != "" || t.Body != "" {
		r.View = &dispatch.View{
			Title:        t.Title,
			Body:         t.Body,
			Color:        t.Color,
			ImageURL:     t.ImageURL,
			ThumbnailURL: t.ThumbnailURL,
		}
	}
	return r
}

func splitCommand(rest string) (name, args string) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", ""
	}
	if i := strings.IndexFunc(rest, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' }); i >= 0 {
		return strings.ToLower(rest[:i]), strings.TrimSpace(rest[i+1:])
	}
	return strings.ToLower(rest), ""
}

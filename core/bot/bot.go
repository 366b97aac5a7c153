// Package bot wires the membership workflows onto the Telegram transport:
// inline-button actions open conversations, conversations produce form
// submissions, and form submissions drive the verification service.
package bot

import (
	"errors"

	coreconfig "github.com/klipworks/memberbot/core/config"
	"github.com/klipworks/memberbot/core/dispatch"
	tg "github.com/klipworks/memberbot/core/telegram"
	"github.com/klipworks/memberbot/core/telegram/router"
	"github.com/klipworks/memberbot/core/telegram/state"
	"github.com/klipworks/memberbot/core/textcmd"
	"github.com/klipworks/memberbot/core/verify"
)

// Options collects the collaborators the bot needs.
type Options struct {
	Config   *coreconfig.Config
	Verify   *verify.Service
	Content  *textcmd.Dispatcher
	FSM      state.Manager
	Router   *dispatch.Router
	Registry *tg.Registry
}

// Bot binds the domain services to Telegram handlers.
type Bot struct {
	verify   *verify.Service
	content  *textcmd.Dispatcher
	fsm      state.Manager
	router   *dispatch.Router
	registry *tg.Registry

	adminID int64
	prefix  string

	senderErrors func() uint64
}

// New wires all handlers and returns the assembled bot.
func New(opts Options) (*Bot, error) {
	if opts.Config == nil || opts.Verify == nil || opts.Content == nil {
		return nil, errors.New("bot: config, verify and content are required")
	}
	if opts.FSM == nil {
		opts.FSM = state.NewMemoryManager()
	}
	if opts.Router == nil {
		opts.Router = dispatch.NewRouter()
	}
	if opts.Registry == nil {
		opts.Registry = tg.NewRegistry()
	}

	b := &Bot{
		verify:   opts.Verify,
		content:  opts.Content,
		fsm:      opts.FSM,
		router:   opts.Router,
		registry: opts.Registry,
		adminID:  opts.Config.Telegram.AdminID,
		prefix:   opts.Config.Content.CommandPrefix,
	}

	if err := b.registerActionHandlers(b.router); err != nil {
		return nil, err
	}
	if err := b.registerFormHandlers(b.router); err != nil {
		return nil, err
	}
	b.registerConversationHandlers()
	b.registerBuiltins()
	b.registerSlashCommands()

	return b, nil
}

// Registry exposes the slash command registry for run wiring.
func (b *Bot) Registry() *tg.Registry {
	return b.registry
}

// SetSenderErrors wires the outbound sender's error counter into /diag.
func (b *Bot) SetSenderErrors(fn func() uint64) {
	b.senderErrors = fn
}

// Routes returns the update routes: callbacks through the interaction
// router, text through conversations, slash commands and stored content.
func (b *Bot) Routes() []tg.Route {
	routes := []tg.Route{
		router.CallbackRoute(router.CallbackOptions{Router: b.router}),
	}
	routes = append(routes, router.TextRoutes(b.fsm, b.registry, router.TextOptions{
		Content: b.content,
	})...)
	return routes
}

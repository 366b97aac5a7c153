package bot

import (
	"context"

	"github.com/klipworks/memberbot/core/dispatch"
	"github.com/klipworks/memberbot/core/textcmd"
)

// registerBuiltins adds the code-defined prefixed commands to the text
// dispatcher.
func (b *Bot) registerBuiltins() {
	b.content.Builtin("add-account", b.builtinAddAccount)
	b.content.Builtin("users", b.builtinUsers)
}

// builtinAddAccount posts the onboarding panel with the registration and
// verification entry points.
func (b *Bot) builtinAddAccount(ctx context.Context, _ textcmd.Message, _ string, rsp dispatch.Responder) error {
	return rsp.Reply(ctx, dispatch.Reply{
		View: &dispatch.View{
			Title: "Account registration",
			Body:  "Register your account to get access. You'll receive a 6-digit code by email; enter it here to finish verification.",
		},
		Buttons: []dispatch.Button{
			{Label: "📝 Register", Action: ActionRegister},
			{Label: "✅ Enter verification code", Action: ActionVerify},
		},
	})
}

// builtinUsers posts the account management panel. The offered actions
// depend on the caller's state: unregistered users get the registration
// entry point, pending users the code prompt, verified users the edit
// actions.
func (b *Bot) builtinUsers(ctx context.Context, msg textcmd.Message, _ string, rsp dispatch.Responder) error {
	profile, err := b.verify.Lookup(ctx, msg.UserID)
	if err != nil {
		return err
	}

	switch {
	case profile == nil:
		return rsp.Reply(ctx, dispatch.Reply{
			View: &dispatch.View{
				Title: "No account yet",
				Body:  "You haven't registered. Start with the button below.",
			},
			Buttons: []dispatch.Button{
				{Label: "📝 Register", Action: ActionRegister},
			},
		})
	case !profile.Verified:
		return rsp.Reply(ctx, dispatch.Reply{
			View: &dispatch.View{
				Title: "Verification pending",
				Body:  "A code was sent to " + profile.Email + ". Enter it to finish, or register again for a fresh one.",
			},
			Buttons: []dispatch.Button{
				{Label: "✅ Enter verification code", Action: ActionVerify},
				{Label: "📝 Register again", Action: ActionRegister},
			},
		})
	default:
		return rsp.Reply(ctx, dispatch.Reply{
			View: &dispatch.View{
				Title: "Manage your account",
				Body:  "Update the details stored on your verified account.",
			},
			Buttons: []dispatch.Button{
				{Label: "💳 Edit payment numbers", Action: ActionPayment},
				{Label: "📱 Change phone number", Action: ActionPhone},
			},
		})
	}
}

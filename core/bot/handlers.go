package bot

import (
	"context"
	"fmt"

	"github.com/klipworks/memberbot/core/dispatch"
	"github.com/klipworks/memberbot/core/verify"
)

// Interaction identifiers. Actions arrive from inline buttons; form keys
// carry the subject user id appended after the trailing separator.
const (
	ActionRegister = "reg.open"
	ActionVerify   = "verify.open"
	ActionPayment  = "pay.edit"
	ActionPhone    = "phone.edit"
	ActionCancel   = "flow.cancel"

	FormRegister = "form.register_"
	FormVerify   = "form.verify_"
	FormPayment  = "form.payment_"
	FormPhone    = "form.phone_"
)

// Form field names used by the conversation flows.
const (
	fieldEmail = "email"
	fieldPhone = "phone"
	fieldCode  = "code"
)

// registerFormHandlers binds the verification form submissions to the
// interaction router.
func (b *Bot) registerFormHandlers(r *dispatch.Router) error {
	pairs := []struct {
		key string
		fn  dispatch.FormFunc
	}{
		{FormRegister, b.handleRegisterForm},
		{FormVerify, b.handleVerifyForm},
		{FormPayment, b.handlePaymentForm},
		{FormPhone, b.handlePhoneForm},
	}
	for _, p := range pairs {
		if err := r.HandleForm(p.key, p.fn); err != nil {
			return fmt.Errorf("register form %s: %w", p.key, err)
		}
	}
	return nil
}

func (b *Bot) handleRegisterForm(ctx context.Context, ev dispatch.Event, subject string, rsp dispatch.Responder) error {
	reg, err := b.verify.StartRegistration(ctx, subject, ev.DisplayName, ev.Fields[fieldEmail], ev.Fields[fieldPhone])
	if err != nil {
		return replyFault(ctx, rsp, err, map[verify.Class]string{
			verify.ClassValidation: "That doesn't look like a valid email address and phone number. Please try again.",
			verify.ClassDelivery:   "Your details were saved, but the verification email could not be sent. Use the verify button to retry once you receive a code, or register again for a fresh one.",
		})
	}
	return rsp.Reply(ctx, dispatch.Reply{
		Private: true,
		View: &dispatch.View{
			Title: "Check your inbox",
			Body:  fmt.Sprintf("A 6-digit verification code was sent to %s. It expires in one hour.", reg.Email),
		},
		Buttons: []dispatch.Button{
			{Label: "Enter code", Action: ActionVerify},
		},
	})
}

func (b *Bot) handleVerifyForm(ctx context.Context, ev dispatch.Event, subject string, rsp dispatch.Responder) error {
	res, err := b.verify.SubmitCode(ctx, subject, ev.DisplayName, ev.Fields[fieldCode])
	if err != nil {
		// The two not-applicable conditions need different guidance: an
		// expired code calls for a fresh registration, while an absent or
		// already-verified account has no code to enter at all.
		if f, ok := verify.FaultFrom(err); ok && f.Code == "not_pending" {
			return rsp.Reply(ctx, dispatch.Reply{
				Private: true,
				Text:    "There is no code to verify: your account is already verified or not registered yet.",
			})
		}
		return replyFault(ctx, rsp, err, map[verify.Class]string{
			verify.ClassValidation:    "Incorrect code. Check your inbox and try again.",
			verify.ClassNotApplicable: "That code has expired. Register again to receive a fresh one.",
		})
	}

	reply := dispatch.Reply{
		Private: true,
		View: &dispatch.View{
			Title: "You're verified",
			Body:  fmt.Sprintf("Welcome, %s! Your account has been verified.", res.DisplayName),
		},
	}
	if res.InviteLink != "" {
		reply.Buttons = []dispatch.Button{
			{Label: "Join the members group", URL: res.InviteLink},
		}
	}
	if res.GrantWarning != "" {
		reply.Text = res.GrantWarning
	}
	return rsp.Reply(ctx, reply)
}

func (b *Bot) handlePaymentForm(ctx context.Context, ev dispatch.Event, subject string, rsp dispatch.Responder) error {
	values := make(map[string]string, len(verify.PaymentProviders))
	for _, provider := range verify.PaymentProviders {
		values[provider] = ev.Fields[provider]
	}
	if err := b.verify.EditPaymentIdentifiers(ctx, subject, ev.DisplayName, values); err != nil {
		return replyFault(ctx, rsp, err, map[verify.Class]string{
			verify.ClassValidation:    "Nothing to update. Fill in at least one payment number.",
			verify.ClassNotApplicable: "Only verified accounts can store payment numbers. Verify your account first.",
		})
	}
	return rsp.Reply(ctx, dispatch.Reply{
		Private: true,
		Text:    "Payment numbers updated.",
	})
}

func (b *Bot) handlePhoneForm(ctx context.Context, ev dispatch.Event, subject string, rsp dispatch.Responder) error {
	if err := b.verify.EditPhoneNumber(ctx, subject, ev.DisplayName, ev.Fields[fieldPhone]); err != nil {
		return replyFault(ctx, rsp, err, map[verify.Class]string{
			verify.ClassValidation:    "That phone number looks too short. Please enter your full number.",
			verify.ClassNotApplicable: "Only verified accounts can change their phone number. Verify your account first.",
		})
	}
	return rsp.Reply(ctx, dispatch.Reply{
		Private: true,
		Text:    "Phone number updated.",
	})
}

// replyFault answers a failed operation with the message mapped to its
// fault class. Unmapped classes (storage and other internal failures)
// propagate so the router can produce the generic failure reply.
func replyFault(ctx context.Context, rsp dispatch.Responder, err error, messages map[verify.Class]string) error {
	if msg, ok := messages[verify.ClassOf(err)]; ok {
		return rsp.Reply(ctx, dispatch.Reply{Text: msg, Private: true})
	}
	return err
}

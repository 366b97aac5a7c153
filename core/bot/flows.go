package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/klipworks/memberbot/core/dispatch"
	tghelpers "github.com/klipworks/memberbot/core/telegram/helpers"
	"github.com/klipworks/memberbot/core/telegram/keyboard"
	"github.com/klipworks/memberbot/core/telegram/render"
	"github.com/klipworks/memberbot/core/telegram/state"
	"github.com/klipworks/memberbot/core/verify"

	tele "gopkg.in/telebot.v4"
)

// Conversation states for the multi-step flows.
const (
	stateRegEmail   state.State = "reg.email"
	stateRegPhone   state.State = "reg.phone"
	stateVerifyCode state.State = "verify.code"
	statePhoneNew   state.State = "phone.new"
)

// paymentState returns the conversation state for a payment provider step.
func paymentState(provider string) state.State {
	return state.State("pay." + provider)
}

const skipToken = "-"

// registerActionHandlers binds the inline button actions that open the
// conversation flows.
func (b *Bot) registerActionHandlers(r *dispatch.Router) error {
	pairs := []struct {
		id string
		fn dispatch.ActionFunc
	}{
		{ActionRegister, b.openRegistration},
		{ActionVerify, b.openVerification},
		{ActionPayment, b.openPaymentEdit},
		{ActionPhone, b.openPhoneEdit},
		{ActionCancel, b.cancelFlow},
	}
	for _, p := range pairs {
		if err := r.HandleAction(p.id, p.fn); err != nil {
			return fmt.Errorf("register action %s: %w", p.id, err)
		}
	}
	return nil
}

func (b *Bot) openRegistration(ctx context.Context, ev dispatch.Event, rsp dispatch.Responder) error {
	userID, err := parseUserID(ev.UserID)
	if err != nil {
		return err
	}
	b.fsm.Clear(userID)
	b.fsm.SetState(userID, stateRegEmail)
	return rsp.Reply(ctx, dispatch.Reply{
		Private: true,
		Text:    "Let's register your account. What is your email address?",
	})
}

func (b *Bot) openVerification(ctx context.Context, ev dispatch.Event, rsp dispatch.Responder) error {
	userID, err := parseUserID(ev.UserID)
	if err != nil {
		return err
	}
	profile, err := b.verify.Lookup(ctx, ev.UserID)
	if err != nil {
		return err
	}
	if profile != nil && profile.Verified {
		return rsp.Reply(ctx, dispatch.Reply{
			Private: true,
			Text:    "Your account is already verified.",
		})
	}
	if !profile.HasPendingCode() {
		return rsp.Reply(ctx, dispatch.Reply{
			Private: true,
			Text:    "You haven't registered yet, so there is no code to enter.",
			Buttons: []dispatch.Button{
				{Label: "📝 Register", Action: ActionRegister},
			},
		})
	}
	b.fsm.Clear(userID)
	b.fsm.SetState(userID, stateVerifyCode)
	return rsp.Reply(ctx, dispatch.Reply{
		Private: true,
		Text:    "Enter the 6-digit code from the verification email.",
	})
}

func (b *Bot) openPaymentEdit(ctx context.Context, ev dispatch.Event, rsp dispatch.Responder) error {
	userID, err := parseUserID(ev.UserID)
	if err != nil {
		return err
	}
	b.fsm.Clear(userID)
	first := verify.PaymentProviders[0]
	b.fsm.SetState(userID, paymentState(first))
	return rsp.Reply(ctx, dispatch.Reply{
		Private: true,
		Text:    paymentPrompt(first),
	})
}

func (b *Bot) openPhoneEdit(ctx context.Context, ev dispatch.Event, rsp dispatch.Responder) error {
	userID, err := parseUserID(ev.UserID)
	if err != nil {
		return err
	}
	b.fsm.Clear(userID)
	b.fsm.SetState(userID, statePhoneNew)
	return rsp.Reply(ctx, dispatch.Reply{
		Private: true,
		Text:    "What is your new phone number?",
	})
}

func (b *Bot) cancelFlow(ctx context.Context, ev dispatch.Event, rsp dispatch.Responder) error {
	userID, err := parseUserID(ev.UserID)
	if err != nil {
		return err
	}
	if b.fsm.InProgress(userID) {
		b.fsm.Clear(userID)
		return rsp.Reply(ctx, dispatch.Reply{Private: true, Text: "Cancelled."})
	}
	return rsp.Reply(ctx, dispatch.Reply{Private: true, Text: "Nothing to cancel."})
}

// registerConversationHandlers binds per-state message handlers on the
// session manager. Each terminal step synthesizes a form submission and
// routes it through the interaction router.
func (b *Bot) registerConversationHandlers() {
	b.fsm.RegisterHandler(stateRegEmail, b.collectEmail)
	b.fsm.RegisterHandler(stateRegPhone, b.collectRegPhone)
	b.fsm.RegisterHandler(stateVerifyCode, b.collectCode)
	b.fsm.RegisterHandler(statePhoneNew, b.collectNewPhone)

	for i, provider := range verify.PaymentProviders {
		next := ""
		if i+1 < len(verify.PaymentProviders) {
			next = verify.PaymentProviders[i+1]
		}
		b.fsm.RegisterHandler(paymentState(provider), b.collectPayment(provider, next))
	}
}

func (b *Bot) collectEmail(c tele.Context) error {
	userID := c.Sender().ID
	email := strings.TrimSpace(c.Text())
	if !strings.Contains(email, "@") {
		return tghelpers.SendText(c, "That doesn't look like an email address. Try again, or use the cancel button.", cancelOption())
	}
	b.fsm.SetTemp(userID, fieldEmail, email)
	b.fsm.SetState(userID, stateRegPhone)
	return tghelpers.SendText(c, "Got it. Now, what is your phone number?")
}

func (b *Bot) collectRegPhone(c tele.Context) error {
	userID := c.Sender().ID
	email, _ := b.fsm.GetTempString(userID, fieldEmail)
	fields := map[string]string{
		fieldEmail: email,
		fieldPhone: strings.TrimSpace(c.Text()),
	}
	b.fsm.Clear(userID)
	return b.submitForm(c, FormRegister, fields)
}

func (b *Bot) collectCode(c tele.Context) error {
	userID := c.Sender().ID
	fields := map[string]string{fieldCode: strings.TrimSpace(c.Text())}
	b.fsm.Clear(userID)
	return b.submitForm(c, FormVerify, fields)
}

func (b *Bot) collectNewPhone(c tele.Context) error {
	userID := c.Sender().ID
	fields := map[string]string{fieldPhone: strings.TrimSpace(c.Text())}
	b.fsm.Clear(userID)
	return b.submitForm(c, FormPhone, fields)
}

// collectPayment builds the handler for one provider step. Answering the
// skip token leaves that provider untouched.
func (b *Bot) collectPayment(provider, next string) tele.HandlerFunc {
	return func(c tele.Context) error {
		userID := c.Sender().ID
		value := strings.TrimSpace(c.Text())
		if value != skipToken {
			b.fsm.SetTemp(userID, provider, value)
		}

		if next != "" {
			b.fsm.SetState(userID, paymentState(next))
			return tghelpers.SendText(c, paymentPrompt(next), cancelOption())
		}

		fields := make(map[string]string, len(verify.PaymentProviders))
		for _, p := range verify.PaymentProviders {
			if v, ok := b.fsm.GetTempString(userID, p); ok {
				fields[p] = v
			}
		}
		b.fsm.Clear(userID)
		return b.submitForm(c, FormPayment, fields)
	}
}

// submitForm converts collected conversation input into a form event and
// dispatches it.
func (b *Bot) submitForm(c tele.Context, formKey string, fields map[string]string) error {
	user := c.Sender()
	subject := strconv.FormatInt(user.ID, 10)
	ev := dispatch.Event{
		Kind:        dispatch.KindForm,
		ID:          dispatch.FormIdent(formKey, subject).Encode(),
		UserID:      subject,
		DisplayName: senderName(user),
		Fields:      fields,
	}
	ctx := tghelpers.BuildContext(c)
	return b.router.Dispatch(ctx, ev, render.Responder(c))
}

func paymentPrompt(provider string) string {
	return fmt.Sprintf("Send your %s number, or %q to skip it.", strings.ToUpper(provider), skipToken)
}

func cancelOption() *tele.SendOptions {
	return &tele.SendOptions{ReplyMarkup: keyboard.SingleCancelMarkup(ActionCancel)}
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad user id %q: %w", s, err)
	}
	return id, nil
}

func senderName(user *tele.User) string {
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

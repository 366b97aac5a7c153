package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/klipworks/memberbot/core/dispatch"
	"github.com/klipworks/memberbot/core/telegram/state"
	"github.com/klipworks/memberbot/core/verify"
)

type stubStore struct {
	profiles map[string]*verify.Profile
}

func (s *stubStore) Get(_ context.Context, userID string) (*verify.Profile, error) {
	return s.profiles[userID], nil
}

func (s *stubStore) Upsert(context.Context, string, verify.Patch) error { return nil }

type stubNotifier struct{}

func (stubNotifier) SendCode(context.Context, string, string) error { return nil }

type captureResponder struct {
	replies []dispatch.Reply
}

func (c *captureResponder) Reply(_ context.Context, r dispatch.Reply) error {
	c.replies = append(c.replies, r)
	return nil
}

func (c *captureResponder) single(t *testing.T) dispatch.Reply {
	t.Helper()
	if len(c.replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(c.replies))
	}
	return c.replies[0]
}

func newTestBot(profiles map[string]*verify.Profile) *Bot {
	return &Bot{
		verify: verify.NewService(&stubStore{profiles: profiles}, stubNotifier{}),
		fsm:    state.NewMemoryManager(),
	}
}

func TestVerifyFormAlreadyVerifiedGuidance(t *testing.T) {
	b := newTestBot(map[string]*verify.Profile{
		"7": {UserID: "7", Verified: true},
	})

	rsp := &captureResponder{}
	ev := dispatch.Event{Fields: map[string]string{fieldCode: "123456"}}
	if err := b.handleVerifyForm(context.Background(), ev, "7", rsp); err != nil {
		t.Fatalf("handleVerifyForm: %v", err)
	}
	r := rsp.single(t)
	if !r.Private || !strings.Contains(r.Text, "already verified") {
		t.Errorf("reply = %+v, want already-verified guidance", r)
	}
	if strings.Contains(r.Text, "expired") {
		t.Errorf("verified account got the expired-code message: %q", r.Text)
	}
}

func TestVerifyFormUnregisteredGuidance(t *testing.T) {
	b := newTestBot(nil)

	rsp := &captureResponder{}
	ev := dispatch.Event{Fields: map[string]string{fieldCode: "123456"}}
	if err := b.handleVerifyForm(context.Background(), ev, "7", rsp); err != nil {
		t.Fatalf("handleVerifyForm: %v", err)
	}
	if r := rsp.single(t); !strings.Contains(r.Text, "not registered") {
		t.Errorf("reply = %q, want not-registered guidance", r.Text)
	}
}

func TestVerifyFormExpiredCodeGuidance(t *testing.T) {
	b := newTestBot(map[string]*verify.Profile{
		"7": {
			UserID:               "7",
			VerificationCode:     "123456",
			VerificationIssuedAt: time.Now().Add(-2 * time.Hour),
		},
	})

	rsp := &captureResponder{}
	ev := dispatch.Event{Fields: map[string]string{fieldCode: "123456"}}
	if err := b.handleVerifyForm(context.Background(), ev, "7", rsp); err != nil {
		t.Fatalf("handleVerifyForm: %v", err)
	}
	r := rsp.single(t)
	if !strings.Contains(r.Text, "expired") {
		t.Errorf("reply = %q, want expired-code guidance", r.Text)
	}
	if strings.Contains(r.Text, "already verified") {
		t.Errorf("pending account got the already-verified message: %q", r.Text)
	}
}

func TestOpenVerificationAlreadyVerified(t *testing.T) {
	b := newTestBot(map[string]*verify.Profile{
		"7": {UserID: "7", Verified: true},
	})

	rsp := &captureResponder{}
	ev := dispatch.Event{Kind: dispatch.KindAction, ID: ActionVerify, UserID: "7"}
	if err := b.openVerification(context.Background(), ev, rsp); err != nil {
		t.Fatalf("openVerification: %v", err)
	}
	if r := rsp.single(t); !strings.Contains(r.Text, "already verified") {
		t.Errorf("reply = %q", r.Text)
	}
	if b.fsm.InProgress(7) {
		t.Error("code conversation opened for a verified account")
	}
}

func TestOpenVerificationUnregistered(t *testing.T) {
	b := newTestBot(nil)

	rsp := &captureResponder{}
	ev := dispatch.Event{Kind: dispatch.KindAction, ID: ActionVerify, UserID: "7"}
	if err := b.openVerification(context.Background(), ev, rsp); err != nil {
		t.Fatalf("openVerification: %v", err)
	}
	r := rsp.single(t)
	if len(r.Buttons) != 1 || r.Buttons[0].Action != ActionRegister {
		t.Errorf("reply = %+v, want a register button", r)
	}
	if b.fsm.InProgress(7) {
		t.Error("code conversation opened without a pending code")
	}
}

func TestOpenVerificationPendingCode(t *testing.T) {
	b := newTestBot(map[string]*verify.Profile{
		"7": {
			UserID:               "7",
			VerificationCode:     "123456",
			VerificationIssuedAt: time.Now(),
		},
	})

	rsp := &captureResponder{}
	ev := dispatch.Event{Kind: dispatch.KindAction, ID: ActionVerify, UserID: "7"}
	if err := b.openVerification(context.Background(), ev, rsp); err != nil {
		t.Fatalf("openVerification: %v", err)
	}
	if r := rsp.single(t); !strings.Contains(r.Text, "code") {
		t.Errorf("reply = %q, want the code prompt", r.Text)
	}
	if !b.fsm.InProgress(7) {
		t.Error("code conversation not opened for a pending account")
	}
}

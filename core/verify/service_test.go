package verify

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"
)

type fakeStore struct {
	profiles map[string]*Profile
	patches  []Patch
	getErr   error
	upErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{profiles: make(map[string]*Profile)}
}

func (f *fakeStore) Get(_ context.Context, userID string) (*Profile, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) Upsert(_ context.Context, userID string, patch Patch) error {
	if f.upErr != nil {
		return f.upErr
	}
	f.patches = append(f.patches, patch)
	p, ok := f.profiles[userID]
	if !ok {
		p = &Profile{UserID: userID}
		f.profiles[userID] = p
	}
	if patch.Email != nil {
		p.Email = *patch.Email
	}
	if patch.PhoneNumber != nil {
		p.PhoneNumber = *patch.PhoneNumber
	}
	if patch.DisplayName != nil {
		p.DisplayName = *patch.DisplayName
	}
	if patch.Verified != nil {
		p.Verified = *patch.Verified
	}
	if patch.Code != nil {
		p.VerificationCode = *patch.Code
	}
	if patch.CodeIssuedAt != nil {
		p.VerificationIssuedAt = *patch.CodeIssuedAt
	}
	if patch.ClearCode {
		p.VerificationCode = ""
		p.VerificationIssuedAt = time.Time{}
	}
	if patch.RegisteredAt != nil && p.RegisteredAt.IsZero() {
		p.RegisteredAt = *patch.RegisteredAt
	}
	if p.PaymentIDs == nil {
		p.PaymentIDs = make(map[string]string)
	}
	for k, v := range patch.PaymentIDs {
		p.PaymentIDs[k] = v
	}
	return nil
}

type fakeNotifier struct {
	addr string
	code string
	sent int
	err  error
}

func (f *fakeNotifier) SendCode(_ context.Context, address, code string) error {
	f.sent++
	if f.err != nil {
		return f.err
	}
	f.addr = address
	f.code = code
	return nil
}

type fakeGranter struct {
	called int
	link   string
	err    error
}

func (f *fakeGranter) GrantMember(_ context.Context, _ string) (string, error) {
	f.called++
	if f.err != nil {
		return "", f.err
	}
	return f.link, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func mustClass(t *testing.T, err error, want Class) *Fault {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s fault, got nil", want)
	}
	f, ok := FaultFrom(err)
	if !ok {
		t.Fatalf("expected *Fault, got %T: %v", err, err)
	}
	if f.Class != want {
		t.Fatalf("fault class = %s, want %s (code %s)", f.Class, want, f.Code)
	}
	return f
}

func TestStartRegistrationIssuesCode(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(store, notifier,
		WithClock(fixedClock(base)),
		WithRand(func(n int) int { return n - 1 }),
	)

	reg, err := svc.StartRegistration(context.Background(), "42", "alice", "alice@example.com", "+62 812 3456")
	if err != nil {
		t.Fatalf("StartRegistration: %v", err)
	}
	if reg.Email != "alice@example.com" {
		t.Errorf("email = %q", reg.Email)
	}
	if notifier.code != "999999" {
		t.Errorf("sent code = %q, want 999999", notifier.code)
	}
	if notifier.addr != "alice@example.com" {
		t.Errorf("sent to %q", notifier.addr)
	}

	p := store.profiles["42"]
	if p == nil {
		t.Fatal("no stored profile")
	}
	if p.Verified {
		t.Error("new registration is verified")
	}
	if p.VerificationCode != "999999" || !p.VerificationIssuedAt.Equal(base) {
		t.Errorf("pending code = %q at %v", p.VerificationCode, p.VerificationIssuedAt)
	}
	if !p.RegisteredAt.Equal(base) {
		t.Errorf("registered_at = %v, want %v", p.RegisteredAt, base)
	}
}

func TestStartRegistrationCodeRange(t *testing.T) {
	for _, draw := range []int{0, 449999, 899999} {
		store := newFakeStore()
		notifier := &fakeNotifier{}
		svc := NewService(store, notifier, WithRand(func(int) int { return draw }))
		if _, err := svc.StartRegistration(context.Background(), "1", "u", "u@x.com", "12345678"); err != nil {
			t.Fatalf("draw %d: %v", draw, err)
		}
		n, err := strconv.Atoi(notifier.code)
		if err != nil || n < 100000 || n > 999999 || len(notifier.code) != 6 {
			t.Errorf("draw %d produced code %q", draw, notifier.code)
		}
	}
}

func TestStartRegistrationValidation(t *testing.T) {
	cases := []struct {
		name  string
		email string
		phone string
	}{
		{"email without at sign", "not-an-email", "12345678"},
		{"short phone", "a@b.com", "12345"},
		{"phone padded with separators", "a@b.com", "+ 1 2 3 4 5"},
		{"blank phone", "a@b.com", "   "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			notifier := &fakeNotifier{}
			svc := NewService(store, notifier)
			_, err := svc.StartRegistration(context.Background(), "1", "u", tc.email, tc.phone)
			mustClass(t, err, ClassValidation)
			if len(store.patches) != 0 {
				t.Error("store written on invalid input")
			}
			if notifier.sent != 0 {
				t.Error("notifier called on invalid input")
			}
		})
	}
}

func TestStartRegistrationOverwritesPendingAndKeepsRegisteredAt(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	first := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := first
	svc := NewService(store, notifier,
		WithClock(func() time.Time { return now }),
		WithRand(func(int) int { return 11111 }),
	)

	if _, err := svc.StartRegistration(context.Background(), "42", "a", "a@x.com", "12345678"); err != nil {
		t.Fatal(err)
	}

	now = first.Add(30 * time.Minute)
	if _, err := svc.StartRegistration(context.Background(), "42", "a", "new@x.com", "87654321"); err != nil {
		t.Fatal(err)
	}

	p := store.profiles["42"]
	if p.Email != "new@x.com" {
		t.Errorf("email not replaced: %q", p.Email)
	}
	if !p.VerificationIssuedAt.Equal(now) {
		t.Errorf("issued_at = %v, want %v", p.VerificationIssuedAt, now)
	}
	if !p.RegisteredAt.Equal(first) {
		t.Errorf("registered_at = %v, want original %v", p.RegisteredAt, first)
	}
}

func TestStartRegistrationDeliveryFailureKeepsPending(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{err: errors.New("smtp down")}
	svc := NewService(store, notifier)

	_, err := svc.StartRegistration(context.Background(), "42", "a", "a@x.com", "12345678")
	f := mustClass(t, err, ClassDelivery)
	if f.Code != "mail_send" {
		t.Errorf("code = %q", f.Code)
	}
	if p := store.profiles["42"]; p == nil || !p.HasPendingCode() {
		t.Error("pending record not persisted before delivery attempt")
	}
}

func TestStartRegistrationStorageFault(t *testing.T) {
	store := newFakeStore()
	store.upErr = errors.New("pq: down")
	svc := NewService(store, &fakeNotifier{})
	_, err := svc.StartRegistration(context.Background(), "42", "a", "a@x.com", "12345678")
	mustClass(t, err, ClassStorage)
}

func pendingProfile(issued time.Time) *Profile {
	return &Profile{
		UserID:               "42",
		Email:                "a@x.com",
		PhoneNumber:          "12345678",
		Verified:             false,
		VerificationCode:     "123456",
		VerificationIssuedAt: issued,
		RegisteredAt:         issued,
	}
}

func TestSubmitCodeSuccess(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.profiles["42"] = pendingProfile(issued)
	granter := &fakeGranter{link: "https://t.me/+abc"}
	svc := NewService(store, &fakeNotifier{},
		WithGranter(granter),
		WithClock(fixedClock(issued.Add(10*time.Minute))),
	)

	res, err := svc.SubmitCode(context.Background(), "42", "alice", " 123456 ")
	if err != nil {
		t.Fatalf("SubmitCode: %v", err)
	}
	if res.DisplayName != "alice" || res.InviteLink != "https://t.me/+abc" || res.GrantWarning != "" {
		t.Errorf("result = %+v", res)
	}
	if granter.called != 1 {
		t.Errorf("granter called %d times", granter.called)
	}

	p := store.profiles["42"]
	if !p.Verified {
		t.Error("profile not verified")
	}
	if p.HasPendingCode() {
		t.Errorf("code pair not cleared: %q %v", p.VerificationCode, p.VerificationIssuedAt)
	}
}

func TestSubmitCodeIncorrect(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.profiles["42"] = pendingProfile(issued)
	svc := NewService(store, &fakeNotifier{}, WithClock(fixedClock(issued.Add(time.Minute))))

	_, err := svc.SubmitCode(context.Background(), "42", "alice", "000000")
	f := mustClass(t, err, ClassValidation)
	if f.Code != "incorrect_code" {
		t.Errorf("code = %q", f.Code)
	}
	p := store.profiles["42"]
	if p.Verified || !p.HasPendingCode() {
		t.Error("record changed on incorrect code")
	}
}

func TestSubmitCodeExpiredKeepsCode(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.profiles["42"] = pendingProfile(issued)
	svc := NewService(store, &fakeNotifier{},
		WithCodeTTL(time.Hour),
		WithClock(fixedClock(issued.Add(time.Hour+time.Second))),
	)

	_, err := svc.SubmitCode(context.Background(), "42", "alice", "123456")
	f := mustClass(t, err, ClassNotApplicable)
	if f.Code != "code_expired" {
		t.Errorf("code = %q", f.Code)
	}
	if p := store.profiles["42"]; !p.HasPendingCode() {
		t.Error("expired code cleared; only a new registration should replace it")
	}
}

func TestSubmitCodeExpiredThenReRegister(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.profiles["42"] = pendingProfile(issued)
	notifier := &fakeNotifier{}
	now := issued.Add(2 * time.Hour)
	svc := NewService(store, notifier,
		WithClock(func() time.Time { return now }),
		WithRand(func(int) int { return 554433 }),
	)

	if _, err := svc.SubmitCode(context.Background(), "42", "alice", "123456"); err == nil {
		t.Fatal("expired code accepted")
	}
	if _, err := svc.StartRegistration(context.Background(), "42", "alice", "a@x.com", "12345678"); err != nil {
		t.Fatal(err)
	}

	now = now.Add(time.Minute)
	res, err := svc.SubmitCode(context.Background(), "42", "alice", "654433")
	if err != nil {
		t.Fatalf("fresh code rejected: %v", err)
	}
	if res == nil {
		t.Fatal("nil result")
	}
	if !store.profiles["42"].Verified {
		t.Error("profile not verified after fresh code")
	}
}

func TestSubmitCodeNotPending(t *testing.T) {
	cases := []struct {
		name    string
		profile *Profile
	}{
		{"no record", nil},
		{"already verified", &Profile{UserID: "42", Verified: true}},
		{"no pending code", &Profile{UserID: "42", Email: "a@x.com"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			if tc.profile != nil {
				store.profiles["42"] = tc.profile
			}
			svc := NewService(store, &fakeNotifier{})
			_, err := svc.SubmitCode(context.Background(), "42", "alice", "123456")
			f := mustClass(t, err, ClassNotApplicable)
			if f.Code != "not_pending" {
				t.Errorf("code = %q", f.Code)
			}
		})
	}
}

func TestSubmitCodeGrantFailureStillSucceeds(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.profiles["42"] = pendingProfile(issued)
	granter := &fakeGranter{err: errors.New("chat not found")}
	svc := NewService(store, &fakeNotifier{},
		WithGranter(granter),
		WithClock(fixedClock(issued.Add(time.Minute))),
	)

	res, err := svc.SubmitCode(context.Background(), "42", "alice", "123456")
	if err != nil {
		t.Fatalf("grant failure escalated: %v", err)
	}
	if res.GrantWarning == "" {
		t.Error("missing grant warning")
	}
	if !store.profiles["42"].Verified {
		t.Error("verification lost on grant failure")
	}
}

func verifiedProfile() *Profile {
	return &Profile{
		UserID:      "42",
		Email:       "a@x.com",
		PhoneNumber: "12345678",
		Verified:    true,
	}
}

func TestEditPaymentIdentifiers(t *testing.T) {
	store := newFakeStore()
	store.profiles["42"] = verifiedProfile()
	svc := NewService(store, &fakeNotifier{})

	err := svc.EditPaymentIdentifiers(context.Background(), "42", "alice", map[string]string{
		"dana":    "081234",
		"gopay":   "  ",
		"mandiri": "",
		"bca":     "9988776655",
		"paypal":  "ignored",
	})
	if err != nil {
		t.Fatalf("EditPaymentIdentifiers: %v", err)
	}

	p := store.profiles["42"]
	if p.PaymentIDs["dana"] != "081234" || p.PaymentIDs["bca"] != "9988776655" {
		t.Errorf("payment ids = %v", p.PaymentIDs)
	}
	if _, ok := p.PaymentIDs["gopay"]; ok {
		t.Error("blank gopay value written")
	}
	if _, ok := p.PaymentIDs["paypal"]; ok {
		t.Error("unknown provider written")
	}
}

func TestEditPaymentIdentifiersNoChanges(t *testing.T) {
	store := newFakeStore()
	store.profiles["42"] = verifiedProfile()
	svc := NewService(store, &fakeNotifier{})

	err := svc.EditPaymentIdentifiers(context.Background(), "42", "alice", map[string]string{
		"dana": " ", "gopay": "",
	})
	f := mustClass(t, err, ClassValidation)
	if f.Code != "no_changes" {
		t.Errorf("code = %q", f.Code)
	}
	if len(store.patches) != 0 {
		t.Error("store written with nothing to change")
	}
}

func TestEditPaymentIdentifiersRequiresVerified(t *testing.T) {
	store := newFakeStore()
	store.profiles["42"] = pendingProfile(time.Now())
	svc := NewService(store, &fakeNotifier{})
	err := svc.EditPaymentIdentifiers(context.Background(), "42", "alice", map[string]string{"dana": "1"})
	mustClass(t, err, ClassNotApplicable)
}

func TestEditPhoneNumber(t *testing.T) {
	store := newFakeStore()
	store.profiles["42"] = verifiedProfile()
	svc := NewService(store, &fakeNotifier{})

	if err := svc.EditPhoneNumber(context.Background(), "42", "alice", "+62 811 222 333"); err != nil {
		t.Fatalf("EditPhoneNumber: %v", err)
	}
	if got := store.profiles["42"].PhoneNumber; got != "+62 811 222 333" {
		t.Errorf("phone = %q", got)
	}
}

func TestEditPhoneNumberValidation(t *testing.T) {
	store := newFakeStore()
	store.profiles["42"] = verifiedProfile()
	svc := NewService(store, &fakeNotifier{})

	err := svc.EditPhoneNumber(context.Background(), "42", "alice", "+1 234 567")
	f := mustClass(t, err, ClassValidation)
	if f.Code != "invalid_phone" {
		t.Errorf("code = %q", f.Code)
	}
	if got := store.profiles["42"].PhoneNumber; got != "12345678" {
		t.Errorf("phone changed to %q", got)
	}
}

func TestEditPhoneNumberRequiresProfile(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeNotifier{})
	err := svc.EditPhoneNumber(context.Background(), "42", "alice", "081122334455")
	mustClass(t, err, ClassNotApplicable)
}

func TestStorageFaultSurfaced(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("pq: connection refused")
	svc := NewService(store, &fakeNotifier{})

	if _, err := svc.SubmitCode(context.Background(), "42", "a", "123456"); ClassOf(err) != ClassStorage {
		t.Errorf("SubmitCode class = %q", ClassOf(err))
	}
	if err := svc.EditPhoneNumber(context.Background(), "42", "a", "081122334455"); ClassOf(err) != ClassStorage {
		t.Errorf("EditPhoneNumber class = %q", ClassOf(err))
	}
}

package verify

import (
	"context"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/klipworks/memberbot/core/logger"
	"log/slog"
)

// Store abstracts get/partial-upsert of the per-user profile record.
// Get returns (nil, nil) when no record exists. Upsert merges the patch
// into the record keyed by userID, atomically per call.
type Store interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	Upsert(ctx context.Context, userID string, p Patch) error
}

// Notifier delivers a one-time code to an out-of-band address.
type Notifier interface {
	SendCode(ctx context.Context, address, code string) error
}

// Granter applies the membership entitlement after a successful
// verification. It returns an optional detail string (an invite link)
// surfaced to the user. Grant failures are best-effort by contract.
type Granter interface {
	GrantMember(ctx context.Context, userID string) (string, error)
}

// Registration is the successful outcome of StartRegistration.
type Registration struct {
	Email string
}

// VerifyResult is the successful outcome of SubmitCode.
type VerifyResult struct {
	DisplayName string
	InviteLink  string
	// GrantWarning is set when the membership grant failed; verification
	// itself stays successful.
	GrantWarning string
}

const (
	defaultCodeTTL   = time.Hour
	defaultOpTimeout = 10 * time.Second

	codeMin  = 100000
	codeSpan = 900000
)

// Service owns the account verification lifecycle: issuing codes,
// checking submissions, expiring lazily, and applying post-verification
// edits. It holds no state of its own; the store is the single source of
// truth and per-key upsert atomicity is the only concurrency guarantee
// relied upon (concurrent registrations are last-writer-wins).
type Service struct {
	store    Store
	notifier Notifier
	granter  Granter

	codeTTL   time.Duration
	opTimeout time.Duration
	now       func() time.Time
	intN      func(n int) int
}

// ServiceOption customises Service construction.
type ServiceOption func(*Service)

// WithGranter wires the best-effort membership grant.
func WithGranter(g Granter) ServiceOption {
	return func(s *Service) { s.granter = g }
}

// WithCodeTTL overrides how long an issued code stays valid.
func WithCodeTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.codeTTL = ttl
		}
	}
}

// WithOpTimeout bounds every store/notifier call.
func WithOpTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// WithClock injects the time source (tests).
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRand injects the code draw source (tests).
func WithRand(intN func(n int) int) ServiceOption {
	return func(s *Service) {
		if intN != nil {
			s.intN = intN
		}
	}
}

// NewService constructs the verification service.
func NewService(store Store, notifier Notifier, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		notifier:  notifier,
		codeTTL:   defaultCodeTTL,
		opTimeout: defaultOpTimeout,
		now:       time.Now,
		intN:      rand.IntN,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartRegistration validates the supplied contact details, issues a
// fresh 6-digit code, persists the pending record, and asks the notifier
// to deliver the code. Re-registration overwrites any pending code; the
// original registration timestamp is preserved.
func (s *Service) StartRegistration(ctx context.Context, userID, displayName, email, phone string) (*Registration, error) {
	email = strings.TrimSpace(email)
	phone = strings.TrimSpace(phone)

	if !strings.Contains(email, "@") || len(strippedPhone(phone)) < 6 {
		return nil, fault(ClassValidation, "invalid_contact", nil)
	}

	existing, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}

	code := strconv.Itoa(codeMin + s.intN(codeSpan))
	now := s.now()
	registeredAt := now
	if existing != nil && !existing.RegisteredAt.IsZero() {
		registeredAt = existing.RegisteredAt
	}

	patch := Patch{
		Email:        &email,
		PhoneNumber:  &phone,
		DisplayName:  &displayName,
		Verified:     boolPtr(false),
		Code:         &code,
		CodeIssuedAt: &now,
		RegisteredAt: &registeredAt,
	}
	if err := s.upsert(ctx, userID, patch); err != nil {
		return nil, err
	}

	if err := s.sendCode(ctx, email, code); err != nil {
		// The pending code is already stored; a retry re-issues a fresh one.
		return nil, err
	}

	logger.Info(ctx, "verify", "registration.started",
		slog.String("email_domain", emailDomain(email)),
		slog.Int64("code_ttl_s", int64(s.codeTTL/time.Second)),
	)
	return &Registration{Email: email}, nil
}

// SubmitCode checks a submitted code against the pending record and, when
// it matches within the validity window, transitions the account to
// verified and clears the code pair. Expired codes are reported but not
// cleared; only a fresh registration overwrites them.
func (s *Service) SubmitCode(ctx context.Context, userID, displayName, submitted string) (*VerifyResult, error) {
	submitted = strings.TrimSpace(submitted)

	profile, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil || profile.Verified || !profile.HasPendingCode() {
		return nil, fault(ClassNotApplicable, "not_pending", nil)
	}
	if submitted != profile.VerificationCode {
		return nil, fault(ClassValidation, "incorrect_code", nil)
	}
	if s.now().Sub(profile.VerificationIssuedAt) > s.codeTTL {
		return nil, fault(ClassNotApplicable, "code_expired", nil)
	}

	patch := Patch{
		Verified:    boolPtr(true),
		ClearCode:   true,
		DisplayName: &displayName,
		Email:       &profile.Email,
		PhoneNumber: &profile.PhoneNumber,
	}
	// The transition write must be confirmed before success is claimed.
	if err := s.upsert(ctx, userID, patch); err != nil {
		return nil, err
	}

	logger.Info(ctx, "verify", "verification.succeeded",
		slog.String("subject", userID),
	)

	result := &VerifyResult{DisplayName: displayName}
	if s.granter != nil {
		link, grantErr := s.grant(ctx, userID)
		if grantErr != nil {
			logger.Warn(ctx, "verify", "grant.failed",
				slog.String("subject", userID),
				slog.String("err", grantErr.Error()),
			)
			result.GrantWarning = "membership grant failed; contact an admin"
		} else {
			result.InviteLink = link
		}
	}
	return result, nil
}

// EditPaymentIdentifiers sets the provided non-blank payment identifiers
// on a verified profile. Unknown providers and blank values are ignored;
// when nothing remains, no write happens.
func (s *Service) EditPaymentIdentifiers(ctx context.Context, userID, displayName string, values map[string]string) error {
	profile, err := s.get(ctx, userID)
	if err != nil {
		return err
	}
	if profile == nil || !profile.Verified {
		return fault(ClassNotApplicable, "not_verified", nil)
	}

	changes := make(map[string]string)
	for _, provider := range PaymentProviders {
		if v := strings.TrimSpace(values[provider]); v != "" {
			changes[provider] = v
		}
	}
	if len(changes) == 0 {
		return fault(ClassValidation, "no_changes", nil)
	}

	patch := Patch{
		DisplayName: &displayName,
		Email:       &profile.Email,
		PhoneNumber: &profile.PhoneNumber,
		PaymentIDs:  changes,
	}
	if err := s.upsert(ctx, userID, patch); err != nil {
		return err
	}
	logger.Info(ctx, "verify", "payment.updated",
		slog.String("subject", userID),
		slog.Int("count", len(changes)),
	)
	return nil
}

// EditPhoneNumber replaces the phone number on a verified profile.
func (s *Service) EditPhoneNumber(ctx context.Context, userID, displayName, newPhone string) error {
	newPhone = strings.TrimSpace(newPhone)

	profile, err := s.get(ctx, userID)
	if err != nil {
		return err
	}
	if profile == nil || !profile.Verified {
		return fault(ClassNotApplicable, "not_verified", nil)
	}
	if len(strippedPhone(newPhone)) < 8 {
		return fault(ClassValidation, "invalid_phone", nil)
	}

	patch := Patch{
		PhoneNumber: &newPhone,
		DisplayName: &displayName,
	}
	if err := s.upsert(ctx, userID, patch); err != nil {
		return err
	}
	logger.Info(ctx, "verify", "phone.updated", slog.String("subject", userID))
	return nil
}

// Lookup returns the stored profile for userID, or nil when the user
// has never registered.
func (s *Service) Lookup(ctx context.Context, userID string) (*Profile, error) {
	return s.get(ctx, userID)
}

func (s *Service) get(ctx context.Context, userID string) (*Profile, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	profile, err := s.store.Get(opCtx, userID)
	if err != nil {
		logger.Error(ctx, "verify", "store.get_failed",
			slog.String("subject", userID),
			slog.String("err", err.Error()),
		)
		return nil, fault(ClassStorage, "store_get", err)
	}
	return profile, nil
}

func (s *Service) upsert(ctx context.Context, userID string, p Patch) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.store.Upsert(opCtx, userID, p); err != nil {
		logger.Error(ctx, "verify", "store.upsert_failed",
			slog.String("subject", userID),
			slog.String("err", err.Error()),
		)
		return fault(ClassStorage, "store_upsert", err)
	}
	return nil
}

func (s *Service) sendCode(ctx context.Context, email, code string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.notifier.SendCode(opCtx, email, code); err != nil {
		logger.Error(ctx, "verify", "mail.send_failed",
			slog.String("email_domain", emailDomain(email)),
			slog.String("err", err.Error()),
		)
		return fault(ClassDelivery, "mail_send", err)
	}
	return nil
}

func (s *Service) grant(ctx context.Context, userID string) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.granter.GrantMember(opCtx, userID)
}

// strippedPhone removes whitespace and plus signs for length validation.
func strippedPhone(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '+' {
			return -1
		}
		return r
	}, s)
}

func emailDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 && i < len(email)-1 {
		return email[i+1:]
	}
	return ""
}

func boolPtr(b bool) *bool { return &b }

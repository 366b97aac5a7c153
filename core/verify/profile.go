package verify

import "time"

// PaymentProviders lists the payment identifier slots a profile carries.
var PaymentProviders = []string{"dana", "gopay", "mandiri", "bca"}

// Profile is the per-user record kept by the record store. A zero
// VerificationIssuedAt together with an empty VerificationCode means no
// code is pending.
type Profile struct {
	UserID               string
	Email                string
	PhoneNumber          string
	DisplayName          string
	Verified             bool
	VerificationCode     string
	VerificationIssuedAt time.Time
	RegisteredAt         time.Time
	PaymentIDs           map[string]string
}

// HasPendingCode reports whether a verification code is currently stored.
func (p *Profile) HasPendingCode() bool {
	return p != nil && p.VerificationCode != "" && !p.VerificationIssuedAt.IsZero()
}

// Patch is a partial update applied through the store's merge-by-key
// upsert. Nil pointer fields are left untouched. The verification pair is
// only ever written together: Code with CodeIssuedAt to issue, ClearCode
// to null both out.
type Patch struct {
	Email        *string
	PhoneNumber  *string
	DisplayName  *string
	Verified     *bool
	Code         *string
	CodeIssuedAt *time.Time
	ClearCode    bool
	RegisteredAt *time.Time
	PaymentIDs   map[string]string
}

// IsZero reports whether the patch carries no real field.
func (p Patch) IsZero() bool {
	return p.Email == nil &&
		p.PhoneNumber == nil &&
		p.DisplayName == nil &&
		p.Verified == nil &&
		p.Code == nil &&
		p.CodeIssuedAt == nil &&
		!p.ClearCode &&
		p.RegisteredAt == nil &&
		len(p.PaymentIDs) == 0
}

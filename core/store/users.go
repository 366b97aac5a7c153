package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/klipworks/memberbot/core/verify"
)

// Users persists verification profiles in the users table. It implements
// verify.Store.
type Users struct {
	db *sqlx.DB
}

// NewUsers wraps the shared database handle.
func NewUsers(db *sqlx.DB) *Users {
	return &Users{db: db}
}

type userRow struct {
	UserID       string         `db:"user_id"`
	Email        sql.NullString `db:"email"`
	PhoneNumber  sql.NullString `db:"phone_number"`
	DisplayName  sql.NullString `db:"display_name"`
	Verified     bool           `db:"verified"`
	Code         sql.NullString `db:"verification_code"`
	CodeIssuedAt sql.NullTime   `db:"verification_code_generated_at"`
	RegisteredAt sql.NullTime   `db:"registered_at"`
	Dana         sql.NullString `db:"dana"`
	Gopay        sql.NullString `db:"gopay"`
	Mandiri      sql.NullString `db:"mandiri"`
	BCA          sql.NullString `db:"bca"`
}

const selectUser = `
SELECT user_id, email, phone_number, display_name, verified,
       verification_code, verification_code_generated_at, registered_at,
       dana, gopay, mandiri, bca
FROM users
WHERE user_id = $1`

// Get returns the profile for userID, or (nil, nil) when none exists.
func (u *Users) Get(ctx context.Context, userID string) (*verify.Profile, error) {
	var row userRow
	if err := u.db.GetContext(ctx, &row, selectUser, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select user %s: %w", userID, err)
	}
	return row.profile(), nil
}

func (r userRow) profile() *verify.Profile {
	p := &verify.Profile{
		UserID:           r.UserID,
		Email:            r.Email.String,
		PhoneNumber:      r.PhoneNumber.String,
		DisplayName:      r.DisplayName.String,
		Verified:         r.Verified,
		VerificationCode: r.Code.String,
		PaymentIDs:       make(map[string]string, 4),
	}
	if r.CodeIssuedAt.Valid {
		p.VerificationIssuedAt = r.CodeIssuedAt.Time
	}
	if r.RegisteredAt.Valid {
		p.RegisteredAt = r.RegisteredAt.Time
	}
	for provider, v := range map[string]sql.NullString{
		"dana": r.Dana, "gopay": r.Gopay, "mandiri": r.Mandiri, "bca": r.BCA,
	} {
		if v.Valid && v.String != "" {
			p.PaymentIDs[provider] = v.String
		}
	}
	return p
}

// Upsert merges the patch into the row keyed by userID. Only fields the
// patch carries are written; registered_at keeps the earliest value the
// row has ever seen.
func (u *Users) Upsert(ctx context.Context, userID string, p verify.Patch) error {
	query, args, err := buildUpsert(userID, p)
	if err != nil {
		return err
	}
	if _, err := u.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert user %s: %w", userID, err)
	}
	return nil
}

var paymentColumns = map[string]bool{"dana": true, "gopay": true, "mandiri": true, "bca": true}

// buildUpsert renders an INSERT .. ON CONFLICT statement touching only
// the columns the patch provides.
func buildUpsert(userID string, p verify.Patch) (string, []any, error) {
	if userID == "" {
		return "", nil, errors.New("upsert: empty user id")
	}
	if p.IsZero() {
		return "", nil, errors.New("upsert: empty patch")
	}
	if p.ClearCode && (p.Code != nil || p.CodeIssuedAt != nil) {
		return "", nil, errors.New("upsert: clear_code combined with code fields")
	}

	cols := []string{"user_id"}
	args := []any{userID}
	add := func(col string, v any) {
		cols = append(cols, col)
		args = append(args, v)
	}

	if p.Email != nil {
		add("email", *p.Email)
	}
	if p.PhoneNumber != nil {
		add("phone_number", *p.PhoneNumber)
	}
	if p.DisplayName != nil {
		add("display_name", *p.DisplayName)
	}
	if p.Verified != nil {
		add("verified", *p.Verified)
	}
	if p.Code != nil {
		add("verification_code", *p.Code)
	}
	if p.CodeIssuedAt != nil {
		add("verification_code_generated_at", *p.CodeIssuedAt)
	}
	if p.ClearCode {
		add("verification_code", nil)
		add("verification_code_generated_at", nil)
	}
	if p.RegisteredAt != nil {
		add("registered_at", (*p.RegisteredAt).UTC())
	}
	for _, provider := range verify.PaymentProviders {
		if v, ok := p.PaymentIDs[provider]; ok && paymentColumns[provider] {
			add(provider, v)
		}
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sets := make([]string, 0, len(cols)-1)
	for _, col := range cols[1:] {
		if col == "registered_at" {
			sets = append(sets, "registered_at = COALESCE(users.registered_at, EXCLUDED.registered_at)")
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}

	query := fmt.Sprintf(
		"INSERT INTO users (%s) VALUES (%s) ON CONFLICT (user_id) DO UPDATE SET %s",
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(sets, ", "),
	)
	return query, args, nil
}

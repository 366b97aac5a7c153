package dispatch

import "strings"

// subjectSep joins a form handler key and the subject id inside a wire
// identifier. The key keeps its trailing separator so that identifiers
// whose key itself contains the separator round-trip unchanged.
const subjectSep = "_"

// Ident is the structured form of a form-submission identifier: a handler
// key (including its trailing separator) plus the subject id of the user
// the submission concerns.
type Ident struct {
	Key     string
	Subject string
}

// Encode serializes the ident into its wire identifier.
func (id Ident) Encode() string {
	return id.Key + id.Subject
}

// FormIdent builds an ident for the given handler key and subject.
// The key is normalized to carry the trailing separator.
func FormIdent(key, subject string) Ident {
	if !strings.HasSuffix(key, subjectSep) {
		key += subjectSep
	}
	return Ident{Key: key, Subject: subject}
}

// DecodeForm splits a wire identifier into handler key and subject id.
// The key retains the trailing separator. It reports false when the
// identifier carries no subject segment.
func DecodeForm(raw string) (Ident, bool) {
	i := strings.LastIndex(raw, subjectSep)
	if i < 0 || i == len(raw)-1 {
		return Ident{}, false
	}
	return Ident{Key: raw[:i+1], Subject: raw[i+1:]}, true
}

package redact

import "regexp"

// Kind identifies which sensitive pattern matched, for the warning pass.
type Kind string

const (
	KindCreditCard   Kind = "credit_card"
	KindSSN          Kind = "ssn"
	KindEmail        Kind = "email"
	KindPhone        Kind = "phone"
	KindIPv4         Kind = "ipv4"
	KindJWT          Kind = "jwt"
	KindAPIKey       Kind = "api_key"
	KindPasswordKV   Kind = "password_kv"
	KindAccessToken  Kind = "access_token"
)

// Pattern pairs a regex with the Kind it signals. Detection (the warning
// pass) and redaction (the replacement pass) share this single ordered
// list, per spec.md §9's design note. Quantifiers are bounded to guard
// against catastrophic backtracking on attacker-controlled text.
type Pattern struct {
	Kind    Kind
	Matcher *regexp.Regexp
}

// Patterns is the ordered sensitive-pattern table of spec.md §4.4.
var Patterns = []Pattern{
	{KindCreditCard, regexp.MustCompile(`\b\d{4}[- ]\d{4}[- ]\d{4}[- ]\d{4}\b`)},
	{KindSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{KindJWT, regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{1,1000}\.[A-Za-z0-9_-]{1,1000}\.[A-Za-z0-9_-]{1,1000}\b`)},
	{KindAPIKey, regexp.MustCompile(`(?i)api[-_]?key[\s"':=]{1,5}[A-Za-z0-9_-]{20,200}`)},
	{KindAccessToken, regexp.MustCompile(`(?i)access[-_]?token[\s"':=]{1,5}[A-Za-z0-9_-]{20,200}`)},
	{KindPasswordKV, regexp.MustCompile(`(?i)password["']?\s{0,5}[:=]\s{0,5}"[^"]{1,200}"`)},
	{KindEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]{1,64}@[A-Za-z0-9.-]{1,255}\.[A-Za-z]{1,24}\b`)},
	{KindPhone, regexp.MustCompile(`\b\d{3}[-.]\d{3}[-.]\d{4}\b`)},
	{KindIPv4, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`)},
}

// sensitiveKeySubstrings are case-insensitive substrings that, if found in
// an object key, cause the entire value to be replaced regardless of
// type, per spec.md §4.1 stage 3.
var sensitiveKeySubstrings = []string{
	"password", "token", "secret", "key", "auth", "credential",
}

// Package secrets implements the SecretSanitizer: a set of patterns matched
// against any text about to leave the system (captured stderr, PTY
// scrollback, logs, env dumps) so a secret never reaches a client, a log
// file, or a progress event.
//
// Per REDESIGN FLAGS, this is a constructed *Sanitizer* rather than a
// package-level global: the HTTP adapter, the CLI, and tests each hold their
// own instance (or share one explicitly), so disabling sanitization in a
// test does not leak into unrelated tests running in parallel.
package secrets

import (
	"regexp"
	"strings"
)

// pattern is one named detection rule. contextRequired patterns only match
// when a keyword from contextKeywords appears within contextWindow bytes of
// the candidate match, to avoid flagging ordinary text that merely looks
// like a secret shape (e.g. a 32-hex-char git SHA is not an API key).
type pattern struct {
	name            string
	re              *regexp.Regexp
	replacement     string
	contextRequired bool
}

const contextWindow = 40

var contextKeywords = []string{"api_key", "apikey", "secret", "token", "password", "credential", "auth"}

// patterns is the fixed detection set. Order matters: more specific
// prefixed-key patterns run before the generic bearer-token pattern so a
// "sk-ant-..." value is labeled correctly rather than caught by a looser
// rule first.
var patterns = []pattern{
	{name: "jwt", re: regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`), replacement: "[REDACTED_JWT]"},
	{name: "anthropic_api_key", re: regexp.MustCompile(`\bsk-ant-[A-Za-z0-9_-]{20,}\b`), replacement: "[REDACTED_API_KEY]"},
	{name: "github_token", re: regexp.MustCompile(`\bghp_[A-Za-z0-9]{36,}\b`), replacement: "[REDACTED_GITHUB_TOKEN]"},
	{name: "generic_api_key", re: regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`), replacement: "[REDACTED_API_KEY]"},
	{name: "aws_access_key_id", re: regexp.MustCompile(`\b(AKIA|ASIA)[A-Z0-9]{16}\b`), replacement: "[REDACTED_AWS_KEY]"},
	{name: "postgres_url", re: regexp.MustCompile(`\bpostgres(?:ql)?://[^:\s]+:[^@\s]+@[^\s]+`), replacement: "[REDACTED_DB_URL]"},
	{name: "mysql_url", re: regexp.MustCompile(`\bmysql://[^:\s]+:[^@\s]+@[^\s]+`), replacement: "[REDACTED_DB_URL]"},
	{name: "mongodb_url", re: regexp.MustCompile(`\bmongodb(?:\+srv)?://[^:\s]+:[^@\s]+@[^\s]+`), replacement: "[REDACTED_DB_URL]"},
	{name: "private_key_pem", re: regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----[\s\S]+?-----END (RSA |EC |OPENSSH )?PRIVATE KEY-----`), replacement: "[REDACTED_PRIVATE_KEY]"},
	{name: "docker_auth_json", re: regexp.MustCompile(`"auth"\s*:\s*"[A-Za-z0-9+/=]{20,}"`), replacement: `"auth":"[REDACTED_DOCKER_AUTH]"`},
	{name: "bearer_token", re: regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/-]{20,}=*`), replacement: "Bearer [REDACTED_TOKEN]"},
	{name: "url_embedded_password", re: regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.-]*://[^:\s/]+:[^@\s/]+@`), replacement: "[REDACTED_URL_CREDENTIALS]@"},
	{name: "env_password", re: regexp.MustCompile(`(?i)\b(PASSWORD|PASSWD|PWD)\s*=\s*\S+`), replacement: "$1=[REDACTED]"},
	{name: "credit_card", re: regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`), replacement: "[REDACTED_CARD_NUMBER]", contextRequired: false},
	{name: "ssn", re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), replacement: "[REDACTED_SSN]"},
	{name: "generic_secret_assignment", re: regexp.MustCompile(`(?i)\b(secret|token|api_key|apikey)\s*[:=]\s*['"]?[A-Za-z0-9._-]{12,}['"]?`), replacement: "$1=[REDACTED]", contextRequired: true},
}

// Result is the outcome of one Sanitize call: the redacted text plus an
// audit trail of what was found, never the matched secrets themselves.
type Result struct {
	Text       string      `json:"text"`
	Detections []Detection `json:"detections"`
}

// Sanitizer is an explicitly constructed instance (see REDESIGN FLAGS); the
// zero value is usable with sanitization enabled.
type Sanitizer struct {
	mu      struct{} // patterns slice is read-only after construction; no lock needed for Sanitize itself
	enabled bool
	ring    *detectionRing
}

const defaultRingCapacity = 256

// New constructs a Sanitizer with sanitization enabled and a bounded
// detection-log ring.
func New() *Sanitizer {
	return &Sanitizer{enabled: true, ring: newDetectionRing(defaultRingCapacity)}
}

// Enable turns sanitization on.
func (s *Sanitizer) Enable() { s.enabled = true }

// Disable turns sanitization off; Sanitize becomes a pass-through. Intended
// for controlled test scenarios only — production call sites never disable
// the process sanitizer.
func (s *Sanitizer) Disable() { s.enabled = false }

// Enabled reports whether sanitization is currently active.
func (s *Sanitizer) Enabled() bool { return s.enabled }

// Sanitize redacts every pattern match in text and records a Detection for
// each distinct pattern that fired. It is idempotent: running Sanitize
// again over already-redacted text finds nothing further, since the
// replacement tokens never match any detection pattern themselves.
func (s *Sanitizer) Sanitize(text string) Result {
	if !s.enabled {
		return Result{Text: text}
	}

	out := text
	var detections []Detection
	for _, p := range patterns {
		locs := p.re.FindAllStringIndex(out, -1)
		if len(locs) == 0 {
			continue
		}
		count := 0
		var firstAt int
		firstAt = -1
		filtered := out
		// Replace right-to-left so earlier match offsets stay valid while
		// later ones are being substituted.
		for i := len(locs) - 1; i >= 0; i-- {
			start, end := locs[i][0], locs[i][1]
			if p.contextRequired && !hasContextKeyword(out, start, end) {
				continue
			}
			filtered = filtered[:start] + p.re.ReplaceAllString(filtered[start:end], p.replacement) + filtered[end:]
			count++
			firstAt = start
		}
		out = filtered
		if count > 0 {
			detections = append(detections, Detection{Pattern: p.name, Count: count, FirstAt: firstAt})
			s.ring.push(Detection{Pattern: p.name, Count: count, FirstAt: firstAt})
		}
	}

	return Result{Text: out, Detections: detections}
}

// RecentDetections returns the bounded detection log, oldest first.
func (s *Sanitizer) RecentDetections() []Detection {
	return s.ring.snapshot()
}

func hasContextKeyword(text string, start, end int) bool {
	lo := start - contextWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + contextWindow
	if hi > len(text) {
		hi = len(text)
	}
	window := strings.ToLower(text[lo:hi])
	for _, kw := range contextKeywords {
		if strings.Contains(window, kw) {
			return true
		}
	}
	return false
}

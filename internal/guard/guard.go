// Package guard screens prompts before they reach the retrieval pipeline and
// cleans generated answers before they are returned.
//
// [Gate.Check] applies three rules in a fixed order and stops at the first
// failure:
//
//  1. length: prompts longer than the configured limit (counted in runes)
//  2. blocklist: case-insensitive substring match against configured phrases,
//     first phrase in list order wins
//  3. patterns: a fixed set of code-injection regular expressions
//
// The gate is a best-effort lexical filter, not a security boundary: it does
// not normalise Unicode or decode encodings, and word-boundary matching is
// deliberately not used, so "disregard all" also matches inside longer words.
//
// A Gate holds only immutable configuration and is safe for concurrent use.
package guard

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Reason classifies why a prompt was rejected.
type Reason string

const (
	// ReasonLengthExceeded means the prompt was longer than the limit.
	ReasonLengthExceeded Reason = "length_exceeded"
	// ReasonBlockedPhrase means the prompt contained a blocklisted phrase.
	ReasonBlockedPhrase Reason = "blocked_phrase"
	// ReasonCodeInjection means the prompt matched an injection pattern.
	ReasonCodeInjection Reason = "code_injection"
)

// DefaultMaxPromptLength is the prompt length limit used when none is configured.
const DefaultMaxPromptLength = 1000

// DefaultBlockedPhrases is the blocklist used when none is configured.
var DefaultBlockedPhrases = []string{
	"ignore previous instructions",
	"disregard all",
	"system prompt",
	"DROP TABLE",
	"SELECT * FROM",
	"exec(",
	"eval(",
	"__import__",
	"os.system",
	"subprocess",
}

// injectionPatterns are checked after the blocklist. Which one matched is
// never reported back to the caller.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)\$\{.*?\}`),
}

// tagPattern matches anything that looks like a markup tag.
var tagPattern = regexp.MustCompile(`<[^>]+>`)

// Verdict is the outcome of a single Check call.
type Verdict struct {
	// Safe is true when every rule passed.
	Safe bool `json:"safe"`

	// Reason classifies the failure. Empty when Safe.
	Reason Reason `json:"reason,omitempty"`

	// Message is the human-readable explanation returned to clients.
	Message string `json:"message,omitempty"`

	// Match is the blocklisted phrase that triggered the rejection. It is
	// recorded for auditing even when Message does not reveal it.
	Match string `json:"match,omitempty"`
}

// Config controls gate behaviour.
type Config struct {
	// MaxPromptLength is the maximum prompt length in runes.
	// Defaults to DefaultMaxPromptLength when <= 0.
	MaxPromptLength int

	// BlockedPhrases are matched case-insensitively in order.
	// Defaults to DefaultBlockedPhrases when nil.
	BlockedPhrases []string

	// RevealBlockedPhrase includes the matched phrase in the rejection
	// message. When false the message only states that a blocked pattern
	// was found.
	RevealBlockedPhrase bool
}

// Gate applies the prompt rules and answer sanitisation.
type Gate struct {
	maxLen  int
	phrases []string
	lowered []string
	reveal  bool
}

// New constructs a Gate from cfg, applying defaults for unset fields.
// Empty phrases are dropped since they would match every prompt.
func New(cfg Config) *Gate {
	if cfg.MaxPromptLength <= 0 {
		cfg.MaxPromptLength = DefaultMaxPromptLength
	}
	if cfg.BlockedPhrases == nil {
		cfg.BlockedPhrases = DefaultBlockedPhrases
	}

	g := &Gate{maxLen: cfg.MaxPromptLength, reveal: cfg.RevealBlockedPhrase}
	for _, p := range cfg.BlockedPhrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g.phrases = append(g.phrases, p)
		g.lowered = append(g.lowered, strings.ToLower(p))
	}
	return g
}

// MaxPromptLength returns the configured length limit.
func (g *Gate) MaxPromptLength() int { return g.maxLen }

// BlockedPhrases returns a copy of the configured blocklist.
func (g *Gate) BlockedPhrases() []string {
	return append([]string(nil), g.phrases...)
}

// Check evaluates text against the rules in order and returns the first
// failure, or a safe verdict.
func (g *Gate) Check(text string) Verdict {
	if utf8.RuneCountInString(text) > g.maxLen {
		return Verdict{
			Reason:  ReasonLengthExceeded,
			Message: fmt.Sprintf("Prompt exceeds maximum length of %d", g.maxLen),
		}
	}

	lower := strings.ToLower(text)
	for i, p := range g.lowered {
		if !strings.Contains(lower, p) {
			continue
		}
		v := Verdict{Reason: ReasonBlockedPhrase, Match: g.phrases[i], Message: "Blocked pattern detected"}
		if g.reveal {
			v.Message = "Blocked pattern detected: " + g.phrases[i]
		}
		return v
	}

	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			return Verdict{Reason: ReasonCodeInjection, Message: "Potential code injection detected"}
		}
	}

	return Verdict{Safe: true}
}

// Sanitize removes everything that looks like a markup tag and trims
// surrounding whitespace. Removal repeats until no tag remains, since
// stripping one tag can join fragments into a new one ("<<b>b>"); this makes
// Sanitize idempotent. It is a best-effort cleanup, not an HTML sanitiser.
func (g *Gate) Sanitize(text string) string {
	for tagPattern.MatchString(text) {
		text = tagPattern.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

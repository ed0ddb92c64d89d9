// Package privacy implements the PII Auditor of §4.5: a pure function over
// a prompt string, used by the Fallback Executor's privacy skip predicate.
package privacy

import (
	"regexp"
	"strings"
)

// Result is one Audit outcome.
type Result struct {
	PII     bool
	Reasons []string
}

// Detector is one independently toggleable PII rule.
type Detector string

const (
	DetectorEmail         Detector = "email"
	DetectorPhone         Detector = "phone"
	DetectorStreetAddress Detector = "street_address"
	DetectorNationalID    Detector = "national_identifier"
	DetectorCreditCard    Detector = "credit_card"
)

// AllDetectors is the core's shipped detector set (§4.5).
var AllDetectors = []Detector{
	DetectorEmail, DetectorPhone, DetectorStreetAddress, DetectorNationalID, DetectorCreditCard,
}

// Auditor runs a configured subset of detectors against a prompt. The zero
// value runs every detector — construct with New(disabled...) to
// turn specific ones off, addressing the Luhn-false-positive open question
// in §9 by making any single detector optional.
type Auditor struct {
	disabled map[Detector]bool
}

// New returns an Auditor with every detector except those named in
// disabled.
func New(disabled ...Detector) *Auditor {
	m := make(map[Detector]bool, len(disabled))
	for _, d := range disabled {
		m[d] = true
	}
	return &Auditor{disabled: m}
}

// NewFromNames is New for the string form config.SystemConfig stores
// (DisabledPrivacyDetectors), so callers don't need to convert types
// themselves. Unrecognized names are ignored.
func NewFromNames(disabled []string) *Auditor {
	detectors := make([]Detector, 0, len(disabled))
	for _, name := range disabled {
		detectors = append(detectors, Detector(name))
	}
	return New(detectors...)
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`(\+\d{1,3}[\s.\-]?)?\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}\b`)
	nationalIDPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	digitRunPattern   = regexp.MustCompile(`\b(?:\d[ \-]?){13,19}\b`)
	streetSuffixes    = []string{"st", "ave", "blvd", "rd", "ln", "dr", "ct", "way", "pkwy", "ter", "street", "avenue", "boulevard", "road", "lane", "drive", "court", "parkway", "terrace"}
)

// Audit runs every enabled detector over prompt and returns the combined
// result. It performs no I/O and has no side effects.
func (a *Auditor) Audit(prompt string) Result {
	var reasons []string

	if a.enabled(DetectorEmail) && emailPattern.MatchString(prompt) {
		reasons = append(reasons, string(DetectorEmail))
	}
	if a.enabled(DetectorPhone) && phonePattern.MatchString(prompt) {
		reasons = append(reasons, string(DetectorPhone))
	}
	if a.enabled(DetectorStreetAddress) && hasStreetAddress(prompt) {
		reasons = append(reasons, string(DetectorStreetAddress))
	}
	if a.enabled(DetectorNationalID) && nationalIDPattern.MatchString(prompt) {
		reasons = append(reasons, string(DetectorNationalID))
	}
	if a.enabled(DetectorCreditCard) && hasLuhnValidDigitRun(prompt) {
		reasons = append(reasons, string(DetectorCreditCard))
	}

	return Result{PII: len(reasons) > 0, Reasons: reasons}
}

func (a *Auditor) enabled(d Detector) bool {
	return !a.disabled[d]
}

// hasStreetAddress looks for "<number> <word>+ <suffix>", a conservative
// keyword heuristic rather than a full address grammar, per §4.5's
// "design-level, not a regex dump" framing.
func hasStreetAddress(prompt string) bool {
	words := strings.Fields(prompt)
	for i := 0; i < len(words); i++ {
		if !startsWithDigit(words[i]) {
			continue
		}
		// look ahead up to 4 words for a street-suffix keyword
		for j := i + 1; j < len(words) && j <= i+4; j++ {
			word := strings.ToLower(strings.Trim(words[j], ".,;:"))
			for _, suf := range streetSuffixes {
				if word == suf {
					return true
				}
			}
		}
	}
	return false
}

func startsWithDigit(s string) bool {
	return len(s) > 0 && s[0] >= '0' && s[0] <= '9'
}

// hasLuhnValidDigitRun finds 13-19 digit runs (optionally grouped by
// spaces/hyphens) and checks each against the Luhn checksum.
func hasLuhnValidDigitRun(prompt string) bool {
	for _, match := range digitRunPattern.FindAllString(prompt, -1) {
		digits := stripNonDigits(match)
		if len(digits) >= 13 && len(digits) <= 19 && luhnValid(digits) {
			return true
		}
	}
	return false
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// luhnValid implements the standard Luhn checksum.
func luhnValid(digits string) bool {
	sum := 0
	alternate := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if alternate {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alternate = !alternate
	}
	return sum%10 == 0
}

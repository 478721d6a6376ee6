// Package passcheck evaluates vault passphrases before a key is derived
// from them. Hard length limits fail validation; weak composition only
// produces warnings, since a vault protecting an index that silently
// decrypts to empty under the wrong key is only as deniable as the
// passphrase is strong.
package passcheck

import (
	"fmt"
	"regexp"
)

const (
	// MinLength is the hard minimum passphrase length.
	MinLength = 8
	// MaxLength caps passphrase length.
	MaxLength = 128
)

// Strength is the assessed passphrase strength level.
type Strength int

const (
	Weak Strength = iota
	Fair
	Good
	Strong
)

// String returns a human-readable representation of the strength level.
func (s Strength) String() string {
	switch s {
	case Weak:
		return "Weak"
	case Fair:
		return "Fair"
	case Good:
		return "Good"
	case Strong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// Result holds the outcome of a passphrase check.
type Result struct {
	Valid    bool
	Strength Strength
	Warnings []string
}

var (
	upperRe   = regexp.MustCompile(`[A-Z]`)
	lowerRe   = regexp.MustCompile(`[a-z]`)
	digitRe   = regexp.MustCompile(`\d`)
	specialRe = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>\-_=+\[\]\\;'~/\x60]`)
)

// Check validates a passphrase. Length violations invalidate it outright;
// composition findings are warnings with a strength downgrade.
func Check(passphrase string) *Result {
	result := &Result{Valid: true, Strength: Fair}

	if len(passphrase) < MinLength {
		result.Valid = false
		result.Strength = Weak
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Passphrase must be at least %d characters", MinLength))
		return result
	}
	if len(passphrase) > MaxLength {
		result.Valid = false
		result.Strength = Weak
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Passphrase must be at most %d characters", MaxLength))
		return result
	}

	complexity := 0
	if upperRe.MatchString(passphrase) {
		complexity++
	}
	if lowerRe.MatchString(passphrase) {
		complexity++
	}
	if digitRe.MatchString(passphrase) {
		complexity++
	}
	if specialRe.MatchString(passphrase) {
		complexity++
	}

	if complexity < 2 {
		result.Warnings = append(result.Warnings,
			"Consider using a mix of uppercase, lowercase, numbers, and symbols")
	}
	if len(passphrase) < 12 {
		result.Warnings = append(result.Warnings,
			"Longer passphrases (12+ characters) are more secure")
	}

	switch {
	case complexity >= 3 && len(passphrase) >= 16:
		result.Strength = Strong
	case complexity >= 2 && len(passphrase) >= 12:
		result.Strength = Good
	case complexity >= 2 || len(passphrase) >= 12:
		result.Strength = Fair
	default:
		result.Strength = Weak
	}

	return result
}

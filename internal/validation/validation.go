// Package validation provides input validation for pvduck names.
package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/vegardege/pvduck/internal/errors"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for names.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
}

// ProjectNameRules returns the rules for project names. A project name
// becomes a file name in the config and data directories.
func ProjectNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    200,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// DomainCodeRules returns the rules for dump domain codes such as "en.m"
// or "zh-min-nan".
func DomainCodeRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    64,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules. Errors wrap
// errors.ErrInvalidName.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return invalid(name, fmt.Sprintf("minimum %d characters required", rules.MinLength))
	}
	if len(name) > rules.MaxLength {
		return invalid(name, fmt.Sprintf("maximum %d characters allowed", rules.MaxLength))
	}

	if name == "." || name == ".." {
		return invalid(name, "cannot be '.' or '..'")
	}

	if strings.HasPrefix(name, ".") {
		return invalid(name, "cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return invalid(name, fmt.Sprintf("control character at position %d", i))
		}
		if r == '/' || r == '\\' {
			return invalid(name, fmt.Sprintf("path separator at position %d", i))
		}
		if !isAllowedNameChar(r, rules) {
			return invalid(name, fmt.Sprintf("invalid character '%c' at position %d", r, i))
		}
	}

	return nil
}

func invalid(name, reason string) error {
	return fmt.Errorf("%q: %s: %w", name, reason, errors.ErrInvalidName)
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// ValidateProjectName validates a project name with the project rules.
func ValidateProjectName(name string) error {
	return ValidateName(name, ProjectNameRules())
}

// ValidateDomainCode validates a domain code with the domain code rules.
func ValidateDomainCode(code string) error {
	return ValidateName(code, DomainCodeRules())
}

// Package recipient validates and normalizes capsule recipient addresses.
package recipient

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/and161185/time-capsule/internal/errs"
)

// DefaultMax is the recipient ceiling per capsule.
const DefaultMax = 30

// Validator checks recipient lists against format and count limits.
// It is safe for concurrent use.
type Validator struct {
	max int
	v   *validator.Validate
}

// New constructs a Validator; max <= 0 selects DefaultMax.
func New(max int) *Validator {
	if max <= 0 {
		max = DefaultMax
	}
	return &Validator{max: max, v: validator.New()}
}

// Max returns the configured ceiling.
func (r *Validator) Max() int { return r.max }

// Validate trims, lower-cases and deduplicates raw addresses.
// Every malformed entry yields its own FieldError keyed by its index in raw;
// exceeding the ceiling yields one aggregate FieldError. Blank entries are skipped.
func (r *Validator) Validate(raw []string) ([]string, []errs.FieldError) {
	var (
		clean    = make([]string, 0, len(raw))
		seen     = make(map[string]struct{}, len(raw))
		problems []errs.FieldError
	)
	for i, in := range raw {
		addr := strings.ToLower(strings.TrimSpace(in))
		if addr == "" {
			continue
		}
		if !r.wellFormed(addr) {
			problems = append(problems, errs.FieldError{
				Field:  fmt.Sprintf("recipients[%d]", i),
				Reason: fmt.Sprintf("invalid email address %q", strings.TrimSpace(in)),
			})
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		clean = append(clean, addr)
	}
	if len(clean) > r.max {
		problems = append(problems, errs.FieldError{
			Field:  "recipients",
			Reason: fmt.Sprintf("too many recipients (%d > %d)", len(clean), r.max),
		})
	}
	return clean, problems
}

// wellFormed requires local@domain.tld on top of the validator email rule.
func (r *Validator) wellFormed(addr string) bool {
	if err := r.v.Var(addr, "required,email"); err != nil {
		return false
	}
	at := strings.LastIndexByte(addr, '@')
	domain := addr[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}

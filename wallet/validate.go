/*
validate.go - Pure resource validation

PURPOSE:
  Checks a proposed consumption against a balance snapshot and produces
  a structured deficit report. No I/O; deterministic.

TWO-LAYER VALIDATION:
  The same function serves two call sites:
  1. Pre-flight: the API validates against a possibly-stale snapshot so
     the UI can show "need 1 more seat" before anything is written.
  2. Authoritative: the store re-checks inside the same critical section
     as the ledger append, so a pre-flight pass can never over-consume.

EDGE CASES:
  A requirement of zero (or an absent resource type) is always
  satisfied, regardless of balance.

SEE ALSO:
  - ledger.go: The authoritative guard lives with the append
*/
package wallet

// Requirement is a proposed consumption expressed per resource type.
// Absent resource types mean zero.
type Requirement = Bundle

// ValidationResult reports whether a requirement is satisfiable and,
// when it is not, which counters fall short.
type ValidationResult struct {
	IsValid  bool
	Deficits []Deficit
}

// Validate checks a requirement against a balance snapshot.
// Same inputs always produce the same output.
func Validate(balance Balance, req Requirement) ValidationResult {
	result := ValidationResult{IsValid: true}
	for _, resource := range AllResources {
		required := req[resource]
		if required <= 0 {
			continue
		}
		available := balance.Get(resource).Int64()
		if available < required {
			result.IsValid = false
			result.Deficits = append(result.Deficits, Deficit{
				Resource:  resource,
				Required:  required,
				Available: available,
			})
		}
	}
	return result
}

// Err converts a failed result into the structured ledger error.
// Returns nil for a valid result.
func (r ValidationResult) Err(userID UserID) error {
	if r.IsValid {
		return nil
	}
	return &InsufficientBalanceError{UserID: userID, Deficits: r.Deficits}
}

package status

import "strings"

// eligible holds lower-cased labels that trigger an automatic stock deduction
var eligible = map[string]struct{}{
	"verificado":        {},
	"verified":          {},
	"checado":           {},
	"checked":           {},
	"aprovado":          {},
	"approved":          {},
	"pronto para envio": {},
	"ready to ship":     {},
}

// IsEligible reports whether a canonical status warrants a stock deduction.
func IsEligible(status string) bool {
	_, ok := eligible[strings.ToLower(strings.TrimSpace(status))]
	return ok
}

// EligibleLabels returns the eligible labels, for query filters.
func EligibleLabels() []string {
	out := make([]string, 0, len(eligible))
	for label := range eligible {
		out = append(out, label)
	}
	return out
}

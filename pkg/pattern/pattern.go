// Package pattern compiles the case-insensitive regular expression that
// decides whether a document is kept.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultExpr matches potency measurements reported in nanomolar units:
// IC50, EC50, Ki and Kd followed by "(nM)". Subscript digits are accepted
// for IC₅₀ and EC₅₀.
const DefaultExpr = `(?:\bIC(?:50|₅₀)\s*\(\s*nM\s*\)|\bEC(?:50|₅₀)\s*\(\s*nM\s*\)|\bKi\s*\(\s*nM\s*\)|\bKd\s*\(\s*nM\s*\))`

const caseInsensitive = "(?i)"

// Default is the compiled DefaultExpr.
var Default = regexp.MustCompile(caseInsensitive + DefaultExpr)

// Compile returns expr compiled for case-insensitive matching.
// An empty expr yields Default.
func Compile(expr string) (*regexp.Regexp, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Default, nil
	}
	if !strings.HasPrefix(expr, caseInsensitive) {
		expr = caseInsensitive + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	return re, nil
}

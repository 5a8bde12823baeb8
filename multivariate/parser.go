package multivariate

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"tsbench/tsdata"
)

// term is one parsed component of a contemporaneous constraint.
type term struct {
	coef float64
	name string
	// name is a prefix to expand
	wildcard bool
}

// equation is a parsed contemporaneous constraint.
type equation struct {
	// target series, empty when the target is the constant
	target   string
	constant float64
	terms    []term
}

// aggregation is a parsed temporal constraint.
type aggregation struct {
	aggregate string
	detail    string
	kind      tsdata.AggregationType
}

func parseEquation(s string) (equation, error) {
	lhs, rhs, ok := strings.Cut(s, "=")
	if !ok || strings.Contains(rhs, "=") {
		return equation{}, fmt.Errorf("%w: %q: expected one '='", ErrSyntax, s)
	}
	var eq equation
	lhs = strings.TrimSpace(lhs)
	if v, err := strconv.ParseFloat(lhs, 64); err == nil {
		eq.constant = v
	} else if validName(lhs) {
		eq.target = lhs
	} else {
		return equation{}, fmt.Errorf("%w: %q: invalid target %q", ErrSyntax, s, lhs)
	}

	terms, err := splitTerms(rhs)
	if err != nil {
		return equation{}, fmt.Errorf("%w: %q: %v", ErrSyntax, s, err)
	}
	for _, t := range terms {
		pt, err := parseTerm(t)
		if err != nil {
			return equation{}, fmt.Errorf("%w: %q: %v", ErrSyntax, s, err)
		}
		eq.terms = append(eq.terms, pt)
	}
	return eq, nil
}

// splitTerms cuts an expression at the + and - signs that separate terms,
// keeping the sign with each term. Signs of exponents are not separators.
func splitTerms(s string) ([]string, error) {
	var (
		terms []string
		cur   strings.Builder
	)
	flush := func() error {
		t := strings.TrimSpace(cur.String())
		if t == "" || t == "+" || t == "-" {
			return fmt.Errorf("empty term")
		}
		terms = append(terms, t)
		cur.Reset()
		return nil
	}
	for _, r := range s {
		if (r == '+' || r == '-') && strings.TrimSpace(cur.String()) != "" && !inExponent(cur.String()) {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		cur.WriteRune(r)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return terms, nil
}

// inExponent reports whether s ends with the mantissa of a number in
// scientific notation, as in "1.5e".
func inExponent(s string) bool {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "+- ")
	if len(s) < 2 || (s[len(s)-1] != 'e' && s[len(s)-1] != 'E') {
		return false
	}
	_, err := strconv.ParseFloat(s[:len(s)-1], 64)
	return err == nil
}

// parseTerm parses "[+|-][coef*]name[*]".
func parseTerm(s string) (term, error) {
	t := term{coef: 1}
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "-"):
		t.coef = -1
		s = strings.TrimSpace(s[1:])
	case strings.HasPrefix(s, "+"):
		s = strings.TrimSpace(s[1:])
	}
	if head, rest, ok := strings.Cut(s, "*"); ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(head), 64); err == nil {
			t.coef *= v
			s = strings.TrimSpace(rest)
		}
	}
	if strings.HasSuffix(s, "*") {
		t.wildcard = true
		s = strings.TrimSpace(s[:len(s)-1])
	}
	if !validName(s) {
		if t.wildcard && s == "" {
			return term{}, fmt.Errorf("empty wildcard prefix")
		}
		return term{}, fmt.Errorf("invalid series name %q", s)
	}
	t.name = s
	return t, nil
}

func parseAggregation(s string) (aggregation, error) {
	lhs, rhs, ok := strings.Cut(s, "=")
	if !ok {
		return aggregation{}, fmt.Errorf("%w: %q: expected '='", ErrSyntax, s)
	}
	a := aggregation{aggregate: strings.TrimSpace(lhs)}
	if !validName(a.aggregate) {
		return aggregation{}, fmt.Errorf("%w: %q: invalid aggregate %q", ErrSyntax, s, a.aggregate)
	}
	rhs = strings.TrimSpace(rhs)
	open := strings.IndexByte(rhs, '(')
	if open <= 0 || !strings.HasSuffix(rhs, ")") {
		return aggregation{}, fmt.Errorf("%w: %q: expected function(detail)", ErrSyntax, s)
	}
	fn := strings.ToLower(strings.TrimSpace(rhs[:open]))
	switch fn {
	case "sum":
		a.kind = tsdata.Sum
	case "average", "avg", "mean":
		a.kind = tsdata.Average
	case "first":
		a.kind = tsdata.First
	case "last":
		a.kind = tsdata.Last
	default:
		return aggregation{}, fmt.Errorf("%w: %q: unknown function %q", ErrSyntax, s, fn)
	}
	a.detail = strings.TrimSpace(rhs[open+1 : len(rhs)-1])
	if !validName(a.detail) {
		return aggregation{}, fmt.Errorf("%w: %q: invalid detail %q", ErrSyntax, s, a.detail)
	}
	return a, nil
}

// validName accepts letters, digits and the characters _ . : $ #, not
// starting with a digit.
func validName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case unicode.IsLetter(r), r == '_', r == '.', r == ':', r == '$', r == '#':
		case unicode.IsDigit(r):
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

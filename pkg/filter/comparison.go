package filter

import (
	"regexp"
	"strings"
	"time"

	"github.com/beetlebugorg/featurestore/pkg/feature"
)

// Operator is a binary comparison operator.
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpLess
	OpGreater
)

// String returns the string representation of the operator.
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpLess:
		return "<"
	case OpGreater:
		return ">"
	default:
		return "?"
	}
}

// Comparison compares every value of a property against a literal. The
// feature matches if any value satisfies the operator; features without the
// property never match.
type Comparison struct {
	Property string
	Op       Operator
	Literal  any
}

// Equal matches features where property equals literal.
func Equal(property string, literal any) *Comparison {
	return &Comparison{Property: property, Op: OpEqual, Literal: literal}
}

// NotEqual matches features where property differs from literal.
func NotEqual(property string, literal any) *Comparison {
	return &Comparison{Property: property, Op: OpNotEqual, Literal: literal}
}

// Less matches features where property is less than literal.
func Less(property string, literal any) *Comparison {
	return &Comparison{Property: property, Op: OpLess, Literal: literal}
}

// Greater matches features where property is greater than literal.
func Greater(property string, literal any) *Comparison {
	return &Comparison{Property: property, Op: OpGreater, Literal: literal}
}

// Evaluate applies the comparison.
func (c *Comparison) Evaluate(f *feature.Feature) (bool, error) {
	for _, p := range f.Properties(c.Property) {
		cmp, ok := Compare(p.Value, c.Literal)
		if !ok {
			if c.Op == OpNotEqual {
				return true, nil
			}
			continue
		}
		switch c.Op {
		case OpEqual:
			if cmp == 0 {
				return true, nil
			}
		case OpNotEqual:
			if cmp != 0 {
				return true, nil
			}
		case OpLess:
			if cmp < 0 {
				return true, nil
			}
		case OpGreater:
			if cmp > 0 {
				return true, nil
			}
		}
	}
	return false, nil
}

// Compare orders two scalar values. Numbers compare numerically across
// integer and float types; strings, booleans and times compare within their
// kind. ok is false for values of different kinds or non-scalars.
func Compare(a, b any) (cmp int, ok bool) {
	if fa, isNum := toFloat(a); isNum {
		fb, isNum := toFloat(b)
		if !isNum {
			return 0, false
		}
		return order(fa < fb, fa > fb), true
	}

	switch va := a.(type) {
	case string:
		vb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(va, vb), true
	case bool:
		vb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		return order(!va && vb, va && !vb), true
	case time.Time:
		vb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return va.Compare(vb), true
	}
	return 0, false
}

func order(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Like matches string properties against a pattern where '*' matches any run
// of characters and '?' a single character.
type Like struct {
	Property string
	Pattern  string

	re *regexp.Regexp
}

// NewLike creates a wildcard match filter.
func NewLike(property, pattern string) *Like {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return &Like{Property: property, Pattern: pattern, re: regexp.MustCompile(b.String())}
}

// Evaluate applies the pattern to every string value of the property.
func (l *Like) Evaluate(f *feature.Feature) (bool, error) {
	if l.re == nil {
		return false, &ErrInvalidFilter{Property: l.Property, Reason: "like filter not created with NewLike"}
	}
	for _, p := range f.Properties(l.Property) {
		if s, ok := p.Value.(string); ok && l.re.MatchString(s) {
			return true, nil
		}
	}
	return false, nil
}

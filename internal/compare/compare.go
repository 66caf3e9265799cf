// Package compare provides the scalar predicates used to decide loop
// convergence.
//
// Operands arriving from configuration or analysis output can be integers or
// floats. [LessThan] promotes them consistently: integer semantics apply only
// when both operands are integers, anything else is compared as float64, so a
// whole-number threshold such as 1 never truncates a fractional metric.
package compare

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnsupportedOperand is wrapped by every [UnsupportedOperandError].
var ErrUnsupportedOperand = errors.New("compare: unsupported operand")

// UnsupportedOperandError reports an operand that is neither integer- nor
// float-like.
type UnsupportedOperandError struct {
	Side  string
	Value any
}

func (e *UnsupportedOperandError) Error() string {
	return fmt.Sprintf("compare: unsupported %s operand %v (%T)", e.Side, e.Value, e.Value)
}

func (e *UnsupportedOperandError) Unwrap() error {
	return ErrUnsupportedOperand
}

// Less reports whether value is strictly below threshold.
func Less(value, threshold float64) bool {
	return value < threshold
}

// Number is a promoted numeric operand.
type Number struct {
	Int     int64
	Float   float64
	IsFloat bool
}

// AsFloat returns the operand as float64.
func (n Number) AsFloat() float64 {
	if n.IsFloat {
		return n.Float
	}
	return float64(n.Int)
}

// Promote converts v into a Number. Unsigned values above math.MaxInt64 are
// promoted to float64.
func Promote(v any) (Number, error) {
	switch x := v.(type) {
	case int:
		return Number{Int: int64(x)}, nil
	case int8:
		return Number{Int: int64(x)}, nil
	case int16:
		return Number{Int: int64(x)}, nil
	case int32:
		return Number{Int: int64(x)}, nil
	case int64:
		return Number{Int: x}, nil
	case uint:
		return promoteUnsigned(uint64(x)), nil
	case uint8:
		return Number{Int: int64(x)}, nil
	case uint16:
		return Number{Int: int64(x)}, nil
	case uint32:
		return Number{Int: int64(x)}, nil
	case uint64:
		return promoteUnsigned(x), nil
	case float32:
		return Number{Float: float64(x), IsFloat: true}, nil
	case float64:
		return Number{Float: x, IsFloat: true}, nil
	}
	return Number{}, &UnsupportedOperandError{Value: v}
}

func promoteUnsigned(x uint64) Number {
	if x > math.MaxInt64 {
		return Number{Float: float64(x), IsFloat: true}
	}
	return Number{Int: int64(x)}
}

// LessThan reports whether lhs < rhs after numeric promotion.
func LessThan(lhs, rhs any) (bool, error) {
	l, err := Promote(lhs)
	if err != nil {
		return false, sided(err, "left")
	}
	r, err := Promote(rhs)
	if err != nil {
		return false, sided(err, "right")
	}
	if !l.IsFloat && !r.IsFloat {
		return l.Int < r.Int, nil
	}
	return Less(l.AsFloat(), r.AsFloat()), nil
}

func sided(err error, side string) error {
	var uerr *UnsupportedOperandError
	if errors.As(err, &uerr) {
		uerr.Side = side
	}
	return err
}

package ir

import (
	"bytes"
	"math"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// typeRank returns the position of v's type in the BSON comparison order.
// Duration has no BSON counterpart and sorts right after dates.
func typeRank(v Value) int {
	switch v.(type) {
	case nil, Null:
		return 1
	case Int, Float, Decimal:
		return 2
	case String:
		return 3
	case Document:
		return 4
	case Array:
		return 5
	case Binary, UUID:
		return 6
	case ObjectID:
		return 7
	case Bool:
		return 8
	case Timestamp:
		return 9
	case Duration:
		return 10
	default:
		return 11
	}
}

// IsNumber reports whether v is a numeric value.
func IsNumber(v Value) bool {
	return typeRank(v) == 2
}

// Compare orders two values using the BSON comparison order: values of
// different types compare by type rank, numbers compare across Int, Float and
// Decimal, documents and arrays compare element by element.
func Compare(a, b Value) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}

	switch av := a.(type) {
	case nil, Null:
		return 0
	case Int, Float, Decimal:
		return compareNumbers(av, b)
	case String:
		return strings.Compare(string(av), string(b.(String)))
	case Document:
		return compareDocuments(av, b.(Document))
	case Array:
		bv := b.(Array)
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := Compare(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(av), len(bv))
	case Binary, UUID:
		return bytes.Compare(binaryBytes(av), binaryBytes(b))
	case ObjectID:
		bv := b.(ObjectID)
		return bytes.Compare(av[:], bv[:])
	case Bool:
		bv := b.(Bool)
		switch {
		case av == bv:
			return 0
		case !bool(av):
			return -1
		default:
			return 1
		}
	case Timestamp:
		return av.Time().Compare(b.(Timestamp).Time())
	case Duration:
		return cmpInt(int64(av), int64(b.(Duration)))
	}
	return 0
}

// Equal reports whether a and b are equal under Compare.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

func compareDocuments(a, b Document) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i].Key, b[i].Key); c != 0 {
			return c
		}
		if c := Compare(a[i].Value, b[i].Value); c != 0 {
			return c
		}
	}
	return cmpInt(len(a), len(b))
}

func binaryBytes(v Value) []byte {
	switch val := v.(type) {
	case Binary:
		return val
	case UUID:
		return val[:]
	}
	return nil
}

func compareNumbers(a, b Value) int {
	// NaN equals NaN and sorts below every other number.
	an, bn := isNaN(a), isNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}

	if ai, ok := a.(Int); ok {
		if bi, ok := b.(Int); ok {
			return cmpInt(int64(ai), int64(bi))
		}
	}
	_, aDec := a.(Decimal)
	_, bDec := b.(Decimal)
	if !aDec && !bDec {
		af, bf := toFloat(a), toFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return toApd(a).Cmp(toApd(b))
}

func isNaN(v Value) bool {
	switch val := v.(type) {
	case Float:
		return math.IsNaN(float64(val))
	case Decimal:
		return val.d != nil && val.d.Form == apd.NaN
	}
	return false
}

func toFloat(v Value) float64 {
	switch val := v.(type) {
	case Int:
		return float64(val)
	case Float:
		return float64(val)
	}
	return 0
}

func toApd(v Value) *apd.Decimal {
	switch val := v.(type) {
	case Int:
		return apd.New(int64(val), 0)
	case Float:
		d := new(apd.Decimal)
		if _, err := d.SetFloat64(float64(val)); err != nil {
			return apd.New(0, 0)
		}
		return d
	case Decimal:
		return val.Apd()
	}
	return apd.New(0, 0)
}

func cmpInt[T int | int64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

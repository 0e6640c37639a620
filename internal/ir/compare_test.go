package ir

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompareNumbersAcrossTypes(t *testing.T) {
	assert.True(t, Equal(Int(3), Float(3)))
	assert.True(t, Equal(Int(3), MustDecimal("3.00")))
	assert.True(t, Equal(Float(2.5), MustDecimal("2.5")))
	assert.Equal(t, -1, Compare(Int(2), Float(2.5)))
	assert.Equal(t, 1, Compare(MustDecimal("10"), Int(9)))
}

func TestCompareNaN(t *testing.T) {
	nan := Float(math.NaN())
	assert.True(t, Equal(nan, nan))
	assert.Equal(t, -1, Compare(nan, Int(math.MinInt64)))
	assert.Equal(t, 1, Compare(Float(math.Inf(-1)), nan))
}

func TestCompareTypeOrder(t *testing.T) {
	// null < numbers < string < object < array < binData < objectId < bool < date
	ordered := []Value{
		Null{},
		Int(100),
		String("a"),
		D(E("a", Int(1))),
		A(Int(1)),
		Binary{1},
		ObjectID{1},
		Bool(false),
		Timestamp(time.Unix(0, 0)),
	}
	for i := 0; i < len(ordered)-1; i++ {
		assert.Equal(t, -1, Compare(ordered[i], ordered[i+1]), "%s < %s", TypeName(ordered[i]), TypeName(ordered[i+1]))
	}
}

func TestCompareContainers(t *testing.T) {
	assert.True(t, Equal(A(Int(1), String("x")), A(Float(1), String("x"))))
	assert.False(t, Equal(A(Int(1)), A(Int(1), Int(2))))
	assert.Equal(t, -1, Compare(A(Int(1)), A(Int(1), Int(2))))

	assert.True(t, Equal(D(E("a", Int(1))), D(E("a", Int(1)))))
	assert.False(t, Equal(D(E("a", Int(1)), E("b", Int(2))), D(E("b", Int(2)), E("a", Int(1)))),
		"documents compare by key order")
}

func TestCompareScalars(t *testing.T) {
	assert.Equal(t, -1, Compare(String("a"), String("b")))
	assert.Equal(t, -1, Compare(Bool(false), Bool(true)))
	assert.Equal(t, 0, Compare(Null{}, nil))
	assert.Equal(t, 1, Compare(Timestamp(time.Unix(10, 0)), Timestamp(time.Unix(5, 0))))
	assert.Equal(t, -1, Compare(Duration(time.Second), Duration(time.Minute)))
}

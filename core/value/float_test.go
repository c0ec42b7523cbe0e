package value

import (
	"math"
	"testing"
)

func TestCompareNaNAgainstFinite(t *testing.T) {
	a := CmpFloat(4.5)
	nan := CmpFloat(math.NaN())

	if a.Equal(nan) {
		t.Error("finite value must not equal NaN")
	}
	if got := a.Compare(nan); got != 1 {
		t.Errorf("finite vs NaN: got %d, want 1", got)
	}
	if got := nan.Compare(a); got != -1 {
		t.Errorf("NaN vs finite: got %d, want -1", got)
	}
}

func TestCompareNaNAgainstNaN(t *testing.T) {
	a := CmpFloat(math.NaN())
	b := CmpFloat(math.NaN())

	if !a.Equal(b) {
		t.Error("NaN must equal NaN")
	}
	if got := a.Compare(b); got != 0 {
		t.Errorf("NaN vs NaN: got %d, want 0", got)
	}
}

func TestBitsCollapsesNaNPayloads(t *testing.T) {
	// Two NaNs with different payloads must hash identically.
	quiet := CmpFloat(math.NaN())
	payload := CmpFloat(math.Float64frombits(0x7FF800000000BEEF))

	if !payload.IsNaN() {
		t.Fatal("payload pattern is not a NaN")
	}
	if quiet.Bits() != payload.Bits() {
		t.Errorf("NaN bits differ: %x vs %x", quiet.Bits(), payload.Bits())
	}
	if CmpFloat(1.5).Bits() != math.Float64bits(1.5) {
		t.Error("non-NaN bits must be the raw IEEE-754 pattern")
	}
}

func TestNegativeZeroIsDistinctFromZeroInBits(t *testing.T) {
	pos := CmpFloat(0.0)
	neg := CmpFloat(math.Copysign(0, -1))

	// -0 == 0 for ordering, but the canonical encoding keeps the sign bit.
	if !pos.Equal(neg) || pos.Compare(neg) != 0 {
		t.Error("-0 and 0 must compare equal")
	}
	if pos.Bits() == neg.Bits() {
		t.Error("-0 and 0 must encode to different bit patterns")
	}
}

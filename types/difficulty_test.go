package types

import (
	"math"
	"testing"
)

func TestDifficulty(t *testing.T) {
	hexDiff := "000000000000000000000000683a8b1c"
	diff, err := DifficultyFromString(hexDiff)
	if err != nil {
		t.Fatal(err)
	}

	if diff.String() != hexDiff {
		t.Fatalf("expected %s, got %s", hexDiff, diff)
	}

	if diff2, err := DifficultyFromString("0x683a8b1c"); err != nil {
		t.Fatal(err)
	} else if !diff.Equals(diff2) {
		t.Fatal("0x form mismatch")
	}
}

func TestDifficultyFromPoW(t *testing.T) {
	if !DifficultyFromPoW(ZeroHash).IsZero() {
		t.Fatal("zero hash must give zero difficulty")
	}

	// little-endian value 1: every difficulty passes
	var lowest Hash
	lowest[0] = 0x01
	if DifficultyFromPoW(lowest) != MaxDifficulty {
		t.Fatalf("expected max difficulty, got %s", DifficultyFromPoW(lowest).StringNumeric())
	}

	// little-endian value 2^255: only difficulty 1 passes
	var highBit Hash
	highBit[31] = 0x80
	d := DifficultyFromPoW(highBit)
	if !d.Equals64(1) {
		t.Fatalf("expected difficulty 1, got %s", d.StringNumeric())
	}

	if !DifficultyFrom64(1).CheckPoW(highBit) {
		t.Fatal("difficulty 1 must accept 2^255")
	}
	if DifficultyFrom64(2).CheckPoW(highBit) {
		t.Fatal("difficulty 2 must reject 2^255")
	}
}

func TestDifficultyMul64WithOverflow(t *testing.T) {
	d := DifficultyFrom64(1000)
	if result, overflow := d.Mul64WithOverflow(3); overflow || !result.Equals64(3000) {
		t.Fatal("small multiply must not overflow")
	}

	big := NewDifficulty(0, math.MaxUint64)
	if _, overflow := big.Mul64WithOverflow(2); !overflow {
		t.Fatal("expected overflow")
	}

	if result, overflow := MaxDifficulty.Mul64WithOverflow(1); overflow || !result.Equals(MaxDifficulty) {
		t.Fatal("identity multiply must not overflow")
	}
}

func TestDifficultyJSON(t *testing.T) {
	d := DifficultyFrom64(100000)

	buf, err := d.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}

	var d2 Difficulty
	if err = d2.UnmarshalJSON(buf); err != nil {
		t.Fatal(err)
	}

	if !d.Equals(d2) {
		t.Fatal("difficulty changed across JSON round trip")
	}
}

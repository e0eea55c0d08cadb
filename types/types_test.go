package types

import "testing"

func TestHash(t *testing.T) {
	hexHash := "a0b1c2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1"
	h, err := HashFromString(hexHash)
	if err != nil {
		t.Fatal(err)
	}

	if h.String() != hexHash {
		t.Fatalf("expected %s, got %s", hexHash, h)
	}

	if _, err = HashFromString("abcd"); err == nil {
		t.Fatal("short hash accepted")
	}
}

func TestHashCompare(t *testing.T) {
	a := Hash{0x01}
	b := Hash{0x02}

	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Fatal("wrong hash ordering")
	}
}

func TestHashJSON(t *testing.T) {
	h := MustHashFromString("00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")

	buf, err := h.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}

	var h2 Hash
	if err = h2.UnmarshalJSON(buf); err != nil {
		t.Fatal(err)
	}

	if h != h2 {
		t.Fatal("hash changed across JSON round trip")
	}
}

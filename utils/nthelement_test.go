package utils

import (
	"math/rand"
	"testing"

	"golang.org/x/exp/slices"
)

func TestNthElementSlice(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	for round := 0; round < 32; round++ {
		n := 1 + r.Intn(128)
		s := make([]uint32, n)
		for i := range s {
			s[i] = uint32(r.Intn(64))
		}

		sorted := slices.Clone(s)
		slices.Sort(sorted)

		k := r.Intn(n)
		NthElementSlice(s, k)

		if s[k] != sorted[k] {
			t.Fatalf("wrong kth element, got %d, expected %d", s[k], sorted[k])
		}

		for i := 0; i < k; i++ {
			if s[i] > s[k] {
				t.Fatal("left partition out of order")
			}
		}
		for i := k + 1; i < n; i++ {
			if s[i] < s[k] {
				t.Fatal("right partition out of order")
			}
		}
	}
}

package utils

import (
	"golang.org/x/exp/constraints"
)

func Min[T constraints.Ordered](v0, v1 T) T {
	if v0 < v1 {
		return v0
	}
	return v1
}

func Max[T constraints.Ordered](v0, v1 T) T {
	if v0 > v1 {
		return v0
	}
	return v1
}

// UVarInt64Size encoded size of v as an unsigned varint
func UVarInt64Size[T constraints.Integer](v T) (n int) {
	x := uint64(v)
	for x >= 0x80 {
		x >>= 7
		n++
	}
	return n + 1
}

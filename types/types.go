package types

import (
	"bytes"
	"encoding/hex"
	"errors"

	"git.gammaspectra.live/P2Pool/sharechain/utils"
)

const HashSize = 32

// Hash an opaque 32-byte identifier. The all-zero value is the "empty"
// sentinel, used only as the parent of a genesis block.
type Hash [HashSize]byte

var ZeroHash Hash

func HashFromString(s string) (Hash, error) {
	var h Hash
	if buf, err := hex.DecodeString(s); err != nil {
		return h, err
	} else {
		if len(buf) != HashSize {
			return h, errors.New("wrong hash size")
		}
		copy(h[:], buf)
		return h, nil
	}
}

func MustHashFromString(s string) Hash {
	if h, err := HashFromString(s); err != nil {
		panic(err)
	} else {
		return h
	}
}

func HashFromBytes(buf []byte) (h Hash) {
	if len(buf) != HashSize {
		return
	}
	copy(h[:], buf)
	return
}

func (h Hash) Equals(o Hash) bool {
	return h == o
}

func (h Hash) Compare(o Hash) int {
	return bytes.Compare(h[:], o[:])
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) MarshalJSON() ([]byte, error) {
	var buf [HashSize*2 + 2]byte
	buf[0] = '"'
	buf[HashSize*2+1] = '"'
	hex.Encode(buf[1:], h[:])
	return buf[:], nil
}

func (h *Hash) UnmarshalJSON(b []byte) error {
	var s string
	if err := utils.UnmarshalJSON(b, &s); err != nil {
		return err
	}

	if buf, err := hex.DecodeString(s); err != nil {
		return err
	} else {
		if len(buf) != HashSize {
			return errors.New("wrong hash size")
		}

		copy(h[:], buf)
		return nil
	}
}

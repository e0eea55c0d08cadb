package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"

	"git.gammaspectra.live/P2Pool/edwards25519"
	"git.gammaspectra.live/P2Pool/sharechain/utils"
)

const PublicKeySize = 32
const PrivateKeySize = 32

type PublicKeyBytes [PublicKeySize]byte

var ZeroPublicKeyBytes PublicKeyBytes

func (k *PublicKeyBytes) AsSlice() []byte {
	return (*k)[:]
}

func (k *PublicKeyBytes) AsBytes() PublicKeyBytes {
	return *k
}

// AsPoint nil if the encoding is not a valid point or is not canonical
func (k *PublicKeyBytes) AsPoint() *edwards25519.Point {
	if p, err := new(edwards25519.Point).SetBytes(k.AsSlice()); err != nil {
		return nil
	} else if !bytes.Equal(p.Bytes(), k.AsSlice()) {
		// SetBytes accepts non-canonical encodings of valid points
		return nil
	} else {
		return p
	}
}

func (k *PublicKeyBytes) String() string {
	return hex.EncodeToString(k.AsSlice())
}

func (k PublicKeyBytes) MarshalJSON() ([]byte, error) {
	var buf [PublicKeySize*2 + 2]byte
	buf[0] = '"'
	buf[PublicKeySize*2+1] = '"'
	hex.Encode(buf[1:], k[:])
	return buf[:], nil
}

func (k *PublicKeyBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := utils.UnmarshalJSON(b, &s); err != nil {
		return err
	}

	if buf, err := hex.DecodeString(s); err != nil {
		return err
	} else {
		if len(buf) != PublicKeySize {
			return errors.New("wrong public key size")
		}

		copy((*k)[:], buf)
		return nil
	}
}

type PrivateKeyBytes [PrivateKeySize]byte

func (k *PrivateKeyBytes) AsSlice() []byte {
	return (*k)[:]
}

func (k *PrivateKeyBytes) AsBytes() PrivateKeyBytes {
	return *k
}

// AsScalar nil if the encoding is not canonical
func (k *PrivateKeyBytes) AsScalar() *edwards25519.Scalar {
	if s, err := edwards25519.NewScalar().SetCanonicalBytes(k.AsSlice()); err != nil {
		return nil
	} else {
		return s
	}
}

func (k *PrivateKeyBytes) PublicKey() (buf PublicKeyBytes) {
	s := k.AsScalar()
	if s == nil {
		return ZeroPublicKeyBytes
	}
	copy(buf[:], new(edwards25519.Point).ScalarBaseMult(s).Bytes())
	return buf
}

func (k *PrivateKeyBytes) String() string {
	return hex.EncodeToString(k.AsSlice())
}

func (k PrivateKeyBytes) MarshalJSON() ([]byte, error) {
	var buf [PrivateKeySize*2 + 2]byte
	buf[0] = '"'
	buf[PrivateKeySize*2+1] = '"'
	hex.Encode(buf[1:], k[:])
	return buf[:], nil
}

func (k *PrivateKeyBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := utils.UnmarshalJSON(b, &s); err != nil {
		return err
	}

	if buf, err := hex.DecodeString(s); err != nil {
		return err
	} else {
		if len(buf) != PrivateKeySize {
			return errors.New("wrong private key size")
		}

		copy((*k)[:], buf)
		return nil
	}
}

package crypto

import (
	"encoding/binary"

	"git.gammaspectra.live/P2Pool/edwards25519"
)

var scalar8 *edwards25519.Scalar

func init() {
	var buf [32]byte
	buf[0] = 8
	var err error
	if scalar8, err = edwards25519.NewScalar().SetCanonicalBytes(buf[:]); err != nil {
		panic(err)
	}
}

// CompareConsensusPublicKeyBytes compares public keys the way the consensus
// orders wallets: as four little-endian uint64 limbs, most significant first
func CompareConsensusPublicKeyBytes(a, b PublicKeyBytes) int {
	for i := PublicKeySize - 8; i >= 0; i -= 8 {
		aLimb := binary.LittleEndian.Uint64(a[i:])
		bLimb := binary.LittleEndian.Uint64(b[i:])
		if aLimb < bLimb {
			return -1
		}
		if aLimb > bLimb {
			return 1
		}
	}
	return 0
}

// GetKeyDerivation derivation = 8 * (private * public), ECDH with cofactor
func GetKeyDerivation(public *edwards25519.Point, private *edwards25519.Scalar) *edwards25519.Point {
	point := new(edwards25519.Point).ScalarMult(private, public)
	return new(edwards25519.Point).ScalarMult(scalar8, point)
}

// GetDerivationSharedDataForOutputIndex Hs(derivation || varint(outputIndex))
func GetDerivationSharedDataForOutputIndex(derivation *edwards25519.Point, outputIndex uint64) *edwards25519.Scalar {
	varIntBuf := make([]byte, binary.MaxVarintLen64)
	return HashToScalar(derivation.Bytes(), varIntBuf[:binary.PutUvarint(varIntBuf, outputIndex)])
}

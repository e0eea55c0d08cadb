package wallet

import (
	"errors"

	"git.gammaspectra.live/P2Pool/edwards25519"
	"git.gammaspectra.live/P2Pool/sharechain/crypto"
	"git.gammaspectra.live/P2Pool/sharechain/types"
)

var ErrInvalidSpendKey = errors.New("invalid spend public key")
var ErrInvalidViewKey = errors.New("invalid view public key")
var ErrInvalidTransactionKey = errors.New("invalid transaction private key")

// GetEphemeralPublicKey derives the one-time output public key paying the
// wallet at the given output index:
//
//	derivation = 8 * txKeySec * ViewPub
//	P = Hs(derivation || varint(i)) * G + SpendPub
func GetEphemeralPublicKey(a *PackedAddress, txKeySec *crypto.PrivateKeyBytes, outputIndex uint64) (types.Hash, error) {
	derivation, err := getDerivation(a, txKeySec)
	if err != nil {
		return types.ZeroHash, err
	}

	sharedData := crypto.GetDerivationSharedDataForOutputIndex(derivation, outputIndex)
	return getPublicKeyForSharedData(a, sharedData)
}

func getDerivation(a *PackedAddress, txKeySec *crypto.PrivateKeyBytes) (*edwards25519.Point, error) {
	viewPub := a.ViewPublicKey().AsPoint()
	if viewPub == nil {
		return nil, ErrInvalidViewKey
	}
	secret := txKeySec.AsScalar()
	if secret == nil {
		return nil, ErrInvalidTransactionKey
	}

	return crypto.GetKeyDerivation(viewPub, secret), nil
}

func getPublicKeyForSharedData(a *PackedAddress, sharedData *edwards25519.Scalar) (result types.Hash, err error) {
	spendPub := a.SpendPublicKey().AsPoint()
	if spendPub == nil {
		return types.ZeroHash, ErrInvalidSpendKey
	}

	sharedPoint := new(edwards25519.Point).ScalarBaseMult(sharedData)
	copy(result[:], new(edwards25519.Point).Add(sharedPoint, spendPub).Bytes())
	return result, nil
}

package wallet

import (
	"encoding/binary"

	"git.gammaspectra.live/P2Pool/edwards25519"
	"git.gammaspectra.live/P2Pool/sharechain/crypto"
	"git.gammaspectra.live/P2Pool/sharechain/types"
	"github.com/floatdrop/lru"
)

type derivationCacheKey [crypto.PublicKeySize * 2]byte
type sharedDataCacheKey [crypto.PublicKeySize + 8]byte

// DerivationCache caches the expensive steps of output key derivation across
// a window: the same miners and transaction keys recur for every block that
// pays them.
type DerivationCache struct {
	derivationCache         *lru.LRU[derivationCacheKey, *edwards25519.Point]
	sharedDataCache         *lru.LRU[sharedDataCacheKey, *edwards25519.Scalar]
	ephemeralPublicKeyCache *lru.LRU[derivationCacheKey, types.Hash]
}

func NewDerivationCache() *DerivationCache {
	d := &DerivationCache{}
	d.Clear()
	return d
}

func (d *DerivationCache) Clear() {
	//shares are ~10s apart and a window holds up to 2160 of them, plus uncles.
	//each miner gets one derivation per transaction key and one shared
	//data/ephemeral key per output index it appears at.

	const pplnsSize = 2160
	const knownMinersPerPplns = pplnsSize / 4
	const outputIdsPerMiner = 2

	d.derivationCache = lru.New[derivationCacheKey, *edwards25519.Point](knownMinersPerPplns * 4)
	d.sharedDataCache = lru.New[sharedDataCacheKey, *edwards25519.Scalar](knownMinersPerPplns * outputIdsPerMiner * 4)
	d.ephemeralPublicKeyCache = lru.New[derivationCacheKey, types.Hash](knownMinersPerPplns * outputIdsPerMiner * 4)
}

func (d *DerivationCache) GetEphemeralPublicKey(a *PackedAddress, txKeySec *crypto.PrivateKeyBytes, outputIndex uint64) (types.Hash, error) {
	sharedData, err := d.getSharedData(a, txKeySec, outputIndex)
	if err != nil {
		return types.ZeroHash, err
	}

	var key derivationCacheKey
	copy(key[:], a.SpendPublicKey().AsSlice())
	copy(key[crypto.PublicKeySize:], sharedData.Bytes())
	if ephemeralPublicKey := d.ephemeralPublicKeyCache.Get(key); ephemeralPublicKey == nil {
		result, err := getPublicKeyForSharedData(a, sharedData)
		if err != nil {
			return types.ZeroHash, err
		}
		d.ephemeralPublicKeyCache.Set(key, result)
		return result, nil
	} else {
		return *ephemeralPublicKey, nil
	}
}

func (d *DerivationCache) getSharedData(a *PackedAddress, txKeySec *crypto.PrivateKeyBytes, outputIndex uint64) (*edwards25519.Scalar, error) {
	derivation, err := d.getDerivation(a, txKeySec)
	if err != nil {
		return nil, err
	}

	var key sharedDataCacheKey
	copy(key[:], derivation.Bytes())
	binary.LittleEndian.PutUint64(key[crypto.PublicKeySize:], outputIndex)

	if sharedData := d.sharedDataCache.Get(key); sharedData == nil {
		data := crypto.GetDerivationSharedDataForOutputIndex(derivation, outputIndex)
		d.sharedDataCache.Set(key, data)
		return data, nil
	} else {
		return *sharedData, nil
	}
}

func (d *DerivationCache) getDerivation(a *PackedAddress, txKeySec *crypto.PrivateKeyBytes) (*edwards25519.Point, error) {
	var key derivationCacheKey
	copy(key[:], a.ViewPublicKey().AsSlice())
	copy(key[crypto.PublicKeySize:], txKeySec.AsSlice())

	if derivation := d.derivationCache.Get(key); derivation == nil {
		data, err := getDerivation(a, txKeySec)
		if err != nil {
			return nil, err
		}
		d.derivationCache.Set(key, data)
		return data, nil
	} else {
		return *derivation, nil
	}
}

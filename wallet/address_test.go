package wallet

import (
	"encoding/binary"
	"testing"

	"git.gammaspectra.live/P2Pool/edwards25519"
	"git.gammaspectra.live/P2Pool/sharechain/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func derivedWallet(i uint64) (a PackedAddress) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], i)
	spend := crypto.HashToScalar([]byte("wallet_test_spend"), buf[:])
	view := crypto.HashToScalar([]byte("wallet_test_view"), buf[:])
	copy(a[PackedAddressSpend][:], new(edwards25519.Point).ScalarBaseMult(spend).Bytes())
	copy(a[PackedAddressView][:], new(edwards25519.Point).ScalarBaseMult(view).Bytes())
	return a
}

func derivedTransactionKey(i uint64) (k crypto.PrivateKeyBytes) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], i)
	s := crypto.HashToScalar([]byte("wallet_test_txkey"), buf[:])
	copy(k[:], s.Bytes())
	return k
}

func TestPackedAddressCompare(t *testing.T) {
	a := derivedWallet(1)
	b := derivedWallet(2)

	assert.Zero(t, a.Compare(a))
	assert.Equal(t, -a.ComparePacked(&b), b.ComparePacked(&a))
	assert.NotZero(t, a.ComparePacked(&b))
}

func TestAddressBase58RoundTrip(t *testing.T) {
	a := derivedWallet(3)

	encoded := a.ToBase58(MainNetwork)
	decoded, err := FromBase58(encoded)
	require.NoError(t, err)
	assert.Equal(t, a, *decoded)

	_, err = FromBase58("not an address")
	assert.Error(t, err)
}

func TestGetEphemeralPublicKey(t *testing.T) {
	a := derivedWallet(1)
	txKey := derivedTransactionKey(1)

	k1, err := GetEphemeralPublicKey(&a, &txKey, 0)
	require.NoError(t, err)
	k2, err := GetEphemeralPublicKey(&a, &txKey, 0)
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "derivation must be deterministic")

	k3, err := GetEphemeralPublicKey(&a, &txKey, 1)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3, "output index must change the key")

	b := derivedWallet(2)
	k4, err := GetEphemeralPublicKey(&b, &txKey, 0)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k4, "wallet must change the key")
}

func TestDerivationCacheMatchesDirect(t *testing.T) {
	cache := NewDerivationCache()

	a := derivedWallet(4)
	txKey := derivedTransactionKey(4)

	for i := uint64(0); i < 4; i++ {
		direct, err := GetEphemeralPublicKey(&a, &txKey, i)
		require.NoError(t, err)

		cached, err := cache.GetEphemeralPublicKey(&a, &txKey, i)
		require.NoError(t, err)
		assert.Equal(t, direct, cached)

		// second lookup hits every cache layer
		cached2, err := cache.GetEphemeralPublicKey(&a, &txKey, i)
		require.NoError(t, err)
		assert.Equal(t, direct, cached2)
	}

	cache.Clear()

	cached, err := cache.GetEphemeralPublicKey(&a, &txKey, 0)
	require.NoError(t, err)
	direct, err := GetEphemeralPublicKey(&a, &txKey, 0)
	require.NoError(t, err)
	assert.Equal(t, direct, cached)
}

func TestGetEphemeralPublicKeyInvalidKeys(t *testing.T) {
	// a non-canonical encoding is not a valid point
	var invalid PackedAddress
	for i := range invalid[PackedAddressSpend] {
		invalid[PackedAddressSpend][i] = 0xff
		invalid[PackedAddressView][i] = 0xff
	}
	txKey := derivedTransactionKey(1)

	if _, err := GetEphemeralPublicKey(&invalid, &txKey, 0); err == nil {
		t.Fatal("non-canonical wallet keys must fail derivation")
	}
}

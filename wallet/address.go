package wallet

import (
	"bytes"
	"errors"

	"git.gammaspectra.live/P2Pool/moneroutil"
	"git.gammaspectra.live/P2Pool/sharechain/crypto"
	"git.gammaspectra.live/P2Pool/sharechain/utils"
)

const (
	PackedAddressSpend = 0
	PackedAddressView  = 1
)

// MainNetwork default address network byte for display encoding
const MainNetwork = moneroutil.MainNetwork

// PackedAddress the miner wallet identity carried in shares: spend and view
// public keys, ordered spend first.
type PackedAddress [2]crypto.PublicKeyBytes

func NewPackedAddressFromBytes(spend, view crypto.PublicKeyBytes) (result PackedAddress) {
	copy(result[PackedAddressSpend][:], spend[:])
	copy(result[PackedAddressView][:], view[:])
	return
}

func (p *PackedAddress) SpendPublicKey() *crypto.PublicKeyBytes {
	return &(*p)[PackedAddressSpend]
}

func (p *PackedAddress) ViewPublicKey() *crypto.PublicKeyBytes {
	return &(*p)[PackedAddressView]
}

// ComparePacked special consensus comparison, spend key first
func (p *PackedAddress) ComparePacked(other *PackedAddress) int {
	if result := crypto.CompareConsensusPublicKeyBytes(p[PackedAddressSpend], other[PackedAddressSpend]); result != 0 {
		return result
	}

	return crypto.CompareConsensusPublicKeyBytes(p[PackedAddressView], other[PackedAddressView])
}

func (p PackedAddress) Compare(other PackedAddress) int {
	return p.ComparePacked(&other)
}

func (p *PackedAddress) Valid() bool {
	return p.SpendPublicKey().AsPoint() != nil && p.ViewPublicKey().AsPoint() != nil
}

func (p PackedAddress) Bytes() []byte {
	buf := make([]byte, 0, crypto.PublicKeySize*2)
	buf = append(buf, p[PackedAddressSpend][:]...)
	buf = append(buf, p[PackedAddressView][:]...)
	return buf
}

// ToBase58 display form of the wallet for logs and status output
func (p *PackedAddress) ToBase58(network uint8) string {
	raw := make([]byte, 0, 69)
	raw = append(raw, network)
	raw = append(raw, p[PackedAddressSpend][:]...)
	raw = append(raw, p[PackedAddressView][:]...)
	checksum := moneroutil.GetChecksum(raw)
	raw = append(raw, checksum[:]...)
	return moneroutil.EncodeMoneroBase58(raw)
}

// FromBase58 decodes a display-form address back into a PackedAddress
func FromBase58(address string) (*PackedAddress, error) {
	raw := moneroutil.DecodeMoneroBase58(address)
	if len(raw) != 69 {
		return nil, errors.New("invalid address length")
	}

	checksum := moneroutil.GetChecksum(raw[:65])
	if bytes.Compare(checksum[:], raw[65:]) != 0 {
		return nil, errors.New("invalid address checksum")
	}

	var spend, view crypto.PublicKeyBytes
	copy(spend[:], raw[1:33])
	copy(view[:], raw[33:65])

	p := NewPackedAddressFromBytes(spend, view)
	if !p.Valid() {
		return nil, errors.New("invalid address keys")
	}
	return &p, nil
}

func (p PackedAddress) String() string {
	return p.ToBase58(MainNetwork)
}

func (p PackedAddress) MarshalJSON() ([]byte, error) {
	return utils.MarshalJSON(p.String())
}

func (p *PackedAddress) UnmarshalJSON(b []byte) error {
	var s string
	if err := utils.UnmarshalJSON(b, &s); err != nil {
		return err
	}

	if a, err := FromBase58(s); err != nil {
		return err
	} else {
		*p = *a
		return nil
	}
}

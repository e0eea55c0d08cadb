package sidechain

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"git.gammaspectra.live/P2Pool/sharechain/crypto"
	"git.gammaspectra.live/P2Pool/sharechain/randomx"
	"git.gammaspectra.live/P2Pool/sharechain/types"
	"git.gammaspectra.live/P2Pool/sharechain/utils"
	"git.gammaspectra.live/P2Pool/sharechain/wallet"
)

// TxOutToKey output tag in the outputs blob
const TxOutToKey = 0x02

// PoolBlockMaxTemplateSize sanity bound when decoding relayed blobs
const PoolBlockMaxTemplateSize = 128 * 1024

// PoolBlockOutput one coinbase output: reward in base units and the one-time
// public key paying the share's wallet.
type PoolBlockOutput struct {
	Reward             uint64     `json:"reward"`
	EphemeralPublicKey types.Hash `json:"ephemeral_public_key"`
}

// SideData the consensus-bearing payload of a share. Everything the verifier
// checks lives here; MainChainData stays an opaque relay/PoW blob.
type SideData struct {
	MinerWallet           wallet.PackedAddress   `json:"miner_wallet"`
	TransactionPrivateKey crypto.PrivateKeyBytes `json:"transaction_private_key"`

	// PrevId / GenHeight the base-chain anchor this share was mined against
	PrevId    types.Hash `json:"prev_id"`
	GenHeight uint64     `json:"gen_height"`

	Timestamp uint64 `json:"timestamp"`

	Parent types.Hash   `json:"parent"`
	Uncles []types.Hash `json:"uncles,omitempty"`
	Height uint64       `json:"height"`

	Difficulty           types.Difficulty `json:"difficulty"`
	CumulativeDifficulty types.Difficulty `json:"cumulative_difficulty"`

	Outputs []PoolBlockOutput `json:"outputs"`
}

// PoolBlock a sidechain block. Created on ingestion; afterwards the verifier
// sets verified/invalid, depth propagation raises depth, and tip updates and
// relay set the broadcast flags. Flags and depth are monotonic.
type PoolBlock struct {
	MainChainData []byte `json:"main_chain_data"`

	Side SideData `json:"side"`

	//Temporary data structures
	cache         poolBlockCache
	Depth         atomic.Uint64 `json:"-"`
	Verified      atomic.Bool   `json:"-"`
	Invalid       atomic.Bool   `json:"-"`
	WantBroadcast atomic.Bool   `json:"-"`
	Broadcasted   atomic.Bool   `json:"-"`

	LocalTimestamp uint64 `json:"-"`
}

type poolBlockCache struct {
	templateId atomic.Pointer[types.Hash]
	powHash    atomic.Pointer[types.Hash]
}

// SideTemplateId content-addressed identity under the given consensus,
// computed once and cached.
func (b *PoolBlock) SideTemplateId(consensus *Consensus) types.Hash {
	if id := b.cache.templateId.Load(); id != nil {
		return *id
	}
	id := consensus.CalculateSideTemplateId(b)
	b.cache.templateId.Store(&id)
	return id
}

// PowHashWithError PoW digest of the relay blob under the seed for the
// share's base-chain height. Cached; the result is only meaningful against
// the same seed, which is fixed per GenHeight epoch.
func (b *PoolBlock) PowHashWithError(hasher randomx.Hasher, seed types.Hash) (types.Hash, error) {
	if h := b.cache.powHash.Load(); h != nil {
		return *h, nil
	}
	powHash, err := hasher.Hash(seed[:], b.MainChainData)
	if err != nil {
		return types.ZeroHash, err
	}
	b.cache.powHash.Store(&powHash)
	return powHash, nil
}

// Blob the relayed form: opaque main-chain data followed by the side data
func (b *PoolBlock) Blob() ([]byte, error) {
	sideData, err := b.Side.MarshalBinary()
	if err != nil {
		return nil, err
	}
	blob := make([]byte, 0, len(b.MainChainData)+len(sideData))
	blob = append(blob, b.MainChainData...)
	blob = append(blob, sideData...)
	return blob, nil
}

// MarshalBinary length-prefixed form used by tests and local handoff, where
// the main/side boundary is not implied by context.
func (b *PoolBlock) MarshalBinary() ([]byte, error) {
	sideData, err := b.Side.MarshalBinary()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, utils.UVarInt64Size(len(b.MainChainData))+len(b.MainChainData)+len(sideData))
	buf = binary.AppendUvarint(buf, uint64(len(b.MainChainData)))
	buf = append(buf, b.MainChainData...)
	buf = append(buf, sideData...)
	return buf, nil
}

func (b *PoolBlock) UnmarshalBinary(data []byte) error {
	if len(data) > PoolBlockMaxTemplateSize {
		return errors.New("block data too large")
	}

	reader := bytes.NewReader(data)

	mainLen, err := binary.ReadUvarint(reader)
	if err != nil {
		return err
	}
	if mainLen > PoolBlockMaxTemplateSize {
		return errors.New("main chain data too large")
	}

	b.MainChainData = make([]byte, mainLen)
	if _, err = io.ReadFull(reader, b.MainChainData); err != nil {
		return err
	}

	return b.Side.FromReader(reader)
}

func (b *SideData) BufferLength() int {
	n := crypto.PublicKeySize*2 +
		crypto.PrivateKeySize +
		types.HashSize +
		utils.UVarInt64Size(b.GenHeight) +
		utils.UVarInt64Size(b.Timestamp) +
		types.HashSize +
		utils.UVarInt64Size(len(b.Uncles)) + len(b.Uncles)*types.HashSize +
		utils.UVarInt64Size(b.Height) +
		utils.UVarInt64Size(b.Difficulty.Lo) + utils.UVarInt64Size(b.Difficulty.Hi) +
		utils.UVarInt64Size(b.CumulativeDifficulty.Lo) + utils.UVarInt64Size(b.CumulativeDifficulty.Hi) +
		utils.UVarInt64Size(len(b.Outputs))
	for i := range b.Outputs {
		n += utils.UVarInt64Size(b.Outputs[i].Reward) + 1 + types.HashSize
	}
	return n
}

func (b *SideData) MarshalBinary() ([]byte, error) {
	return b.AppendBinary(make([]byte, 0, b.BufferLength()))
}

func (b *SideData) AppendBinary(preAllocatedBuf []byte) (buf []byte, err error) {
	buf = preAllocatedBuf
	buf = append(buf, b.MinerWallet[wallet.PackedAddressSpend][:]...)
	buf = append(buf, b.MinerWallet[wallet.PackedAddressView][:]...)
	buf = append(buf, b.TransactionPrivateKey[:]...)
	buf = append(buf, b.PrevId[:]...)
	buf = binary.AppendUvarint(buf, b.GenHeight)
	buf = binary.AppendUvarint(buf, b.Timestamp)
	buf = append(buf, b.Parent[:]...)
	buf = binary.AppendUvarint(buf, uint64(len(b.Uncles)))
	for _, uncleId := range b.Uncles {
		buf = append(buf, uncleId[:]...)
	}
	buf = binary.AppendUvarint(buf, b.Height)
	buf = binary.AppendUvarint(buf, b.Difficulty.Lo)
	buf = binary.AppendUvarint(buf, b.Difficulty.Hi)
	buf = binary.AppendUvarint(buf, b.CumulativeDifficulty.Lo)
	buf = binary.AppendUvarint(buf, b.CumulativeDifficulty.Hi)
	buf = b.AppendOutputsBlob(buf)

	return buf, nil
}

// AppendOutputsBlob varint(N) followed by varint(reward) || 0x02 || key per
// output. This exact layout is consensus-visible through GetOutputsBlob.
func (b *SideData) AppendOutputsBlob(buf []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(b.Outputs)))
	for i := range b.Outputs {
		buf = binary.AppendUvarint(buf, b.Outputs[i].Reward)
		buf = append(buf, TxOutToKey)
		buf = append(buf, b.Outputs[i].EphemeralPublicKey[:]...)
	}
	return buf
}

func (b *SideData) FromReader(reader utils.ReaderAndByteReader) (err error) {
	var (
		uncleCount uint64
		uncleHash  types.Hash
	)
	if _, err = io.ReadFull(reader, b.MinerWallet[wallet.PackedAddressSpend][:]); err != nil {
		return err
	}
	if _, err = io.ReadFull(reader, b.MinerWallet[wallet.PackedAddressView][:]); err != nil {
		return err
	}
	if _, err = io.ReadFull(reader, b.TransactionPrivateKey[:]); err != nil {
		return err
	}
	if _, err = io.ReadFull(reader, b.PrevId[:]); err != nil {
		return err
	}
	if b.GenHeight, err = binary.ReadUvarint(reader); err != nil {
		return err
	}
	if b.Timestamp, err = binary.ReadUvarint(reader); err != nil {
		return err
	}
	if _, err = io.ReadFull(reader, b.Parent[:]); err != nil {
		return err
	}
	if uncleCount, err = binary.ReadUvarint(reader); err != nil {
		return err
	}
	if uncleCount > PoolBlockMaxTemplateSize/types.HashSize {
		return errors.New("too many uncles")
	}

	for i := 0; i < int(uncleCount); i++ {
		if _, err = io.ReadFull(reader, uncleHash[:]); err != nil {
			return err
		}
		b.Uncles = append(b.Uncles, uncleHash)
	}

	if b.Height, err = binary.ReadUvarint(reader); err != nil {
		return err
	}

	{
		if b.Difficulty.Lo, err = binary.ReadUvarint(reader); err != nil {
			return err
		}

		if b.Difficulty.Hi, err = binary.ReadUvarint(reader); err != nil {
			return err
		}
	}

	{
		if b.CumulativeDifficulty.Lo, err = binary.ReadUvarint(reader); err != nil {
			return err
		}

		if b.CumulativeDifficulty.Hi, err = binary.ReadUvarint(reader); err != nil {
			return err
		}
	}

	var outputCount uint64
	if outputCount, err = binary.ReadUvarint(reader); err != nil {
		return err
	}
	if outputCount > PoolBlockMaxTemplateSize/types.HashSize {
		return errors.New("too many outputs")
	}

	b.Outputs = make([]PoolBlockOutput, 0, outputCount)
	for i := 0; i < int(outputCount); i++ {
		var o PoolBlockOutput
		if o.Reward, err = binary.ReadUvarint(reader); err != nil {
			return err
		}
		var tag byte
		if tag, err = reader.ReadByte(); err != nil {
			return err
		}
		if tag != TxOutToKey {
			return fmt.Errorf("unexpected output type %d", tag)
		}
		if _, err = io.ReadFull(reader, o.EphemeralPublicKey[:]); err != nil {
			return err
		}
		b.Outputs = append(b.Outputs, o)
	}

	return nil
}

func (b *SideData) UnmarshalBinary(data []byte) error {
	reader := bytes.NewReader(data)
	return b.FromReader(reader)
}

// TotalReward sum of all coinbase outputs
func (b *SideData) TotalReward() (result uint64) {
	for i := range b.Outputs {
		result += b.Outputs[i].Reward
	}
	return
}

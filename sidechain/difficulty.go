package sidechain

import (
	"errors"
	"math"

	"git.gammaspectra.live/P2Pool/sharechain/types"
	"git.gammaspectra.live/P2Pool/sharechain/utils"
)

// DifficultyData one retarget sample: a block's (or in-window uncle's)
// miner-asserted timestamp and cumulative difficulty.
type DifficultyData struct {
	CumulativeDifficulty types.Difficulty
	Timestamp            uint64
}

var errRetargetOverflow = errors.New("calculated difficulty is too high")

// NextDifficulty the difficulty required for the block after tip.
//
// Gathers (timestamp, cumulative difficulty) pairs across the window
// including in-window uncles, trims the outer 10% on each side by timestamp
// via quickselect, and scales the kept cumulative-difficulty span to the
// target block time. Trimming defeats timestamp manipulation; cumulative
// differences tolerate chain shape.
//
// verifyError reports missing window data (transient); invalidError reports
// arithmetic overflow (permanent).
func NextDifficulty(tip *PoolBlock, consensus *Consensus, getByTemplateId GetByTemplateIdFunc, preAllocatedDifficultyData []DifficultyData, preAllocatedTimestampDifferences []uint32) (difficulty types.Difficulty, verifyError, invalidError error) {
	difficultyData := preAllocatedDifficultyData[:0]

	cur := tip
	var blockDepth uint64
	var oldestTimestamp uint64 = math.MaxUint64
	for {
		oldestTimestamp = utils.Min(oldestTimestamp, cur.Side.Timestamp)
		difficultyData = append(difficultyData, DifficultyData{CumulativeDifficulty: cur.Side.CumulativeDifficulty, Timestamp: cur.Side.Timestamp})

		for _, uncleId := range cur.Side.Uncles {
			uncle := getByTemplateId(uncleId)
			if uncle == nil {
				//cannot find uncles
				return types.ZeroDifficulty, errors.New("could not find uncle to calculate difficulty"), nil
			}

			// Skip uncles which are already out of PPLNS window
			if (tip.Side.Height - uncle.Side.Height) >= consensus.ChainWindowSize {
				continue
			}

			oldestTimestamp = utils.Min(oldestTimestamp, uncle.Side.Timestamp)
			difficultyData = append(difficultyData, DifficultyData{CumulativeDifficulty: uncle.Side.CumulativeDifficulty, Timestamp: uncle.Side.Timestamp})
		}

		blockDepth++

		if blockDepth >= consensus.ChainWindowSize {
			break
		}

		// Reached the genesis block so we're done
		if cur.Side.Height == 0 {
			break
		}

		cur = getByTemplateId(cur.Side.Parent)

		if cur == nil {
			return types.ZeroDifficulty, errors.New("could not find parent to calculate difficulty"), nil
		}
	}

	// Discard 10% oldest and 10% newest (by timestamp) blocks
	tmpTimestamps := preAllocatedTimestampDifferences[:0]
	for i := range difficultyData {
		tmpTimestamps = append(tmpTimestamps, uint32(difficultyData[i].Timestamp-oldestTimestamp))
	}

	cutSize := (len(difficultyData) + 9) / 10
	index1 := cutSize - 1
	index2 := len(difficultyData) - cutSize

	utils.NthElementSlice(tmpTimestamps, index1)
	timestamp1 := oldestTimestamp + uint64(tmpTimestamps[index1])

	utils.NthElementSlice(tmpTimestamps, index2)
	timestamp2 := oldestTimestamp + uint64(tmpTimestamps[index2])

	deltaT := uint64(1)
	if timestamp2 > timestamp1 {
		deltaT = timestamp2 - timestamp1
	}

	diff1 := types.NewDifficulty(math.MaxUint64, math.MaxUint64)
	var diff2 types.Difficulty

	for i := range difficultyData {
		d := &difficultyData[i]
		if timestamp1 <= d.Timestamp && d.Timestamp <= timestamp2 {
			if d.CumulativeDifficulty.Cmp(diff1) < 0 {
				diff1 = d.CumulativeDifficulty
			}
			if diff2.Cmp(d.CumulativeDifficulty) < 0 {
				diff2 = d.CumulativeDifficulty
			}
		}
	}

	deltaDiff := diff2.Sub(diff1)

	product, overflow := deltaDiff.Mul64WithOverflow(consensus.TargetBlockTime)
	if overflow {
		return types.ZeroDifficulty, nil, errRetargetOverflow
	}

	curDifficulty := product.Div64(deltaT)

	if curDifficulty.Cmp64(consensus.MinimumDifficulty) < 0 {
		curDifficulty = types.DifficultyFrom64(consensus.MinimumDifficulty)
	}
	return curDifficulty, nil, nil
}

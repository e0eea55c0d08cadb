package sidechain

import (
	"strings"
	"testing"

	"git.gammaspectra.live/P2Pool/sharechain/types"
)

func TestConsensusRanges(t *testing.T) {
	for i, c := range []*Consensus{
		NewConsensus("", "", 10, 100000, 2160, 20),
		NewConsensus(strings.Repeat("A", 129), "", 10, 100000, 2160, 20),
		NewConsensus("test", strings.Repeat("A", 129), 10, 100000, 2160, 20),
		NewConsensus("test", "", 0, 100000, 2160, 20),
		NewConsensus("test", "", 121, 100000, 2160, 20),
		NewConsensus("test", "", 10, 999, 2160, 20),
		NewConsensus("test", "", 10, 1000000001, 2160, 20),
		NewConsensus("test", "", 10, 100000, 59, 20),
		NewConsensus("test", "", 10, 100000, 2161, 20),
		NewConsensus("test", "", 10, 100000, 2160, 0),
		NewConsensus("test", "", 10, 100000, 2160, 100),
	} {
		if c != nil {
			t.Fatalf("out of range config %d was accepted", i)
		}
	}
}

func TestConsensusDefaults(t *testing.T) {
	var c Consensus
	c.applyDefaults()

	// omitted fields take the documented defaults
	if c.PoolName != DefaultPoolName {
		t.Fatalf("wrong default name %s", c.PoolName)
	}
	if c.TargetBlockTime != DefaultTargetBlockTime ||
		c.MinimumDifficulty != DefaultMinimumDifficulty ||
		c.ChainWindowSize != DefaultChainWindowSize ||
		c.UnclePenalty != DefaultUnclePenalty {
		t.Fatal("defaults not applied")
	}
}

func TestConsensusFromJSON(t *testing.T) {
	if _, err := NewConsensusFromJSON([]byte(`{"block_time": 500}`)); err == nil {
		t.Fatal("out of range config accepted")
	}
	if _, err := NewConsensusFromJSON([]byte(`invalid`)); err == nil {
		t.Fatal("invalid json accepted")
	}

	if testing.Short() {
		t.Skip("consensus id generation initializes a full RandomX cache")
	}

	c, err := NewConsensusFromJSON([]byte(`{"name": "json test", "password": "secret"}`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Id() == (types.Hash{}) {
		t.Fatal("consensus id not derived")
	}
}

func TestConsensusId(t *testing.T) {
	if testing.Short() {
		t.Skip("consensus id generation initializes a full RandomX cache")
	}

	c := NewConsensus("test", "pass", 10, 100000, 2160, 20)
	if c == nil {
		t.Fatal("valid config rejected")
	}
	if c.Id() != c.CalculateId() {
		t.Fatal("consensus id is not deterministic")
	}

	c2 := NewConsensus("test", "pass2", 10, 100000, 2160, 20)
	if c2 == nil {
		t.Fatal("valid config rejected")
	}
	if c.Id() == c2.Id() {
		t.Fatalf("consensus is different but ids are equal, %s, %s", c.Id(), c2.Id())
	}
}

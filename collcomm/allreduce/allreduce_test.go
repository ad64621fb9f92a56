package allreduce

import (
	"testing"

	"github.com/unixpickle/rankcoord/collcomm"
)

func TestNaiveAllreducer(t *testing.T) {
	RunAllreducerTests(t, NaiveAllreducer{})
}

func TestTreeAllreducer(t *testing.T) {
	RunAllreducerTests(t, TreeAllreducer{})
}

func TestStreamAllreducer(t *testing.T) {
	t.Run("Coarse", func(t *testing.T) {
		RunAllreducerTests(t, StreamAllreducer{})
	})
	t.Run("Fine", func(t *testing.T) {
		RunAllreducerTests(t, StreamAllreducer{Granularity: 3})
	})
}

func TestTreePosition(t *testing.T) {
	// Collect parent/children for every rank of a 6-rank
	// tree and make sure the edges agree.
	const numRanks = 6
	parents := make([]int, numRanks)
	children := make([][]int, numRanks)
	collcomm.SpawnComms(numRanks, func(c *collcomm.Comms) {
		parents[c.Index()], children[c.Index()] = positionInTree(c)
	})
	if parents[0] != -1 {
		t.Errorf("root should have no parent, got %d", parents[0])
	}
	seen := map[int]bool{}
	for rank, kids := range children {
		for _, child := range kids {
			if parents[child] != rank {
				t.Errorf("rank %d lists child %d whose parent is %d", rank, child, parents[child])
			}
			if seen[child] {
				t.Errorf("rank %d has multiple parents", child)
			}
			seen[child] = true
		}
	}
	if len(seen) != numRanks-1 {
		t.Errorf("expected %d children in total but got %d", numRanks-1, len(seen))
	}
}

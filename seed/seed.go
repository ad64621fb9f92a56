// Package seed keeps the random streams of a group in
// step.
//
// Outside of a Diverge/Reconverge pair, every rank's
// stream is seeded identically, which is what makes a
// checkpointed seed reproducible no matter which rank
// wrote it. Between the pair, each rank has its own
// stream for independent sampling.
package seed

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"github.com/unixpickle/rankcoord/group"
)

// Space is the size of the seed space. Seeds are always
// in [0, Space) and seed arithmetic wraps modulo Space.
//
// Reconverge sums one value below Space from every rank
// in a float64, which stays exact for groups smaller
// than 2^21 ranks.
const Space = 1 << 32

var (
	ErrDiverged    = errors.New("seed: streams are diverged")
	ErrNotDiverged = errors.New("seed: streams are not diverged")
)

// A Coordinator owns the random stream of one rank.
type Coordinator struct {
	comm group.Communicator

	synced   uint64
	local    uint64
	diverged bool

	source *rand.PCG
	rand   *rand.Rand
}

// New creates a Coordinator with the given synchronized
// seed, which must be the same on every rank.
func New(comm group.Communicator, seed uint64) *Coordinator {
	c := &Coordinator{comm: comm, source: rand.NewPCG(0, 0)}
	c.rand = rand.New(c.source)
	c.reseed(seed % Space)
	c.synced = c.local
	return c
}

// Rand returns the current stream.
//
// The returned value stays valid across Diverge and
// Reconverge; it is reseeded in place.
func (c *Coordinator) Rand() *rand.Rand {
	return c.rand
}

// Seed returns the synchronized seed, which is the value
// worth persisting.
func (c *Coordinator) Seed() uint64 {
	return c.synced
}

// LocalSeed returns the seed the stream was last seeded
// with. It only differs from Seed while diverged.
func (c *Coordinator) LocalSeed() uint64 {
	return c.local
}

// Diverged checks if the streams are currently diverged.
func (c *Coordinator) Diverged() bool {
	return c.diverged
}

// Reset reseeds the synchronized stream, e.g. after
// restoring a checkpoint. Every rank must pass the same
// seed.
func (c *Coordinator) Reset(seed uint64) error {
	if c.diverged {
		return ErrDiverged
	}
	c.reseed(seed % Space)
	c.synced = c.local
	return nil
}

// Diverge gives this rank its own stream, derived from
// the synchronized stream and the rank.
func (c *Coordinator) Diverge() error {
	if c.diverged {
		return ErrDiverged
	}
	draw := c.rand.Uint64N(Space)
	c.reseed((draw + uint64(c.comm.Rank())) % Space)

	// Neighboring seeds give correlated first outputs on
	// many generators, and rank-offset seeds are always
	// neighbors. Skip the first output.
	c.rand.Uint64()

	c.diverged = true
	return nil
}

// Reconverge combines one draw from every rank's stream
// into a new synchronized seed and reseeds every rank
// with it.
//
// This is a collective and must be called by every rank.
func (c *Coordinator) Reconverge() error {
	if !c.diverged {
		return ErrNotDiverged
	}
	buf := []float64{float64(c.rand.Uint64N(Space))}
	if err := c.comm.AllreduceSum(buf); err != nil {
		return errors.Wrap(err, "reconverge seeds")
	}
	next := (uint64(buf[0]) / uint64(c.comm.Size())) % Space
	c.reseed(next)
	c.synced = next
	c.diverged = false
	return nil
}

// Scope runs f with diverged streams and reconverges
// afterwards.
//
// Reconverge runs even if f fails, so that every rank
// still takes part in the collective. The error from f
// takes precedence.
func (c *Coordinator) Scope(f func(r *rand.Rand) error) error {
	if err := c.Diverge(); err != nil {
		return err
	}
	fErr := f(c.rand)
	if err := c.Reconverge(); err != nil && fErr == nil {
		return err
	}
	return fErr
}

func (c *Coordinator) reseed(seed uint64) {
	c.source.Seed(seed, seed)
	c.local = seed
}

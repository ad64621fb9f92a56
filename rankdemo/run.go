package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/unixpickle/rankcoord/checkpoint"
	"github.com/unixpickle/rankcoord/console"
	"github.com/unixpickle/rankcoord/group"
	"github.com/unixpickle/rankcoord/interrupt"
	"github.com/unixpickle/rankcoord/lattice"
	"github.com/unixpickle/rankcoord/seed"
	"gonum.org/v1/gonum/floats"
)

// State is everything a run persists between restarts.
type State struct {
	Step int
	Seed uint64

	// Size is the group size that produced the state.
	// Restoring with another size is rejected.
	Size int

	// Sum accumulates every rank's samples.
	Sum [][]*lattice.Dense
}

func newState(cfg *Config, size int) *State {
	s := &State{Seed: cfg.Seed, Size: size, Sum: make([][]*lattice.Dense, cfg.Rows)}
	for i := range s.Sum {
		s.Sum[i] = make([]*lattice.Dense, cfg.Cols)
		for j := range s.Sum[i] {
			s.Sum[i][j] = lattice.NewDense(cfg.Block, cfg.Block)
		}
	}
	return s
}

func launch(cfg *Config) error {
	if cfg.Local > 0 {
		return group.SpawnLocal(cfg.Local, func(g *group.Group) error {
			return run(g, cfg)
		})
	}
	if len(cfg.Group.Addrs) == 0 {
		g := group.Single()
		defer g.Close()
		return run(g, cfg)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	bootLog := logrus.New()
	bootLog.SetLevel(cfg.LogLevel)
	g, err := group.Dial(ctx, cfg.Group, logrus.NewEntry(bootLog))
	if err != nil {
		return err
	}
	defer g.Close()
	return run(g, cfg)
}

func run(g *group.Group, cfg *Config) error {
	log := console.NewLogger(g, os.Stderr, cfg.LogLevel)
	con := console.New(g, os.Stdout)

	state, err := restore(g, cfg, log)
	if err != nil {
		return err
	}
	seeds := seed.New(g, state.Seed)
	store := checkpoint.NewStore(g, checkpoint.GobCodec{}, checkpoint.WithLogger(log))

	return interrupt.Guard(g, func(ic *interrupt.Coordinator) error {
		for state.Step < cfg.Steps {
			stop, err := ic.Requested()
			if err != nil {
				return err
			}
			if stop {
				con.Showln("interrupted at step", state.Step)
				break
			}

			partial := lattice.New(cfg.Rows, cfg.Cols, func(row, col int) lattice.Tensor {
				return lattice.NewDense(cfg.Block, cfg.Block)
			})
			err = seeds.Scope(func(r *rand.Rand) error {
				sample(r, partial, cfg.Samples)
				return nil
			})
			if err != nil {
				return err
			}
			if err := g.AllreduceLattice(partial); err != nil {
				return err
			}
			for i, row := range partial {
				for j, t := range row {
					floats.Add(state.Sum[i][j].Data(), t.Data())
				}
			}

			state.Step++
			state.Seed = seeds.Seed()
			con.Show(fmt.Sprintf("step %d/%d mean=%.5f", state.Step, cfg.Steps, mean(state)))

			if cfg.Checkpoint != "" && state.Step%cfg.CheckpointEvery == 0 {
				if err := store.Write(state, cfg.Checkpoint); err != nil {
					return err
				}
			}
		}
		if cfg.Checkpoint != "" {
			if err := store.Write(state, cfg.Checkpoint); err != nil {
				return err
			}
		}
		con.Showln("finished at step", state.Step, "mean", fmt.Sprintf("%.5f", mean(state)))
		return nil
	}, interrupt.WithOutput(os.Stderr))
}

// restore loads the checkpoint if there is one.
//
// Every rank reads the same file, so every rank ends up
// with the same state and seed.
func restore(g *group.Group, cfg *Config, log *logrus.Entry) (*State, error) {
	if cfg.Checkpoint == "" {
		return newState(cfg, g.Size()), nil
	}
	if _, err := os.Stat(cfg.Checkpoint); os.IsNotExist(err) {
		return newState(cfg, g.Size()), nil
	}
	var state State
	store := checkpoint.NewStore(g, checkpoint.GobCodec{}, checkpoint.WithLogger(log))
	if err := store.Read(cfg.Checkpoint, &state); err != nil {
		return nil, err
	}
	if state.Size != g.Size() {
		return nil, errors.Errorf("checkpoint was written by %d ranks but the group has %d",
			state.Size, g.Size())
	}
	if len(state.Sum) != cfg.Rows || len(state.Sum[0]) != cfg.Cols {
		return nil, errors.New("checkpoint lattice shape does not match the configuration")
	}
	log.WithField("step", state.Step).Info("restored checkpoint")
	return &state, nil
}

// sample adds this rank's share of normal samples to
// every block.
func sample(r *rand.Rand, l lattice.Lattice, samples int) {
	for _, t := range l.Tensors() {
		data := t.Data()
		for i := range data {
			for j := 0; j < samples; j++ {
				data[i] += r.NormFloat64()
			}
		}
	}
}

func mean(s *State) float64 {
	var total float64
	var count int
	for _, row := range s.Sum {
		for _, block := range row {
			total += floats.Sum(block.Data())
			count += block.Len()
		}
	}
	if count == 0 || s.Step == 0 {
		return 0
	}
	return total / float64(count*s.Step)
}

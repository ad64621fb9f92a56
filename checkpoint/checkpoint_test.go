package checkpoint

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/rankcoord/group"
	"github.com/unixpickle/rankcoord/lattice"
	"gonum.org/v1/gonum/mat"
)

type simState struct {
	Step   int
	Seed   uint64
	Energy []float64
	Blocks [][]*lattice.Dense
}

func newSimState(step int) *simState {
	s := &simState{
		Step:   step,
		Seed:   uint64(step) * 1000003,
		Energy: []float64{-1.5, float64(step)},
		Blocks: make([][]*lattice.Dense, 2),
	}
	for i := range s.Blocks {
		s.Blocks[i] = make([]*lattice.Dense, 3)
		for j := range s.Blocks[i] {
			block := lattice.NewDense(2, 2)
			for k := range block.Data() {
				block.Data()[k] = float64(step*100 + i*10 + j + k)
			}
			s.Blocks[i][j] = block
		}
	}
	return s
}

func assertStatesEqual(t *testing.T, expected, actual *simState) {
	assert.Equal(t, expected.Step, actual.Step)
	assert.Equal(t, expected.Seed, actual.Seed)
	assert.Equal(t, expected.Energy, actual.Energy)
	require.Len(t, actual.Blocks, len(expected.Blocks))
	for i := range expected.Blocks {
		require.Len(t, actual.Blocks[i], len(expected.Blocks[i]))
		for j := range expected.Blocks[i] {
			assert.True(t, mat.Equal(expected.Blocks[i][j].Matrix(), actual.Blocks[i][j].Matrix()),
				"block (%d, %d)", i, j)
		}
	}
}

func quietLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func tempFiles(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var res []string
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			res = append(res, e.Name())
		}
	}
	return res
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.ckpt")
	expected := newSimState(3)

	err := group.SpawnLocal(3, func(g *group.Group) error {
		store := NewStore(g, GobCodec{}, WithLogger(quietLogger()))
		if err := store.Write(expected, path); err != nil {
			return err
		}
		// Every rank sees the finished file right away.
		var actual simState
		if err := store.Read(path, &actual); err != nil {
			return err
		}
		if actual.Step != expected.Step {
			return fmt.Errorf("rank %d read step %d", g.Rank(), actual.Step)
		}
		return nil
	})
	require.NoError(t, err)

	g := group.Single()
	defer g.Close()
	var actual simState
	require.NoError(t, NewStore(g, GobCodec{}).Read(path, &actual))
	assertStatesEqual(t, expected, &actual)
	assert.Empty(t, tempFiles(t, filepath.Dir(path)))
}

func TestJSONRoundTrip(t *testing.T) {
	type jsonState struct {
		Step    int
		Lattice [][][]float64
	}
	path := filepath.Join(t.TempDir(), "state.json")
	g := group.Single()
	defer g.Close()

	store := NewStore(g, JSONCodec{}, WithLogger(quietLogger()))
	expected := jsonState{Step: 9, Lattice: [][][]float64{{{1, 2}, {3}}, {{4}, {5, 6}}}}
	require.NoError(t, store.Write(expected, path))

	var actual jsonState
	require.NoError(t, store.Read(path, &actual))
	assert.Equal(t, expected, actual)
}

func TestOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.ckpt")
	g := group.Single()
	defer g.Close()

	store := NewStore(g, GobCodec{}, WithLogger(quietLogger()))
	require.NoError(t, store.Write(newSimState(1), path))
	require.NoError(t, store.Write(newSimState(2), path))

	var actual simState
	require.NoError(t, store.Read(path, &actual))
	assertStatesEqual(t, newSimState(2), &actual)
}

// failingCodec writes part of the state and then fails,
// like a process dying in the middle of serialization.
type failingCodec struct {
	GobCodec
}

func (failingCodec) Encode(w io.Writer, state interface{}) error {
	w.Write([]byte("partial garbage"))
	return errors.New("disk on fire")
}

func TestFailedWriteKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.ckpt")
	previous := newSimState(5)

	err := group.SpawnLocal(3, func(g *group.Group) error {
		return NewStore(g, GobCodec{}, WithLogger(quietLogger())).Write(previous, path)
	})
	require.NoError(t, err)

	errs := make([]error, 3)
	err = group.SpawnLocal(3, func(g *group.Group) error {
		store := NewStore(g, failingCodec{}, WithLogger(quietLogger()))
		errs[g.Rank()] = store.Write(newSimState(6), path)
		return nil
	})
	require.NoError(t, err)
	assert.ErrorContains(t, errs[0], "disk on fire")
	assert.ErrorIs(t, errs[1], ErrWriteFailed)
	assert.ErrorIs(t, errs[2], ErrWriteFailed)

	g := group.Single()
	defer g.Close()
	var actual simState
	require.NoError(t, NewStore(g, GobCodec{}).Read(path, &actual))
	assertStatesEqual(t, previous, &actual)
	assert.Empty(t, tempFiles(t, filepath.Dir(path)))
}

func TestStaleTempFileIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.ckpt")
	g := group.Single()
	defer g.Close()

	store := NewStore(g, GobCodec{}, WithLogger(quietLogger()))
	require.NoError(t, store.Write(newSimState(1), path))

	// A crash after the temporary file was created but
	// before the rename leaves a corrupt sibling behind.
	stale := path + ".tmp-crashed"
	require.NoError(t, os.WriteFile(stale, []byte("corrupt"), 0644))

	var actual simState
	require.NoError(t, store.Read(path, &actual))
	assertStatesEqual(t, newSimState(1), &actual)

	require.NoError(t, store.Write(newSimState(2), path))
	var next simState
	require.NoError(t, store.Read(path, &next))
	assertStatesEqual(t, newSimState(2), &next)
}

func TestReadMissing(t *testing.T) {
	g := group.Single()
	defer g.Close()
	var actual simState
	err := NewStore(g, GobCodec{}).Read(filepath.Join(t.TempDir(), "nope"), &actual)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

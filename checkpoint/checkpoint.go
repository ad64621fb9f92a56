// Package checkpoint persists a run's state so that a
// crash at any moment leaves a readable checkpoint.
//
// Only the primary rank writes. The state is encoded into
// a temporary file next to the destination, which is then
// renamed over it. A crash before the rename leaves the
// previous checkpoint untouched.
package checkpoint

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/unixpickle/rankcoord/group"
)

// ErrWriteFailed is returned on non-primary ranks when
// the primary rank could not write a checkpoint.
var ErrWriteFailed = errors.New("checkpoint: write failed on primary rank")

// An Option configures a Store.
type Option func(s *Store)

// WithLogger sets the logger used for write events.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Store) {
		s.log = log
	}
}

// A Store reads and writes checkpoints for one rank.
type Store struct {
	comm  group.Communicator
	codec Codec
	log   *logrus.Entry
}

// NewStore creates a Store.
func NewStore(comm group.Communicator, codec Codec, opts ...Option) *Store {
	s := &Store{
		comm:  comm,
		codec: codec,
		log:   logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write stores state at path.
//
// This is a collective. The primary rank writes the file;
// then every rank waits until the write has finished, so
// no rank proceeds while the checkpoint is incomplete. If
// the primary fails, it returns the underlying error and
// every other rank returns ErrWriteFailed.
func (s *Store) Write(state interface{}, path string) error {
	var writeErr error
	var failed float64
	if s.comm.Rank() == group.Root {
		writeErr = s.writeFile(state, path)
		if writeErr != nil {
			failed = 1
			s.log.WithError(writeErr).WithField("path", path).Error("checkpoint write failed")
		} else {
			s.log.WithField("path", path).Debug("checkpoint written")
		}
	}

	// The reduction doubles as the barrier.
	buf := []float64{failed}
	if err := s.comm.AllreduceSum(buf); err != nil {
		return errors.Wrap(err, "checkpoint barrier")
	}
	if writeErr != nil {
		return writeErr
	} else if buf[0] != 0 {
		return ErrWriteFailed
	}
	return nil
}

// Read loads the checkpoint at path into state, which
// must be a pointer.
//
// Every rank reads the file itself; no communication is
// involved.
func (s *Store) Read(path string, state interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open checkpoint")
	}
	defer f.Close()
	if err := s.codec.Decode(bufio.NewReader(f), state); err != nil {
		return errors.Wrapf(err, "decode checkpoint %s", path)
	}
	return nil
}

func (s *Store) writeFile(state interface{}, path string) (err error) {
	tempPath := path + ".tmp-" + uuid.NewString()
	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return errors.Wrap(err, "create temporary checkpoint")
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tempPath)
		}
	}()

	w := bufio.NewWriter(f)
	if err := s.codec.Encode(w, state); err != nil {
		return errors.Wrap(err, "encode checkpoint")
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "write temporary checkpoint")
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(err, "sync temporary checkpoint")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close temporary checkpoint")
	}
	if err := os.Rename(tempPath, path); err != nil {
		return errors.Wrap(err, "rename checkpoint")
	}
	syncDir(filepath.Dir(path))
	return nil
}

// syncDir makes a rename durable where the platform
// allows it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

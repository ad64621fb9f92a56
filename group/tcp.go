package group

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/unixpickle/rankcoord/collcomm"
)

// Config is the bootstrap information for a rank of a
// multi-process group.
type Config struct {
	// Rank is this process's position in Addrs.
	Rank int

	// Size is the number of processes.
	// If it is 0, len(Addrs) is used.
	Size int

	// Addrs lists a listen address for every rank.
	Addrs []string
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	size := c.Size
	if size == 0 {
		size = len(c.Addrs)
	}
	if size < 1 {
		return errors.New("group: size must be at least 1")
	}
	if size != len(c.Addrs) {
		return errors.Errorf("group: size %d does not match %d addresses", size, len(c.Addrs))
	}
	if c.Rank < 0 || c.Rank >= size {
		return errors.Errorf("group: rank %d out of range [0, %d)", c.Rank, size)
	}
	return nil
}

// Dial connects this process to the rest of the group
// over TCP.
//
// Every process of the run must call Dial with the same
// Addrs. It blocks until every peer is connected or ctx
// is done.
func Dial(ctx context.Context, cfg Config, log *logrus.Entry, opts ...Option) (*Group, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	link, err := collcomm.DialTCP(ctx, cfg.Rank, cfg.Addrs, log)
	if err != nil {
		return nil, errors.Wrap(err, "dial group")
	}
	return New(collcomm.NewEndpoint(cfg.Rank, len(cfg.Addrs), link), opts...), nil
}

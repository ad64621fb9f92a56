package main

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/unixpickle/rankcoord/group"
)

const defaultConnectTimeout = time.Minute

var envReplacer = strings.NewReplacer("-", "_")

// Config holds the settings of one rankdemo process.
type Config struct {
	Group group.Config
	Local int

	Steps   int
	Rows    int
	Cols    int
	Block   int
	Samples int
	Seed    uint64

	Checkpoint      string
	CheckpointEvery int

	ConnectTimeout time.Duration
	LogLevel       logrus.Level
}

func loadConfig(v *viper.Viper) (*Config, error) {
	level, err := logrus.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Group: group.Config{
			Rank:  v.GetInt("rank"),
			Addrs: splitAddrs(v.GetStringSlice("addrs")),
		},
		Local:           v.GetInt("local"),
		Steps:           v.GetInt("steps"),
		Rows:            v.GetInt("rows"),
		Cols:            v.GetInt("cols"),
		Block:           v.GetInt("block"),
		Samples:         v.GetInt("samples"),
		Seed:            v.GetUint64("seed"),
		Checkpoint:      v.GetString("checkpoint"),
		CheckpointEvery: v.GetInt("checkpoint-every"),
		ConnectTimeout:  v.GetDuration("connect-timeout"),
		LogLevel:        level,
	}
	return cfg, cfg.Validate()
}

// Validate checks the settings that do not depend on the
// group.
func (c *Config) Validate() error {
	if c.Rows < 1 || c.Cols < 1 || c.Block < 1 {
		return errors.New("rows, cols and block must be positive")
	}
	if c.Steps < 0 || c.Samples < 1 {
		return errors.New("steps must be non-negative and samples positive")
	}
	if c.Checkpoint != "" && c.CheckpointEvery < 1 {
		return errors.New("checkpoint-every must be positive")
	}
	if c.Local < 0 {
		return errors.New("local must be non-negative")
	}
	if c.Local == 0 && len(c.Group.Addrs) > 0 {
		return c.Group.Validate()
	}
	return nil
}

// splitAddrs accepts both repeated flags and a single
// comma-separated environment variable.
func splitAddrs(raw []string) []string {
	var res []string
	for _, item := range raw {
		for _, addr := range strings.Split(item, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				res = append(res, addr)
			}
		}
	}
	return res
}

package console

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/unixpickle/rankcoord/group"
)

// NewLogger creates a structured logger whose entries
// carry the rank they came from.
//
// Unlike a Console, the logger is active on every rank.
func NewLogger(id group.Identity, out io.Writer, level logrus.Level) *logrus.Entry {
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	return log.WithFields(logrus.Fields{
		"rank": id.Rank(),
		"size": id.Size(),
	})
}

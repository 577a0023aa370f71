// Package rlog provides the ambient structured-logging wrapper used
// throughout the driver core. It exists so library components never
// format their own operational output with fmt.Println (that style is
// fine for cmd/ glue, not for a library); instead every component gets
// a *logrus.Entry scoped to its own identity.
package rlog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	once sync.Once
	base *logrus.Logger
)

// Base returns the process-wide logger, lazily configured with a
// logfmt-ish text formatter on first use.
func Base() *logrus.Logger {
	once.Do(func() {
		base = logrus.New()
		base.SetOutput(os.Stderr)
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	})
	return base
}

// ForCard returns a logger entry scoped to one card identity.
func ForCard(identity string) *logrus.Entry {
	return Base().WithField("card", identity)
}

// ForChannel returns a logger entry scoped to one (card, channel) pair.
func ForChannel(identity string, channel int) *logrus.Entry {
	return Base().WithFields(logrus.Fields{"card": identity, "channel": channel})
}

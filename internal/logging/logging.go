package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	once sync.Once
	base = logrus.New()
)

// Setup configures the shared logger. Safe to call more than once; only the
// first call takes effect.
func Setup(level, format string) {
	once.Do(func() {
		base.SetOutput(os.Stdout)
		if strings.EqualFold(format, "json") {
			base.SetFormatter(&logrus.JSONFormatter{})
		} else {
			base.SetFormatter(&logrus.TextFormatter{
				FullTimestamp:   true,
				TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			})
		}
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			lvl = logrus.InfoLevel
		}
		base.SetLevel(lvl)
	})
}

// For returns an entry tagged with the component name ("db", "api", ...).
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}

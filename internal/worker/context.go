// Package worker runs the scanner and poster loops and restarts them when
// they crash.
package worker

import (
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/cafebot/internal/config"
	"github.com/TobiSchelling/cafebot/internal/ledger"
	"github.com/TobiSchelling/cafebot/internal/ratelimit"
	"github.com/TobiSchelling/cafebot/internal/workflow"
)

// Context is everything a worker loop needs, built once per worker lifetime.
type Context struct {
	Source   string
	Stop     ratelimit.StopFunc
	Settings func() config.BotSettings
	Ledger   *ledger.Ledger
	Store    *workflow.Store
	Log      *logrus.Entry
}

func (c *Context) stopped() bool {
	return c.Stop != nil && c.Stop()
}

func (c *Context) settings() config.BotSettings {
	if c.Settings == nil {
		return config.DefaultBotSettings()
	}
	return c.Settings()
}

func (c *Context) logger() *logrus.Entry {
	if c.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger()).WithField("source", c.Source)
	}
	return c.Log
}

const (
	ScannerFlag = "stop_scanner"
	PosterFlag  = "stop_poster"
)

// FileSignal is a stop request expressed as the presence of a flag file.
// With Consume set, observing the flag removes it.
type FileSignal struct {
	Path    string
	Consume bool
}

// ScannerSignal returns the consume-on-read flag of the scanner in dir.
func ScannerSignal(dir string) FileSignal {
	return FileSignal{Path: filepath.Join(dir, ScannerFlag), Consume: true}
}

// PosterSignal returns the flag of the poster in dir.
func PosterSignal(dir string) FileSignal {
	return FileSignal{Path: filepath.Join(dir, PosterFlag)}
}

// Stopped reports whether the flag is present.
func (f FileSignal) Stopped() bool {
	if _, err := os.Stat(f.Path); err != nil {
		return false
	}
	if f.Consume {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			logrus.WithError(err).WithField("path", f.Path).Warn("could not clear stop flag")
		}
	}
	return true
}

// Request raises the flag.
func (f FileSignal) Request() error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(f.Path, nil, 0o644)
}

// Clear lowers the flag.
func (f FileSignal) Clear() error {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Latch turns a signal into a stop function that stays true once the signal
// has fired, so a consumed flag is not forgotten by later checks.
func Latch(signals ...func() bool) ratelimit.StopFunc {
	var fired atomic.Bool
	return func() bool {
		if fired.Load() {
			return true
		}
		for _, s := range signals {
			if s != nil && s() {
				fired.Store(true)
				return true
			}
		}
		return false
	}
}

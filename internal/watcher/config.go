package watcher

import (
	"errors"
	"time"

	"github.com/loykin/logtail/internal/tracker"
)

type Config struct {
	PollInterval  time.Duration
	Fingerprinter tracker.Fingerprinter
	Exclude       []string
	Include       []string
	Tracker       *tracker.Tracker
}

func DefaultConfig() Config {
	return Config{
		PollInterval:  2 * time.Second,
		Fingerprinter: tracker.DefaultFingerprinter(),
		Tracker:       tracker.New(),
	}
}

func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be > 0")
	}
	if err := c.Fingerprinter.Validate(); err != nil {
		return err
	}
	return nil
}

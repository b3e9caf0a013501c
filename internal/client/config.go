package client

import "time"

// Config holds session endpoint and behavior settings.
type Config struct {
	Address        string
	ConnectTimeout time.Duration

	// DeclineBadDatasets turns a dataset missing its record_id column
	// into a skipped job instead of a fatal session error.
	DeclineBadDatasets bool
}

func (c Config) WithDefaults() Config {
	if c.Address == "" {
		c.Address = "sybl.tech:7000"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	return c
}

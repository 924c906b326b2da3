package s3

import "time"

// Options configures how backend clients are built.
type Options struct {
	MaxRetries     int
	RequestTimeout time.Duration

	// CargoShip optimized uploads
	EnableCargoShip      bool
	CargoShipConcurrency int
}

// NewDefaultOptions returns the options used when none are supplied.
func NewDefaultOptions() Options {
	return Options{
		MaxRetries:           1,
		RequestTimeout:       60 * time.Second,
		CargoShipConcurrency: 4,
	}
}

package cache

import "errors"

var (
	// ErrInvalidCapacity is returned when a capacity is not positive.
	ErrInvalidCapacity = errors.New("capacity must be positive")
	// ErrInvalidTTL is returned when a time-to-live is negative.
	ErrInvalidTTL = errors.New("ttl must not be negative")
	// ErrInvalidShards is returned when a shard count is not positive.
	ErrInvalidShards = errors.New("shard count must be positive")
	// ErrNilFunc is returned when a memoizer is constructed without a function.
	ErrNilFunc = errors.New("fn must not be nil")
)

package rate

import "errors"

// ErrRedisUnavailable is returned when a counter operation cannot reach
// Redis. Gate decisions must fail closed on it.
var ErrRedisUnavailable = errors.New("rate redis unavailable")

package rate

import "errors"

// ErrRedisUnavailable wraps every Redis failure returned by Counter.
var ErrRedisUnavailable = errors.New("redis unavailable")

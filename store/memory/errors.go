package memory

import "errors"

// ErrDuplicateKey is returned by InsertKey when the hash is already stored.
var ErrDuplicateKey = errors.New("duplicate client key hash")

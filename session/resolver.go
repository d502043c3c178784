package session

import (
	"context"
	"errors"
	"net/http"
)

// ErrUnavailable wraps failures of the service behind a resolver.
var ErrUnavailable = errors.New("session backend unavailable")

// Resolver maps a request to its session. See the package doc for the
// (nil, nil) contract.
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (*Descriptor, error)
}

// ResolverFunc adapts a function to [Resolver].
type ResolverFunc func(ctx context.Context, r *http.Request) (*Descriptor, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, r *http.Request) (*Descriptor, error) {
	return f(ctx, r)
}

// Chain tries each resolver in order and returns the first session found. A
// backend error stops the chain.
func Chain(resolvers ...Resolver) Resolver {
	return ResolverFunc(func(ctx context.Context, r *http.Request) (*Descriptor, error) {
		for _, res := range resolvers {
			if res == nil {
				continue
			}
			d, err := res.Resolve(ctx, r)
			if err != nil {
				return nil, err
			}
			if d != nil {
				return d, nil
			}
		}
		return nil, nil
	})
}

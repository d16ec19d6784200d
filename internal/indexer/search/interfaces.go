package search

import (
	"context"

	"github.com/keonramses/Cinephage-sub002/internal/indexer/request"
)

// Response is the raw outcome of one issued request.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Requester executes compiled request specs. Implementations handle
// transport, authentication and per-index rate limiting; the search
// layer only ever sees an already-authenticated fetch.
type Requester interface {
	Do(ctx context.Context, spec request.Spec) (*Response, error)
}

// RequesterFunc adapts a function to the Requester interface.
type RequesterFunc func(ctx context.Context, spec request.Spec) (*Response, error)

func (f RequesterFunc) Do(ctx context.Context, spec request.Spec) (*Response, error) {
	return f(ctx, spec)
}

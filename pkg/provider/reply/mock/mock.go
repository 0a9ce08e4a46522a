// Package mock provides a test double for the reply.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/solace/pkg/provider/reply"
	"github.com/MrWong99/solace/pkg/session"
)

var _ reply.Provider = (*Provider)(nil)

// Provider is a mock implementation of reply.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned by Reply when Err is nil.
	Text string

	// Err, if non-nil, is returned by Reply.
	Err error

	// ReplyFunc, if set, overrides Text and Err.
	ReplyFunc func(ctx context.Context, req reply.Request) (string, error)

	// Requests records every request, with Session copied.
	Requests []reply.Request
}

// Reply records req and returns the configured result.
func (p *Provider) Reply(ctx context.Context, req reply.Request) (string, error) {
	rec := req
	rec.Session = append([]session.Entry(nil), req.Session...)

	p.mu.Lock()
	p.Requests = append(p.Requests, rec)
	fn, text, err := p.ReplyFunc, p.Text, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return text, err
}

// CallCount returns the number of Reply calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

// Request returns the i-th recorded request.
func (p *Provider) Request(i int) reply.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Requests[i]
}

// Reset clears recorded requests.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = nil
}

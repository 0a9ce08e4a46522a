package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/solace/pkg/provider/reply"
)

// ReplyFallback implements [reply.Provider] with failover across reply
// backends, typically the remote reply service backed by a local chat model.
//
// [reply.ErrNoReply] is an answer, not an outage: it is returned as is and does
// not trip the breaker or reach the next backend.
type ReplyFallback struct {
	group *FallbackGroup[reply.Provider]
}

var _ reply.Provider = (*ReplyFallback)(nil)

// NewReplyFallback creates a [ReplyFallback] with primary as the preferred
// backend. A Passthrough already set on cfg is kept alongside the
// [reply.ErrNoReply] rule.
func NewReplyFallback(primary reply.Provider, primaryName string, cfg FallbackConfig) *ReplyFallback {
	inner := cfg.Passthrough
	cfg.Passthrough = func(err error) bool {
		if errors.Is(err, reply.ErrNoReply) {
			return true
		}
		return inner != nil && inner(err)
	}
	return &ReplyFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional reply provider.
func (f *ReplyFallback) AddFallback(name string, provider reply.Provider) {
	f.group.AddFallback(name, provider)
}

// States reports the breaker state of every backend.
func (f *ReplyFallback) States() []ProviderState { return f.group.States() }

// Reply asks the first healthy backend for a reply.
func (f *ReplyFallback) Reply(ctx context.Context, req reply.Request) (string, error) {
	return ExecuteWithResult(f.group, func(p reply.Provider) (string, error) {
		return p.Reply(ctx, req)
	})
}

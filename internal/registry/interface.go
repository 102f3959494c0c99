package registry

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
)

var ErrNotOnline = errors.New("member not online")

// Registry is the cross-instance directory of online members. Each instance
// advertises the members holding a live connection on it.
type Registry interface {
	MarkOnline(ctx context.Context, member domain.MemberID) error
	MarkOffline(ctx context.Context, member domain.MemberID) error
	// Lookup returns the instance currently serving member.
	Lookup(ctx context.Context, member domain.MemberID) (string, error)
	StartHeartbeat(ctx context.Context) error
	StopHeartbeat()
	Close() error
}

// LocalRegistry answers from this instance only. Used when Redis is disabled.
type LocalRegistry struct {
	instance string
	counts   *refCounts
}

func NewLocalRegistry(instance string) *LocalRegistry {
	return &LocalRegistry{instance: instance, counts: newRefCounts()}
}

func (r *LocalRegistry) MarkOnline(_ context.Context, member domain.MemberID) error {
	r.counts.inc(member)
	return nil
}

func (r *LocalRegistry) MarkOffline(_ context.Context, member domain.MemberID) error {
	r.counts.dec(member)
	return nil
}

func (r *LocalRegistry) Lookup(_ context.Context, member domain.MemberID) (string, error) {
	if r.counts.get(member) == 0 {
		return "", ErrNotOnline
	}
	return r.instance, nil
}

func (r *LocalRegistry) StartHeartbeat(context.Context) error { return nil }

func (r *LocalRegistry) StopHeartbeat() {}

func (r *LocalRegistry) Close() error { return nil }

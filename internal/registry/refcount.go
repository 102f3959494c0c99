package registry

import (
	"sync"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
)

// refCounts counts the live connections per member on this instance.
type refCounts struct {
	mu sync.Mutex
	m  map[domain.MemberID]int
}

func newRefCounts() *refCounts {
	return &refCounts{m: make(map[domain.MemberID]int)}
}

// inc reports whether this is the member's first connection.
func (r *refCounts) inc(member domain.MemberID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[member]++
	return r.m[member] == 1
}

// dec reports whether the member's last connection is gone.
func (r *refCounts) dec(member domain.MemberID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.m[member]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(r.m, member)
		return true
	}
	r.m[member] = n - 1
	return false
}

func (r *refCounts) get(member domain.MemberID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[member]
}

func (r *refCounts) members() []domain.MemberID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.MemberID, 0, len(r.m))
	for id := range r.m {
		out = append(out, id)
	}
	return out
}

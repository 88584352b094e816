package repo

import (
	"container/heap"
	"context"
	"sync"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
)

// MemorySessionStore keeps sessions in process memory. It is meant for
// tests and single-instance development setups. A cancelled context is
// returned as ctx.Err(), never as a store failure.
type MemorySessionStore struct {
	mu        sync.Mutex
	byAccess  map[string]*auth.Session
	byRefresh map[string]*auth.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		byAccess:  make(map[string]*auth.Session),
		byRefresh: make(map[string]*auth.Session),
	}
}

func (m *MemorySessionStore) Save(ctx context.Context, s auth.Session) (*auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, a := m.byAccess[s.AccessToken]
	_, r := m.byRefresh[s.RefreshToken]
	if a || r {
		return nil, auth.ErrIdentifierCollision
	}
	stored := s
	m.byAccess[s.AccessToken] = &stored
	m.byRefresh[s.RefreshToken] = &stored
	out := stored
	return &out, nil
}

func (m *MemorySessionStore) FindByAccessToken(ctx context.Context, token string) (*auth.Session, error) {
	return m.find(ctx, m.byAccess, token)
}

func (m *MemorySessionStore) FindByRefreshToken(ctx context.Context, token string) (*auth.Session, error) {
	return m.find(ctx, m.byRefresh, token)
}

func (m *MemorySessionStore) find(ctx context.Context, idx map[string]*auth.Session, token string) (*auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := idx[token]
	if !ok {
		return nil, nil
	}
	out := *s
	return &out, nil
}

func (m *MemorySessionStore) DeleteByRefreshToken(ctx context.Context, token string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byRefresh[token]
	if !ok {
		return 0, nil
	}
	delete(m.byRefresh, token)
	delete(m.byAccess, s.AccessToken)
	return 1, nil
}

// Len reports the number of live sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byRefresh)
}

type blacklistItem struct {
	token string
	exp   *int64
	index int // position in the expiry heap, -1 when not indexed
}

// expiryHeap is a min-heap of entries that carry a watermark.
type expiryHeap []*blacklistItem

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return *h[i].exp < *h[j].exp }
func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *expiryHeap) Push(x any) {
	it := x.(*blacklistItem)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// MemoryBlacklist indexes entries by watermark so a sweep only touches the
// entries it removes.
type MemoryBlacklist struct {
	mu      sync.Mutex
	entries map[string]*blacklistItem
	byExp   expiryHeap
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{entries: make(map[string]*blacklistItem)}
}

func (m *MemoryBlacklist) Add(ctx context.Context, token string, expiresAtSec *int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.entries[token]
	if !ok {
		it = &blacklistItem{token: token, exp: copyExp(expiresAtSec), index: -1}
		m.entries[token] = it
		if it.exp != nil {
			heap.Push(&m.byExp, it)
		}
		return nil
	}

	it.exp = auth.WidenExpiry(it.exp, expiresAtSec)
	switch {
	case it.exp == nil && it.index >= 0:
		heap.Remove(&m.byExp, it.index)
	case it.exp != nil:
		heap.Fix(&m.byExp, it.index)
	}
	return nil
}

func (m *MemoryBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[token]
	return ok, nil
}

func (m *MemoryBlacklist) SweepExpired(ctx context.Context, nowSec int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for m.byExp.Len() > 0 && *m.byExp[0].exp <= nowSec {
		it := heap.Pop(&m.byExp).(*blacklistItem)
		delete(m.entries, it.token)
		n++
	}
	return n, nil
}

func (m *MemoryBlacklist) Remove(ctx context.Context, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.entries[token]
	if !ok {
		return false, nil
	}
	if it.index >= 0 {
		heap.Remove(&m.byExp, it.index)
	}
	delete(m.entries, token)
	return true, nil
}

// Entries returns a snapshot of the blacklist.
func (m *MemoryBlacklist) Entries() []auth.BlacklistEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]auth.BlacklistEntry, 0, len(m.entries))
	for _, it := range m.entries {
		out = append(out, auth.BlacklistEntry{Token: it.token, ExpiresAtSec: copyExp(it.exp)})
	}
	return out
}

func copyExp(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

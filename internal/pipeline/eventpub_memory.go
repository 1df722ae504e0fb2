package pipeline

import "sync"

// MemoryPublisher stores notices in-memory for tests and the status server.
type MemoryPublisher struct {
	mu      sync.Mutex
	notices []Notice
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(n Notice) {
	p.mu.Lock()
	p.notices = append(p.notices, n)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Notices() []Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Notice, len(p.notices))
	copy(out, p.notices)
	return out
}

// Named returns the notices with the given name, in publish order.
func (p *MemoryPublisher) Named(name string) []Notice {
	var out []Notice
	for _, n := range p.Notices() {
		if n.Name == name {
			out = append(out, n)
		}
	}
	return out
}

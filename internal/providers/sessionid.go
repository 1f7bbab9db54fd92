package providers

import (
	"math"
	"math/rand"
	"sync"
)

// SessionIDProvider allocates session numbers.
type SessionIDProvider interface {
	// NextSessionID returns the next session number. Values are positive
	// and strictly increasing until they wrap back to 1 at math.MaxInt32.
	NextSessionID() int32
}

type defaultSessionIDProvider struct {
	mu sync.Mutex
	id int32
}

// NewSessionIDProvider returns a provider seeded with a random initial
// session number so ids from different processes are unlikely to collide.
func NewSessionIDProvider() SessionIDProvider {
	return &defaultSessionIDProvider{id: rand.Int31()}
}

// NewSessionIDProviderWithInitialValue is used by tests that need
// deterministic session numbers.
func NewSessionIDProviderWithInitialValue(initial int32) SessionIDProvider {
	return &defaultSessionIDProvider{id: initial}
}

func (p *defaultSessionIDProvider) NextSessionID() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.id == math.MaxInt32 {
		p.id = 0
	}
	p.id++
	return p.id
}

package providers

import (
	"math/rand"
	"sync"
)

// PRNGenerator supplies the randomness the beacon protocol needs.
type PRNGenerator interface {
	// NextPositiveInt64 returns a uniformly distributed non-negative
	// 63-bit integer. Used for randomized device ids.
	NextPositiveInt64() int64

	// NextPercentageValue returns a value in [0, 100).
	NextPercentageValue() int32
}

type defaultPRNGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPRNGenerator returns a generator with a randomly chosen seed.
func NewPRNGenerator() PRNGenerator {
	return &defaultPRNGenerator{rnd: rand.New(rand.NewSource(rand.Int63()))}
}

// NewPRNGeneratorWithSeed returns a deterministic generator for tests.
func NewPRNGeneratorWithSeed(seed int64) PRNGenerator {
	return &defaultPRNGenerator{rnd: rand.New(rand.NewSource(seed))}
}

func (g *defaultPRNGenerator) NextPositiveInt64() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rnd.Int63()
}

func (g *defaultPRNGenerator) NextPercentageValue() int32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rnd.Int31n(100)
}

package corpus

import "fmt"

// Rand is the randomness source used to pick seeds. *math/rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

// Corpus is the ordered, append-only set of seeds driving the fuzz loop.
// Insertion order is discovery order. A Corpus is owned by a single goroutine.
type Corpus struct {
	seeds []*Seed
}

func New(seeds ...*Seed) *Corpus {
	c := &Corpus{seeds: make([]*Seed, 0, len(seeds))}
	c.Append(seeds...)
	return c
}

// Append adds seeds at the end of the corpus.
func (c *Corpus) Append(seeds ...*Seed) {
	c.seeds = append(c.seeds, seeds...)
}

// PickRandom returns a uniformly random seed. The corpus must not be empty.
func (c *Corpus) PickRandom(r Rand) *Seed {
	if len(c.seeds) == 0 {
		panic("corpus: PickRandom on empty corpus")
	}
	return c.seeds[r.Intn(len(c.seeds))]
}

func (c *Corpus) Size() int {
	return len(c.seeds)
}

func (c *Corpus) At(i int) *Seed {
	return c.seeds[i]
}

// Content loads the bytes of the i-th seed.
func (c *Corpus) Content(i int) ([]byte, error) {
	if i < 0 || i >= len(c.seeds) {
		return nil, fmt.Errorf("seed index %d out of range [0, %d)", i, len(c.seeds))
	}
	return c.seeds[i].Load()
}

// Seeds returns a copy of the seed list in corpus order.
func (c *Corpus) Seeds() []*Seed {
	seeds := make([]*Seed, len(c.seeds))
	copy(seeds, c.seeds)
	return seeds
}

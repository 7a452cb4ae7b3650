package tarot

import (
	"fmt"
	"math/rand/v2"
)

// PoolSize is the number of face-down cards offered at card-select.
const PoolSize = 3

// Pool is the face-down spread produced by the shuffle step.
type Pool [PoolSize]Card

// DrawnCard is the result of a draw: the resolved card and its orientation.
type DrawnCard struct {
	Card     Card `json:"card"`
	Reversed bool `json:"reversed"`
}

// Interpretation is the deterministic reading text for the drawn card.
func (d DrawnCard) Interpretation() string {
	return Interpretation(d.Card, d.Reversed)
}

// Shuffle samples PoolSize distinct cards uniformly from deck. The deck
// must hold at least PoolSize cards.
func Shuffle(rng *rand.Rand, deck Deck) (Pool, error) {
	var pool Pool
	if len(deck) < PoolSize {
		return pool, fmt.Errorf("tarot: shuffle: deck has %d cards, need %d", len(deck), PoolSize)
	}
	perm := rng.Perm(len(deck))
	for i := range pool {
		pool[i] = deck[perm[i]]
	}
	return pool, nil
}

// Draw resolves the face-down card at index and flips an independent fair
// coin for its orientation.
func Draw(rng *rand.Rand, pool Pool, index int) (DrawnCard, error) {
	if index < 0 || index >= PoolSize {
		return DrawnCard{}, fmt.Errorf("tarot: draw: index %d out of range [0,%d]", index, PoolSize-1)
	}
	return DrawnCard{
		Card:     pool[index],
		Reversed: rng.IntN(2) == 1,
	}, nil
}

// NewRand returns a random source seeded from the runtime's entropy.
func NewRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

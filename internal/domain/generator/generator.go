// Package generator produces synthetic lift-ride events for load testing.
package generator

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/skilift/internal/domain/model"
)

// Ranges for generated identifiers, inclusive on both ends.
const (
	MaxSkierID  = 100_000
	MaxResortID = 10
	MaxLiftID   = 40
	MaxTime     = 360

	DefaultSeasonID = 2025
	DefaultDayID    = 1
)

// Generator creates random SkiEvents. It is safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	rnd      *rand.Rand
	seasonID int
	dayID    int
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed makes the sequence reproducible.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithSeason fixes the season of every event.
func WithSeason(seasonID int) Option {
	return func(g *Generator) {
		if seasonID > 0 {
			g.seasonID = seasonID
		}
	}
}

// WithDay fixes the day of every event.
func WithDay(dayID int) Option {
	return func(g *Generator) {
		if dayID > 0 {
			g.dayID = dayID
		}
	}
}

// New returns a Generator seeded from the clock unless WithSeed is given.
func New(opts ...Option) *Generator {
	now := uint64(time.Now().UnixNano())
	g := &Generator{
		rnd:      rand.New(rand.NewPCG(now, now>>1)),
		seasonID: DefaultSeasonID,
		dayID:    DefaultDayID,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next returns a fresh event.
func (g *Generator) Next() model.SkiEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return model.SkiEvent{
		SkierID:  g.rnd.IntN(MaxSkierID) + 1,
		ResortID: g.rnd.IntN(MaxResortID) + 1,
		LiftID:   g.rnd.IntN(MaxLiftID) + 1,
		SeasonID: g.seasonID,
		DayID:    g.dayID,
		Time:     g.rnd.IntN(MaxTime) + 1,
	}
}

// Batch returns n events.
func (g *Generator) Batch(n int) []model.SkiEvent {
	if n <= 0 {
		return nil
	}
	out := make([]model.SkiEvent, n)
	for i := range out {
		out[i] = g.Next()
	}
	return out
}

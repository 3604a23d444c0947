package question

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Composition is the target difficulty mix in whole percents. Hard takes the remainder.
type Composition struct {
	EasyPercent   int
	MediumPercent int
}

// DefaultComposition draws half easy, 30% medium and the rest hard.
var DefaultComposition = Composition{EasyPercent: 50, MediumPercent: 30}

// Targets splits n into per-difficulty counts, flooring easy and medium.
func (c Composition) Targets(n int) (easy, medium, hard int) {
	if n <= 0 {
		return 0, 0, 0
	}
	easy = n * c.EasyPercent / 100
	medium = n * c.MediumPercent / 100
	hard = n - easy - medium
	return easy, medium, hard
}

// Selector builds randomized, difficulty-balanced question sets for a test.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
	mix Composition
}

// NewSelector returns a selector drawing from src. A nil src seeds a PCG from the clock.
func NewSelector(src rand.Source, mix Composition) *Selector {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>1|1)
	}
	return &Selector{rng: rand.New(src), mix: mix}
}

// Select returns min(n, len(pool)) questions: each difficulty bucket drawn up to its
// target, shortfalls backfilled from whatever is left, the whole set shuffled, and
// every question's options shuffled independently. The pool is not modified.
func (s *Selector) Select(pool []Question, n int) []Question {
	if n <= 0 || len(pool) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buckets := make(map[Difficulty][]int, 3)
	for i, q := range pool {
		switch q.Difficulty {
		case DifficultyEasy, DifficultyMedium, DifficultyHard:
			buckets[q.Difficulty] = append(buckets[q.Difficulty], i)
		}
	}

	easy, medium, hard := s.mix.Targets(n)
	taken := make([]bool, len(pool))
	picked := make([]int, 0, min(n, len(pool)))

	draw := func(indices []int, want int) {
		s.shuffle(indices)
		for _, idx := range indices[:min(want, len(indices))] {
			taken[idx] = true
			picked = append(picked, idx)
		}
	}
	draw(buckets[DifficultyEasy], easy)
	draw(buckets[DifficultyMedium], medium)
	draw(buckets[DifficultyHard], hard)

	if len(picked) < n {
		rest := make([]int, 0, len(pool)-len(picked))
		for i := range pool {
			if !taken[i] {
				rest = append(rest, i)
			}
		}
		draw(rest, n-len(picked))
	}

	s.shuffle(picked)

	out := make([]Question, len(picked))
	for i, idx := range picked {
		q := pool[idx]
		q.Options = append([]Option(nil), q.Options...)
		s.rng.Shuffle(len(q.Options), func(a, b int) {
			q.Options[a], q.Options[b] = q.Options[b], q.Options[a]
		})
		out[i] = q
	}
	return out
}

func (s *Selector) shuffle(indices []int) {
	s.rng.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})
}

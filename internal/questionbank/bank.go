// Package questionbank serves the bundled offline questions used whenever
// remote generation is unavailable.
package questionbank

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/stemsi/nexus-backend/internal/model"
)

//go:embed bank.json
var bundled []byte

// Bank is a fixed set of questions. It is safe for concurrent use.
type Bank struct {
	questions []model.Question

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// Load parses the bundled bank.
func Load() (*Bank, error) {
	var qs []model.Question
	if err := json.Unmarshal(bundled, &qs); err != nil {
		return nil, fmt.Errorf("decode bundled bank: %w", err)
	}
	return New(qs, rand.New(rand.NewSource(time.Now().UnixNano())), time.Now), nil
}

// New builds a Bank over questions with an explicit random source and clock.
func New(questions []model.Question, rng *rand.Rand, now func() time.Time) *Bank {
	return &Bank{questions: questions, rng: rng, now: now}
}

// Size returns the number of distinct questions in the bank.
func (b *Bank) Size() int {
	return len(b.questions)
}

// Draw returns exactly n questions for subject. When qtype is non-empty it
// prefers questions of that type and only widens to the whole subject when
// the bank has none. The pool is repeated until it covers n, shuffled, and
// every returned question gets a fresh id so duplicates never collide.
func (b *Bank) Draw(subject model.Subject, qtype model.QuestionType, n int) []model.Question {
	if n <= 0 {
		return nil
	}

	pool := b.filter(subject, qtype)
	if len(pool) == 0 && qtype != "" {
		pool = b.filter(subject, "")
	}
	if len(pool) == 0 {
		return nil
	}

	picked := make([]model.Question, 0, n+len(pool))
	for len(picked) < n {
		picked = append(picked, pool...)
	}

	b.mu.Lock()
	b.rng.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	stamp := b.now().UnixMilli()
	b.mu.Unlock()

	out := picked[:n]
	for i := range out {
		out[i].ID = fmt.Sprintf("%s-gen-%d-%d", out[i].ID, stamp, i)
		if len(out[i].Options) > 0 {
			out[i].Options = append([]string(nil), out[i].Options...)
		}
	}
	return out
}

func (b *Bank) filter(subject model.Subject, qtype model.QuestionType) []model.Question {
	var pool []model.Question
	for _, q := range b.questions {
		if q.Subject != subject {
			continue
		}
		if qtype != "" && q.Type != qtype {
			continue
		}
		pool = append(pool, q)
	}
	return pool
}

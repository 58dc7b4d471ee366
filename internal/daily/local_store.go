package daily

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stemsi/nexus-backend/internal/config"
	"github.com/stemsi/nexus-backend/internal/kv"
	"github.com/stemsi/nexus-backend/internal/model"
)

// LocalStore keeps challenges and attempts on a kv.Store. It is used when no
// database is configured. The per-date attempt index is guarded by a
// process-local mutex.
type LocalStore struct {
	kv  kv.Store
	mu  sync.Mutex
	now func() time.Time
}

func NewLocalStore(store kv.Store) *LocalStore {
	return &LocalStore{kv: store, now: time.Now}
}

func (s *LocalStore) GetDailyChallenge(ctx context.Context, date string) (*model.DailyChallenge, error) {
	var c model.DailyChallenge
	if err := s.kv.Get(ctx, config.CacheKey.DailyChallengeKey(date), &c); err != nil {
		return nil, mapNotFound(err)
	}
	return &c, nil
}

func (s *LocalStore) CreateDailyChallenge(ctx context.Context, c *model.DailyChallenge) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	return s.kv.Set(ctx, config.CacheKey.DailyChallengeKey(c.Date), c)
}

func (s *LocalStore) SubmitDailyAttempt(ctx context.Context, a *model.DailyAttempt) error {
	if a.SubmittedAt.IsZero() {
		a.SubmittedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Set(ctx, config.CacheKey.DailyAttemptKey(a.Date, a.UserID), a); err != nil {
		return err
	}

	users, err := s.attemptIndex(ctx, a.Date)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u == a.UserID {
			return nil
		}
	}
	users = append(users, a.UserID)
	return s.kv.Set(ctx, config.CacheKey.DailyAttemptIndexKey(a.Date), users)
}

func (s *LocalStore) GetUserDailyAttempt(ctx context.Context, userID, date string) (*model.DailyAttempt, error) {
	var a model.DailyAttempt
	if err := s.kv.Get(ctx, config.CacheKey.DailyAttemptKey(date, userID), &a); err != nil {
		return nil, mapNotFound(err)
	}
	return &a, nil
}

func (s *LocalStore) ListDailyAttempts(ctx context.Context, date string) ([]model.LeaderboardEntry, error) {
	attempts, err := s.ListDailyAttemptDetails(ctx, date)
	if err != nil {
		return nil, err
	}

	entries := make([]model.LeaderboardEntry, len(attempts))
	for i, a := range attempts {
		entries[i] = Entry(a)
	}
	return Rank(entries), nil
}

// ListDailyAttemptDetails returns every attempt for date in leaderboard order.
func (s *LocalStore) ListDailyAttemptDetails(ctx context.Context, date string) ([]model.DailyAttempt, error) {
	s.mu.Lock()
	users, err := s.attemptIndex(ctx, date)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	attempts := make([]model.DailyAttempt, 0, len(users))
	for _, u := range users {
		a, err := s.GetUserDailyAttempt(ctx, u, date)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		attempts = append(attempts, *a)
	}

	sort.SliceStable(attempts, func(i, j int) bool {
		if attempts[i].Score != attempts[j].Score {
			return attempts[i].Score > attempts[j].Score
		}
		return attempts[i].SubmittedAt.Before(attempts[j].SubmittedAt)
	})
	return attempts, nil
}

func (s *LocalStore) attemptIndex(ctx context.Context, date string) ([]string, error) {
	var users []string
	if err := s.kv.Get(ctx, config.CacheKey.DailyAttemptIndexKey(date), &users); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read attempt index: %w", err)
	}
	return users, nil
}

// Entry is the leaderboard view of an attempt, without a rank.
func Entry(a model.DailyAttempt) model.LeaderboardEntry {
	return model.LeaderboardEntry{
		UserID:      a.UserID,
		Score:       a.Score,
		TotalMarks:  a.TotalMarks,
		Accuracy:    a.Stats.Accuracy,
		SubmittedAt: a.SubmittedAt,
	}
}

// Rank numbers already ordered entries from 1.
func Rank(entries []model.LeaderboardEntry) []model.LeaderboardEntry {
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func mapNotFound(err error) error {
	if errors.Is(err, kv.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

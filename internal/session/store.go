package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/stemsi/nexus-backend/internal/config"
	"github.com/stemsi/nexus-backend/internal/kv"
	"github.com/stemsi/nexus-backend/internal/model"
)

// KVSlot is the active session slot of one user on a kv.Store.
type KVSlot struct {
	store kv.Store
	key   string
}

func NewKVSlot(store kv.Store, userID string) *KVSlot {
	return &KVSlot{store: store, key: config.CacheKey.ActiveSessionKey(userID)}
}

func (s *KVSlot) Load(ctx context.Context) (*model.ExamSession, error) {
	var sess model.ExamSession
	if err := s.store.Get(ctx, s.key, &sess); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, err
	}
	return &sess, nil
}

func (s *KVSlot) Save(ctx context.Context, sess *model.ExamSession) error {
	return s.store.Set(ctx, s.key, sess)
}

func (s *KVSlot) Clear(ctx context.Context) error {
	return s.store.Remove(ctx, s.key)
}

// History keeps each user's most recent results, newest first, plus the
// last result on its own key.
type History struct {
	store kv.Store
	limit int
}

func NewHistory(store kv.Store, limit int) *History {
	if limit <= 0 {
		limit = 50
	}
	return &History{store: store, limit: limit}
}

// Append records r as the user's latest result.
func (h *History) Append(ctx context.Context, userID string, r *model.Result) error {
	list, err := h.List(ctx, userID)
	if err != nil {
		return err
	}

	list = append([]model.Result{*r}, list...)
	if len(list) > h.limit {
		list = list[:h.limit]
	}

	if err := h.store.Set(ctx, config.CacheKey.ExamHistoryKey(userID), list); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	if err := h.store.Set(ctx, config.CacheKey.LastResultKey(userID), r); err != nil {
		return fmt.Errorf("save last result: %w", err)
	}
	return nil
}

// List returns the user's history, newest first. A user with no history
// gets an empty slice.
func (h *History) List(ctx context.Context, userID string) ([]model.Result, error) {
	var list []model.Result
	if err := h.store.Get(ctx, config.CacheKey.ExamHistoryKey(userID), &list); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return []model.Result{}, nil
		}
		return nil, err
	}
	return list, nil
}

// Last returns the most recent result or kv.ErrNotFound.
func (h *History) Last(ctx context.Context, userID string) (*model.Result, error) {
	var r model.Result
	if err := h.store.Get(ctx, config.CacheKey.LastResultKey(userID), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Archiver binds the history of one user to the Archiver interface.
func (h *History) Archiver(userID string) Archiver {
	return ArchiverFunc(func(ctx context.Context, r *model.Result) error {
		return h.Append(ctx, userID, r)
	})
}

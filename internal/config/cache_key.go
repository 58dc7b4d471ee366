package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ActiveSessionKey returns the key of a user's single active exam slot
func (r *CacheKeyStruct) ActiveSessionKey(userID string) string {
	return fmt.Sprintf("user:%s:active_session", userID)
}

// ExamHistoryKey returns the key of a user's capped result history
func (r *CacheKeyStruct) ExamHistoryKey(userID string) string {
	return fmt.Sprintf("user:%s:exam_history", userID)
}

// LastResultKey returns the key of a user's most recent result
func (r *CacheKeyStruct) LastResultKey(userID string) string {
	return fmt.Sprintf("user:%s:last_result", userID)
}

// InsightKey returns the key of the cached coaching text for a result
func (r *CacheKeyStruct) InsightKey(userID, resultID string) string {
	return fmt.Sprintf("user:%s:insight:%s", userID, resultID)
}

// DailyChallengeKey returns the key of the local daily challenge for a date
func (r *CacheKeyStruct) DailyChallengeKey(date string) string {
	return fmt.Sprintf("daily:%s:challenge", date)
}

// DailyAttemptKey returns the key of a user's local daily attempt
func (r *CacheKeyStruct) DailyAttemptKey(date, userID string) string {
	return fmt.Sprintf("daily:%s:attempt:%s", date, userID)
}

// DailyAttemptIndexKey returns the key listing users who attempted a date
func (r *CacheKeyStruct) DailyAttemptIndexKey(date string) string {
	return fmt.Sprintf("daily:%s:attempts", date)
}

var CacheKey = NewCacheKeyStruct()

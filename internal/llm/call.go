package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Pool is the shared request limiter and credential pool.
type Pool interface {
	WaitIfNeeded(ctx context.Context) error
	Credential() (string, error)
	NextCredential() (string, error)
	PoolSize() int
}

// RetryPolicy bounds Call. Sleep defaults to a context-aware timer.
type RetryPolicy struct {
	MaxRetries  int
	BackoffBase time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Call runs fn with the pool's current credential until it succeeds.
// Transient failures back off exponentially. Rate-limit failures rotate the
// credential while untried ones remain; once the pool is exhausted the error
// is reported as ErrQuotaExceeded. Network and credential failures return at
// once.
func Call(ctx context.Context, pool Pool, p RetryPolicy, log zerolog.Logger, fn func(ctx context.Context, apiKey string) error) error {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	key, err := pool.Credential()
	if err != nil {
		return err
	}
	credentialsTried := 1

	var lastErr error
	for retry := 0; retry < p.MaxRetries; retry++ {
		if retry > 0 {
			if err := sleep(ctx, p.BackoffBase<<(retry-1)); err != nil {
				return fmt.Errorf("%w: %v", ErrNetwork, err)
			}
		}
		if err := pool.WaitIfNeeded(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrNetwork, err)
		}

		err := fn(ctx, key)
		if err == nil {
			return nil
		}
		lastErr = err

		switch Classify(err) {
		case KindQuota:
			if credentialsTried >= pool.PoolSize() {
				return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
			}
			if key, err = pool.NextCredential(); err != nil {
				return err
			}
			credentialsTried++
			log.Warn().Int("credential", credentialsTried).Msg("Rate limited, rotating credential")
		case KindNetwork, KindNoCredentials:
			return err
		default:
			log.Debug().Err(err).Int("retry", retry).Msg("Transient model failure")
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

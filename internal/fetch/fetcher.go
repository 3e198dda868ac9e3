// Package fetch implements the Upstream Fetcher (C3): retrieves a
// batch of PDU readings from NENG each cycle, retrying transient
// failures with jittered backoff behind a circuit breaker, and joining
// the device/power endpoints by device id (spec.md §4.3, §6.1).
package fetch

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/dcops/pdumonitor/internal/apierr"
	"github.com/dcops/pdumonitor/internal/models"
	"github.com/dcops/pdumonitor/pkg/nengclient"
)

const (
	maxAttempts       = 3
	baseBackoff       = 200 * time.Millisecond
	maxJitter         = 150 * time.Millisecond
	requestTimeout    = 10 * time.Second
	breakerOpenWindow = 30 * time.Second
)

// Fetcher pulls a fresh PDU-reading batch each cycle. A cycle failure
// (exhausted retries, partial success, or an open circuit) is returned
// as an error so the caller can skip reconciliation entirely — a
// partial batch must never be reconciled (spec.md §4.3).
type Fetcher struct {
	client  *nengclient.Client
	breaker *gobreaker.CircuitBreaker
}

func New(client *nengclient.Client) *Fetcher {
	settings := gobreaker.Settings{
		Name:        "neng-upstream",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     breakerOpenWindow,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}
	return &Fetcher{client: client, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Fetch produces a complete, joined batch of PDU readings, or an error
// if the upstream could not be read completely within the retry
// budget.
func (f *Fetcher) Fetch(ctx context.Context) ([]models.PDUReading, error) {
	devices, err := fetchWithRetry(ctx, f.breaker, "device", f.client.FetchDevices)
	if err != nil {
		return nil, err
	}
	power, err := fetchWithRetry(ctx, f.breaker, "power", f.client.FetchPower)
	if err != nil {
		return nil, err
	}
	return join(devices, power), nil
}

func fetchWithRetry[T any](ctx context.Context, breaker *gobreaker.CircuitBreaker, label string, do func(context.Context) ([]T, error)) ([]T, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := jitteredBackoff(attempt)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, apierr.Upstream("context cancelled while retrying "+label, ctx.Err())
			case <-timer.C:
			}
		}

		result, err := breaker.Execute(func() (interface{}, error) {
			reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
			defer cancel()
			return do(reqCtx)
		})
		if err == nil {
			return result.([]T), nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Warn().Str("endpoint", label).Msg("circuit breaker open, skipping remaining attempts this cycle")
			break
		}
		log.Warn().Err(err).Str("endpoint", label).Int("attempt", attempt+1).Msg("transient fetch failure, retrying")
	}
	return nil, apierr.Upstream("exhausted retries fetching "+label, lastErr)
}

func jitteredBackoff(attempt int) time.Duration {
	backoff := baseBackoff * time.Duration(1<<uint(attempt-1))
	jitter := time.Duration(rand.Int63n(int64(maxJitter) + 1))
	return backoff + jitter
}

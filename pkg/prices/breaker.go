// Package prices adapts a live price lookup into an optimizer.PriceSource
// guarded by a rate limiter and a circuit breaker.
package prices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/stitts-dev/fpl-transfers/pkg/types"
)

// Lookup returns the current market price of one player. Implementations
// belong to the data client.
type Lookup interface {
	CurrentPrice(ctx context.Context, playerID int) (decimal.Decimal, error)
}

// LookupFunc adapts a function to Lookup
type LookupFunc func(ctx context.Context, playerID int) (decimal.Decimal, error)

func (f LookupFunc) CurrentPrice(ctx context.Context, playerID int) (decimal.Decimal, error) {
	return f(ctx, playerID)
}

type Settings struct {
	// Timeout bounds a single lookup
	Timeout time.Duration
	// FailureThreshold consecutive failures open the circuit
	FailureThreshold int
	// OpenTimeout is how long the circuit stays open before probing again
	OpenTimeout time.Duration
	// RatePerSecond caps lookups across all callers. Zero disables the limit.
	RatePerSecond float64
	RateBurst     int
	// UseSuppliedOnFailure keeps the request's price when no live price is
	// available. When false the player is reported unknown and any scenario
	// buying or selling them is dropped.
	UseSuppliedOnFailure bool
}

func DefaultSettings() Settings {
	return Settings{
		Timeout:          2 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		RatePerSecond:    20,
		RateBurst:        5,
	}
}

// BreakerSource refreshes prices through a Lookup, tripping a circuit
// breaker when the lookup keeps failing. Safe for concurrent use.
type BreakerSource struct {
	lookup   Lookup
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	settings Settings
	logger   *logrus.Entry
}

func NewBreakerSource(lookup Lookup, settings Settings, logger *logrus.Entry) *BreakerSource {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	threshold := uint32(settings.FailureThreshold)
	if threshold == 0 {
		threshold = 1
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "price-lookup",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"component": "circuit_breaker",
				"service":   name,
				"from":      from.String(),
				"to":        to.String(),
			}).Info("Circuit breaker state changed")
		},
	})
	limiter := rate.NewLimiter(rate.Inf, 0)
	if settings.RatePerSecond > 0 {
		burst := settings.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(settings.RatePerSecond), burst)
	}
	return &BreakerSource{
		lookup:   lookup,
		breaker:  breaker,
		limiter:  limiter,
		settings: settings,
		logger:   logger,
	}
}

// Refresh returns p with its live price
func (s *BreakerSource) Refresh(ctx context.Context, p types.Player) (types.Player, bool) {
	price, err := s.fetch(ctx, p.ID)
	if err != nil {
		entry := s.logger.WithError(err).WithField("player_id", p.ID)
		if s.settings.UseSuppliedOnFailure {
			entry.Debug("Live price unavailable, keeping supplied price")
			return p, true
		}
		entry.Warn("Live price unavailable")
		return p, false
	}
	p.Price = price
	return p, true
}

// State reports the breaker state
func (s *BreakerSource) State() gobreaker.State {
	return s.breaker.State()
}

func (s *BreakerSource) fetch(ctx context.Context, playerID int) (decimal.Decimal, error) {
	// waiting on the limiter is not an upstream failure, keep it outside the breaker
	if err := s.limiter.Wait(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("price lookup rate limit: %w", err)
	}
	result, err := s.breaker.Execute(func() (interface{}, error) {
		lookupCtx := ctx
		if s.settings.Timeout > 0 {
			var cancel context.CancelFunc
			lookupCtx, cancel = context.WithTimeout(ctx, s.settings.Timeout)
			defer cancel()
		}
		price, err := s.lookup.CurrentPrice(lookupCtx, playerID)
		if err != nil {
			return nil, err
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("negative price %s for player %d", price, playerID)
		}
		return price, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return decimal.Zero, fmt.Errorf("price lookup circuit open: %w", err)
		}
		return decimal.Zero, err
	}
	return result.(decimal.Decimal), nil
}

package external

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/ai-diagnostics-service/internal/domain"
)

// ResilientInteractionChecker wraps the interaction client with a circuit
// breaker and a two-tier cache: an in-process LRU hot tier in front of the
// shared Redis tier. The pipeline treats interaction failures as soft, so
// the breaker sheds load from a degraded service without failing requests.
type ResilientInteractionChecker struct {
	client  *InteractionClient
	cache   *CacheClient
	hot     *lru.Cache[string, []domain.InteractionResult]
	breaker *gobreaker.CircuitBreaker
	log     *logrus.Logger
}

// NewResilientInteractionChecker creates a checker with caching and a
// circuit breaker. The Redis cache is optional; pass nil to run with the
// in-process tier only.
func NewResilientInteractionChecker(client *InteractionClient, cache *CacheClient, memorySize int, logger *logrus.Logger) (*ResilientInteractionChecker, error) {
	if memorySize <= 0 {
		memorySize = 256
	}
	hot, err := lru.New[string, []domain.InteractionResult](memorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create interaction hot cache: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "DrugInteractions",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &ResilientInteractionChecker{
		client:  client,
		cache:   cache,
		hot:     hot,
		breaker: breaker,
		log:     logger,
	}, nil
}

// Check resolves interactions for a medication set, consulting the hot tier
// first, then Redis, then the service behind the circuit breaker
func (r *ResilientInteractionChecker) Check(ctx context.Context, medicationNames []string) ([]domain.InteractionResult, error) {
	names := normalizeMedicationNames(medicationNames)
	if len(names) < 2 {
		return nil, nil
	}
	key := strings.Join(names, ",")

	if results, ok := r.hot.Get(key); ok {
		return results, nil
	}

	if r.cache != nil {
		results, hit, err := r.cache.GetInteractions(ctx, names)
		if err != nil {
			r.log.WithField("error", err).Warn("Interaction cache lookup failed")
		} else if hit {
			r.hot.Add(key, results)
			return results, nil
		}
	}

	outcome, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.Check(ctx, names)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("interaction service unavailable: %w", err)
		}
		return nil, err
	}

	results, _ := outcome.([]domain.InteractionResult)
	r.hot.Add(key, results)
	if r.cache != nil {
		if err := r.cache.SetInteractions(ctx, names, results, 0); err != nil {
			r.log.WithField("error", err).Warn("Failed to cache interaction results")
		}
	}

	return results, nil
}

package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has an
// open circuit breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures a [FallbackGroup] and the per-entry circuit breaker
// created for each provider.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig

	// Passthrough, if set, marks errors that are answers rather than failures.
	// Such an error is returned immediately without trying the next entry and
	// counts as a success for the entry's breaker. [context.Canceled] is always
	// treated this way.
	Passthrough func(error) bool

	// OnResult, if set, is called once per attempted entry with the error the
	// attempt produced (nil on success). Entries skipped because their breaker
	// is open are reported with [ErrCircuitOpen].
	OnResult func(provider string, err error)
}

// ProviderState describes one entry of a [FallbackGroup].
type ProviderState struct {
	Name  string
	State State
}

// fallbackEntry pairs a provider value with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the same
// provider type. When the primary fails (or its circuit breaker is open), the
// next healthy fallback is tried in registration order.
//
// Fallbacks must be registered before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
// Additional fallbacks are registered via [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a fallback provider. Fallbacks are tried in the order they
// are added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Primary returns the first registered provider.
func (fg *FallbackGroup[T]) Primary() T { return fg.entries[0].value }

// Len returns the number of registered providers.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// States reports the breaker state of every entry in registration order.
func (fg *FallbackGroup[T]) States() []ProviderState {
	out := make([]ProviderState, len(fg.entries))
	for i := range fg.entries {
		out[i] = ProviderState{Name: fg.entries[i].name, State: fg.entries[i].breaker.State()}
	}
	return out
}

// RecordFailure charges err to the breaker of the entry called name and
// reports it through OnResult. Unknown names are ignored.
func (fg *FallbackGroup[T]) RecordFailure(name string, err error) {
	for i := range fg.entries {
		if fg.entries[i].name == name {
			fg.entries[i].breaker.RecordFailure()
			fg.report(name, err)
			return
		}
	}
}

// Execute tries fn against each entry in order until one succeeds.
// Circuit-breaker-open entries are skipped. Returns [ErrAllFailed] wrapped with
// the last error if every entry fails.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry in the group until one succeeds,
// returning both the result value and error. This is a package-level function
// because Go does not support method-level type parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var (
			result R
			passed error
		)
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			if innerErr != nil && fg.passthrough(innerErr) {
				passed = innerErr
				return nil
			}
			return innerErr
		})
		if err == nil {
			err = passed
		}
		fg.report(entry.name, err)
		if err == nil {
			return result, nil
		}
		if passed != nil {
			return zero, passed
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider (circuit open)", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next",
				"provider", entry.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

func (fg *FallbackGroup[T]) passthrough(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	return fg.cfg.Passthrough != nil && fg.cfg.Passthrough(err)
}

func (fg *FallbackGroup[T]) report(name string, err error) {
	if fg.cfg.OnResult != nil {
		fg.cfg.OnResult(name, err)
	}
}

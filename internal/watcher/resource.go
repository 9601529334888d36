package watcher

import (
	"context"
	"sync"
	"time"

	"qms/queue-client/internal/metrics"
	"qms/queue-client/internal/poller"
	"qms/queue-client/internal/realtime"
)

// Channel is the subset of the realtime client a resource needs for
// push-driven invalidation.
type Channel interface {
	Subscribe(topicID string, cb realtime.Callback) func()
}

type Config[T any] struct {
	// Name labels the resource in metrics.
	Name         string
	Fetch        func(ctx context.Context) (T, error)
	BaseInterval time.Duration
	Timeout      time.Duration
	Network      poller.NetworkSource
	Scheduler    poller.Scheduler
	// Channel plus TopicID wire push invalidation: any domain event on
	// the topic triggers an immediate refetch.
	Channel Channel
	TopicID string
	// OnChange runs after every applied update, outside the lock.
	OnChange func()
}

// Resource keeps one polled value in sync with the server and always
// reflects the most recent successful fetch. Results are applied in issue
// order: a response that resolves after a newer one was applied, or after
// Close, is discarded.
type Resource[T any] struct {
	mu      sync.Mutex
	name    string
	data    *T
	err     error
	loading bool
	closed  bool

	issued  uint64
	applied uint64

	poller      *poller.Poller
	unsubscribe func()
	onChange    func()
}

func New[T any](cfg Config[T]) *Resource[T] {
	r := &Resource[T]{
		name:     cfg.Name,
		loading:  true,
		onChange: cfg.OnChange,
	}
	r.poller = poller.New(poller.Config{
		Name:         cfg.Name,
		BaseInterval: cfg.BaseInterval,
		Timeout:      cfg.Timeout,
		Fetch:        r.fetchFunc(cfg.Fetch),
		Network:      cfg.Network,
		Scheduler:    cfg.Scheduler,
	})
	if cfg.Channel != nil && cfg.TopicID != "" {
		r.unsubscribe = cfg.Channel.Subscribe(cfg.TopicID, func(realtime.Message) {
			r.Refetch()
		})
	}
	r.poller.Start(true)
	return r
}

func (r *Resource[T]) fetchFunc(fetch func(ctx context.Context) (T, error)) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil
		}
		r.issued++
		seq := r.issued
		r.mu.Unlock()

		value, err := fetch(ctx)

		r.mu.Lock()
		if r.closed || seq <= r.applied {
			r.mu.Unlock()
			metrics.StaleResponsesTotal.WithLabelValues(r.name).Inc()
			return err
		}
		r.applied = seq
		r.loading = false
		if err != nil {
			r.err = err
		} else {
			r.err = nil
			r.data = &value
		}
		notify := r.onChange
		r.mu.Unlock()

		if notify != nil {
			notify()
		}
		return err
	}
}

// Data returns the last successfully fetched value; ok is false until the
// first successful fetch.
func (r *Resource[T]) Data() (value T, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		var zero T
		return zero, false
	}
	return *r.data, true
}

func (r *Resource[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// IsLoading is true until the first fetch completes, successfully or not.
func (r *Resource[T]) IsLoading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Refetch bypasses the interval and backoff and fetches now.
func (r *Resource[T]) Refetch() {
	r.poller.Refetch()
}

func (r *Resource[T]) SetVisible(visible bool) {
	r.poller.SetVisible(visible)
}

// Mutate applies an optimistic local mutation, issues the write, and on
// failure re-fetches authoritative state instead of reversing the local
// change.
func (r *Resource[T]) Mutate(ctx context.Context, apply func(T) T, call func(ctx context.Context) error) error {
	r.mu.Lock()
	var notify func()
	if !r.closed && r.data != nil {
		mutated := apply(*r.data)
		r.data = &mutated
		notify = r.onChange
	}
	r.mu.Unlock()
	if notify != nil {
		notify()
	}

	err := call(ctx)
	if err != nil {
		r.Refetch()
	}
	return err
}

// Close stops polling and unsubscribes from the channel. No state update
// or callback fires after it returns; an in-flight fetch completes but
// its result is discarded.
func (r *Resource[T]) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	r.poller.Stop()
}

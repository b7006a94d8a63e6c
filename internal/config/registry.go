package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/earworm-audio/earworm/pkg/provider/matcher"
	"github.com/earworm-audio/earworm/pkg/provider/player"
	"github.com/earworm-audio/earworm/pkg/provider/recognizer"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// capability. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	recognizer map[string]func(ProviderEntry) (recognizer.Provider, error)
	matcher    map[string]func(ProviderEntry) (matcher.Provider, error)
	player     map[string]func(ProviderEntry) (player.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		recognizer: make(map[string]func(ProviderEntry) (recognizer.Provider, error)),
		matcher:    make(map[string]func(ProviderEntry) (matcher.Provider, error)),
		player:     make(map[string]func(ProviderEntry) (player.Provider, error)),
	}
}

// RegisterRecognizer registers a speech recognizer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterRecognizer(name string, factory func(ProviderEntry) (recognizer.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizer[name] = factory
}

// RegisterMatcher registers a lyrics matcher factory under name.
func (r *Registry) RegisterMatcher(name string, factory func(ProviderEntry) (matcher.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matcher[name] = factory
}

// RegisterPlayer registers a playback service factory under name.
func (r *Registry) RegisterPlayer(name string, factory func(ProviderEntry) (player.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.player[name] = factory
}

// CreateRecognizer instantiates a recognizer using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateRecognizer(entry ProviderEntry) (recognizer.Provider, error) {
	r.mu.RLock()
	factory, ok := r.recognizer[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognizer/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateMatcher instantiates a matcher using the factory registered under entry.Name.
func (r *Registry) CreateMatcher(entry ProviderEntry) (matcher.Provider, error) {
	r.mu.RLock()
	factory, ok := r.matcher[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: matcher/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreatePlayer instantiates a playback service using the factory registered under entry.Name.
func (r *Registry) CreatePlayer(entry ProviderEntry) (player.Provider, error) {
	r.mu.RLock()
	factory, ok := r.player[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: player/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

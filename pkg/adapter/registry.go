package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cosmossdk.io/math"
)

var (
	factories = make(map[Keycode]Factory)
	mu        sync.RWMutex
)

// Register adds a submodule factory to the global factory table.
// Submodule packages call it from init.
func Register(keycode Keycode, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[keycode] = factory
}

// Create creates a new submodule instance by keycode
func Create(keycode Keycode, config map[string]interface{}) (Submodule, error) {
	mu.RLock()
	factory, ok := factories[keycode]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSubmodule, keycode)
	}
	if config == nil {
		config = make(map[string]interface{})
	}
	return factory(config)
}

// List returns all registered factory keycodes in sorted order
func List() []Keycode {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]Keycode, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Registry holds the submodules installed for one engine and dispatches calls to them.
type Registry struct {
	mu        sync.RWMutex
	installed map[Keycode]Submodule
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{installed: make(map[Keycode]Submodule)}
}

// Install makes a submodule addressable by its keycode.
func (r *Registry) Install(sub Submodule) error {
	keycode := sub.Keycode()
	if err := ValidateKeycode(keycode); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.installed[keycode]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyInstalled, keycode)
	}
	r.installed[keycode] = sub
	return nil
}

// Uninstall removes a submodule. Removing an unknown keycode is a no-op.
func (r *Registry) Uninstall(keycode Keycode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.installed, keycode)
}

// IsInstalled reports whether keycode resolves to an installed submodule.
func (r *Registry) IsInstalled(keycode Keycode) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.installed[keycode]
	return ok
}

// Installed returns the installed keycodes in sorted order.
func (r *Registry) Installed() []Keycode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keycodes := make([]Keycode, 0, len(r.installed))
	for k := range r.installed {
		keycodes = append(keycodes, k)
	}
	sort.Slice(keycodes, func(i, j int) bool { return keycodes[i] < keycodes[j] })
	return keycodes
}

func (r *Registry) get(keycode Keycode) (Submodule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.installed[keycode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, keycode)
	}
	return sub, nil
}

// QueryFeed invokes selector on the feed installed under target.
// A panic inside the feed is returned as ErrSubmodulePanic.
func (r *Registry) QueryFeed(ctx context.Context, target Keycode, selector string, req FeedRequest) (price math.Uint, err error) {
	sub, err := r.get(target)
	if err != nil {
		return math.ZeroUint(), err
	}
	feed, ok := sub.(Feed)
	if !ok {
		return math.ZeroUint(), fmt.Errorf("%w: %s", ErrNotAFeed, target)
	}

	defer func() {
		if rec := recover(); rec != nil {
			price = math.ZeroUint()
			err = fmt.Errorf("%w: %s.%s: %v", ErrSubmodulePanic, target, selector, rec)
		}
	}()
	return feed.Price(ctx, selector, req)
}

// Reduce invokes selector on the strategy installed under target.
func (r *Registry) Reduce(ctx context.Context, target Keycode, selector string, prices []math.Uint, params []byte) (price math.Uint, err error) {
	sub, err := r.get(target)
	if err != nil {
		return math.ZeroUint(), err
	}
	strategy, ok := sub.(Strategy)
	if !ok {
		return math.ZeroUint(), fmt.Errorf("%w: %s", ErrNotAStrategy, target)
	}

	// the caller's slice is never handed to the strategy
	input := make([]math.Uint, len(prices))
	copy(input, prices)

	defer func() {
		if rec := recover(); rec != nil {
			price = math.ZeroUint()
			err = fmt.Errorf("%w: %s.%s: %v", ErrSubmodulePanic, target, selector, rec)
		}
	}()
	return strategy.Reduce(ctx, selector, input, params)
}

// ValidateKeycode checks that a keycode is non-empty and made of upper-case letters, digits, '.' and '_'.
func ValidateKeycode(keycode Keycode) error {
	if keycode == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKeycode)
	}
	for _, c := range keycode {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '_':
		default:
			return fmt.Errorf("%w: %s", ErrInvalidKeycode, keycode)
		}
	}
	return nil
}

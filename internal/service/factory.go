package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

type registration struct {
	name      string
	lifecycle Lifecycle
	construct Constructor
}

// Factory creates service instances according to their lifecycle. It is
// built once at startup and passed to the dispatcher.
type Factory struct {
	mu            sync.Mutex
	registrations map[string]registration
	singletons    map[string]Service
	logger        *slog.Logger
}

// NewFactory creates an empty Factory.
func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{
		registrations: make(map[string]registration),
		singletons:    make(map[string]Service),
		logger:        logger.With("component", "service_factory"),
	}
}

// Register adds a constructor under name.
func (f *Factory) Register(name string, lifecycle Lifecycle, construct Constructor) error {
	key := strings.ToUpper(name)

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.registrations[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateService, name)
	}
	f.registrations[key] = registration{name: key, lifecycle: lifecycle, construct: construct}
	f.logger.Debug("registered service", "service", key, "lifecycle", lifecycle)
	return nil
}

// RegisterInstance registers an existing instance as a singleton.
func (f *Factory) RegisterInstance(svc Service) error {
	if err := f.Register(svc.Name(), Singleton, func() (Service, error) { return svc, nil }); err != nil {
		return err
	}
	f.mu.Lock()
	f.singletons[strings.ToUpper(svc.Name())] = svc
	f.mu.Unlock()
	return nil
}

// Lifecycle returns the lifecycle registered for name.
func (f *Factory) Lifecycle(name string) (Lifecycle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.registrations[strings.ToUpper(name)]
	return reg.lifecycle, ok
}

// Names returns the registered service names, sorted.
func (f *Factory) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.registrations))
	for name := range f.registrations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Acquire returns an instance of the named service and a release function
// that must be called once the call is over. Releasing a multi-instance
// service runs its Cleanup.
func (f *Factory) Acquire(name string) (Service, func(ctx context.Context), error) {
	key := strings.ToUpper(name)

	f.mu.Lock()
	reg, ok := f.registrations[key]
	if !ok {
		f.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}

	if reg.lifecycle == Singleton {
		defer f.mu.Unlock()
		if svc, ok := f.singletons[key]; ok {
			return svc, func(context.Context) {}, nil
		}
		svc, err := reg.construct()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create service %s: %w", key, err)
		}
		f.singletons[key] = svc
		return svc, func(context.Context) {}, nil
	}
	f.mu.Unlock()

	svc, err := reg.construct()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service %s: %w", key, err)
	}
	release := func(ctx context.Context) {
		c, ok := svc.(Cleaner)
		if !ok {
			return
		}
		if err := c.Cleanup(ctx); err != nil {
			f.logger.Warn("service cleanup failed", "service", key, "error", err)
		}
	}
	return svc, release, nil
}

// Close cleans up singleton instances that hold resources.
func (f *Factory) Close(ctx context.Context) {
	f.mu.Lock()
	singletons := make([]Service, 0, len(f.singletons))
	for _, svc := range f.singletons {
		singletons = append(singletons, svc)
	}
	f.mu.Unlock()

	for _, svc := range singletons {
		if c, ok := svc.(Cleaner); ok {
			if err := c.Cleanup(ctx); err != nil {
				f.logger.Warn("service cleanup failed", "service", svc.Name(), "error", err)
			}
		}
	}
}

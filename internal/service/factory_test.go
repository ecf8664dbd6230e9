package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskrelay/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeService answers a fixed handler set and counts cleanups.
type fakeService struct {
	name     string
	handlers map[string]service.HandlerFunc
	cleanups *atomic.Int32
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) Handlers() map[string]service.HandlerFunc { return f.handlers }

func (f *fakeService) Cleanup(context.Context) error {
	if f.cleanups != nil {
		f.cleanups.Add(1)
	}
	return nil
}

func TestFactoryRegisterDuplicate(t *testing.T) {
	f := service.NewFactory(testLogger())
	construct := func() (service.Service, error) { return &fakeService{name: "SCRAPER"}, nil }

	require.NoError(t, f.Register("scraper", service.Singleton, construct))
	err := f.Register("SCRAPER", service.MultiInstance, construct)
	assert.ErrorIs(t, err, service.ErrDuplicateService)

	lifecycle, ok := f.Lifecycle("Scraper")
	require.True(t, ok)
	assert.Equal(t, service.Singleton, lifecycle)
}

func TestFactoryAcquire(t *testing.T) {
	t.Run("singleton is built once", func(t *testing.T) {
		f := service.NewFactory(testLogger())
		var built atomic.Int32
		require.NoError(t, f.Register("SCRAPER", service.Singleton, func() (service.Service, error) {
			built.Add(1)
			return &fakeService{name: "SCRAPER"}, nil
		}))

		first, release, err := f.Acquire("scraper")
		require.NoError(t, err)
		release(context.Background())
		second, release, err := f.Acquire("SCRAPER")
		require.NoError(t, err)
		release(context.Background())

		assert.Same(t, first, second)
		assert.Equal(t, int32(1), built.Load())
	})

	t.Run("multi instance is built per call and cleaned up", func(t *testing.T) {
		f := service.NewFactory(testLogger())
		var cleanups atomic.Int32
		require.NoError(t, f.Register("BROWSER", service.MultiInstance, func() (service.Service, error) {
			return &fakeService{name: "BROWSER", cleanups: &cleanups}, nil
		}))

		first, releaseFirst, err := f.Acquire("BROWSER")
		require.NoError(t, err)
		second, releaseSecond, err := f.Acquire("BROWSER")
		require.NoError(t, err)
		assert.NotSame(t, first, second)

		releaseFirst(context.Background())
		releaseSecond(context.Background())
		assert.Equal(t, int32(2), cleanups.Load())
	})

	t.Run("unknown service", func(t *testing.T) {
		f := service.NewFactory(testLogger())
		_, _, err := f.Acquire("NOPE")
		assert.ErrorIs(t, err, service.ErrUnknownService)
	})

	t.Run("constructor failure", func(t *testing.T) {
		f := service.NewFactory(testLogger())
		boom := errors.New("no browser available")
		require.NoError(t, f.Register("BROWSER", service.MultiInstance, func() (service.Service, error) {
			return nil, boom
		}))
		_, _, err := f.Acquire("BROWSER")
		assert.ErrorIs(t, err, boom)
	})
}

func TestFactoryNamesAndClose(t *testing.T) {
	f := service.NewFactory(testLogger())
	var cleanups atomic.Int32
	require.NoError(t, f.RegisterInstance(&fakeService{name: "ZETA", cleanups: &cleanups}))
	require.NoError(t, f.RegisterInstance(&fakeService{name: "ALPHA", cleanups: &cleanups}))

	assert.Equal(t, []string{"ALPHA", "ZETA"}, f.Names())

	f.Close(context.Background())
	assert.Equal(t, int32(2), cleanups.Load())
}

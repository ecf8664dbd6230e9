package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskrelay/internal/service"
	"github.com/phrazzld/taskrelay/internal/stream"
	"github.com/phrazzld/taskrelay/internal/task"
)

func newDispatcher(t *testing.T, services ...service.Service) *service.Dispatcher {
	t.Helper()
	f := service.NewFactory(testLogger())
	for _, svc := range services {
		require.NoError(t, f.RegisterInstance(svc))
	}
	return service.NewDispatcher(f, testLogger())
}

func newCall(svc, taskName string, ctx map[string]any) (*service.Call, *stream.Recorder) {
	s, rec := stream.NewRecorded("test-listener")
	return &service.Call{
		Service: svc,
		Task:    taskName,
		UserID:  "user-1",
		Context: ctx,
		Stream:  s,
	}, rec
}

func TestDispatchMicCheck(t *testing.T) {
	// Answered even for services nobody registered.
	d := newDispatcher(t)
	call, rec := newCall("ANY_SERVICE", "mic_check", map[string]any{"mic_check_message": "hello"})

	require.NoError(t, d.Dispatch(context.Background(), call))

	assert.Equal(t, []stream.Kind{
		stream.KindInfo, stream.KindText, stream.KindData, stream.KindError, stream.KindEnd,
	}, rec.Kinds())

	statuses := rec.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, stream.StatusConfirm, statuses[0].Status)
	assert.Equal(t, "System Mic Check", statuses[0].SystemMessage)
	assert.Equal(t, "Hi User. We're just doing some testing. Sorry.", statuses[0].UserVisibleMessage)
	assert.Equal(t, "This is the system mic check sent as metadata", statuses[0].Metadata["some_key"])

	assert.Equal(t, "This is the system mic check sent as a chunk", rec.Text())
	assert.Equal(t, []any{map[string]any{"some_key": "This is the system mic check sent as data"}}, rec.Data())

	errs := rec.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "known_error_type_predefined_in_frontend_and_backend", errs[0].Type)
	assert.Equal(t, "This is the system mic check sent as an error", errs[0].Message)
	assert.Equal(t, "error_code", errs[0].Code)
	assert.Equal(t, stream.DefaultUserVisibleMessage, errs[0].UserVisibleMessage)
	assert.Equal(t, map[string]any{"some_key": "This is the system mic check sent as details"}, errs[0].Details)
}

func TestDispatchUnknownTargets(t *testing.T) {
	svc := &fakeService{name: "SCRAPER", handlers: map[string]service.HandlerFunc{}}
	d := newDispatcher(t, svc)

	tests := []struct {
		name     string
		service  string
		errType  string
		expected error
	}{
		{"unknown service", "MISSING", "unknown_service", service.ErrUnknownService},
		{"unknown task", "SCRAPER", "unknown_task", service.ErrUnknownTask},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			call, rec := newCall(tc.service, "SCRAPE", nil)
			err := d.Dispatch(context.Background(), call)
			assert.ErrorIs(t, err, tc.expected)

			errs := rec.Errors()
			require.Len(t, errs, 1)
			assert.Equal(t, tc.errType, errs[0].Type)
			assert.True(t, call.Stream.Ended())
		})
	}
}

func TestDispatchHandlers(t *testing.T) {
	plain := errors.New("upstream unavailable")
	svc := &fakeService{
		name: "SCRAPER",
		handlers: map[string]service.HandlerFunc{
			"SCRAPE": func(ctx context.Context, call *service.Call) error {
				return call.Stream.SendDataFinal(ctx, map[string]any{"url": call.Context["url"]})
			},
			"REJECT": func(ctx context.Context, call *service.Call) error {
				return &service.Error{
					Type:               "invalid_url",
					Message:            "url must be absolute",
					UserVisibleMessage: "Please enter a full URL.",
					Code:               "url_not_absolute",
				}
			},
			"FAIL": func(ctx context.Context, call *service.Call) error {
				return plain
			},
		},
	}
	d := newDispatcher(t, svc)

	t.Run("lookup ignores case", func(t *testing.T) {
		call, rec := newCall("scraper", "scrape", map[string]any{"url": "https://example.com"})
		require.NoError(t, d.Dispatch(context.Background(), call))
		assert.Equal(t, []any{map[string]any{"url": "https://example.com"}}, rec.Data())
		assert.Equal(t, []stream.Kind{stream.KindData, stream.KindEnd}, rec.Kinds())
	})

	t.Run("service error becomes fatal error", func(t *testing.T) {
		call, rec := newCall("SCRAPER", "REJECT", nil)
		err := d.Dispatch(context.Background(), call)

		var svcErr *service.Error
		require.ErrorAs(t, err, &svcErr)
		errs := rec.Errors()
		require.Len(t, errs, 1)
		assert.Equal(t, stream.ErrorObject{
			Type:               "invalid_url",
			Message:            "url must be absolute",
			UserVisibleMessage: "Please enter a full URL.",
			Code:               "url_not_absolute",
		}, errs[0])
		assert.True(t, call.Stream.Ended())
	})

	t.Run("other errors are left to the caller", func(t *testing.T) {
		call, rec := newCall("SCRAPER", "FAIL", nil)
		err := d.Dispatch(context.Background(), call)
		assert.ErrorIs(t, err, plain)
		assert.Empty(t, rec.Events())
		assert.False(t, call.Stream.Ended())
	})
}

func TestDispatcherExecute(t *testing.T) {
	var cleanups atomic.Int32
	var seen *service.Call
	f := service.NewFactory(testLogger())
	require.NoError(t, f.Register("BROWSER", service.MultiInstance, func() (service.Service, error) {
		return &fakeService{
			name:     "BROWSER",
			cleanups: &cleanups,
			handlers: map[string]service.HandlerFunc{
				"OPEN": func(ctx context.Context, call *service.Call) error {
					seen = call
					return call.Stream.SendChunkFinal(ctx, "opened")
				},
			},
		}, nil
	}))
	d := service.NewDispatcher(f, testLogger())

	s, rec := stream.NewRecorded("listener-1")
	tk := task.New("BROWSER", "OPEN", map[string]any{"url": "https://example.com"}, s,
		task.WithUser("user-7"), task.WithSession("session-1"), task.WithNamespace("ns"))

	require.NoError(t, d.Execute(context.Background(), tk))

	require.NotNil(t, seen)
	assert.Equal(t, tk.ID, seen.TaskID)
	assert.Equal(t, "user-7", seen.UserID)
	assert.Equal(t, "session-1", seen.SessionID)
	assert.Equal(t, "ns", seen.Namespace)
	assert.Equal(t, "https://example.com", seen.Context["url"])
	assert.NotNil(t, seen.Logger)
	assert.Equal(t, "opened", rec.Text())
	assert.Equal(t, int32(1), cleanups.Load())
}

func TestBind(t *testing.T) {
	type options struct {
		Limit    int    `mapstructure:"limit"`
		Redacted bool   `mapstructure:"redacted"`
		Filter   string `mapstructure:"filter"`
	}

	call := &service.Call{
		Service: "ADMIN_SERVICE",
		Task:    "GET_ENVIRONMENT",
		Context: map[string]any{"limit": "25", "redacted": true, "filter": "RELAY_"},
	}
	opts, err := service.Bind[options](call)
	require.NoError(t, err)
	assert.Equal(t, options{Limit: 25, Redacted: true, Filter: "RELAY_"}, opts)

	call.Context = map[string]any{"limit": []any{"not", "a", "number"}}
	_, err = service.Bind[options](call)
	var svcErr *service.Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "invalid_options", svcErr.Type)
}

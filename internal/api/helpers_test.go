package api_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskrelay/internal/platform/jsoncodec"
	"github.com/phrazzld/taskrelay/internal/request"
	"github.com/phrazzld/taskrelay/internal/schema"
	"github.com/phrazzld/taskrelay/internal/task"
)

const testSchema = `
tasks:
  SHOP:
    SEARCH:
      keyword:
        REQUIRED: true
        DATA_TYPE: string
      limit:
        DATA_TYPE: integer
        DEFAULT: 10
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newValidator(t *testing.T) *schema.Validator {
	t.Helper()
	doc, err := schema.Parse([]byte(testSchema))
	require.NoError(t, err)
	registry, err := schema.NewRegistry(doc)
	require.NoError(t, err)
	return schema.NewValidator(registry, nil, nil, discardLogger())
}

// echoScheduler answers every admitted task with one chunk naming the
// keyword, then ends the stream.
type echoScheduler struct {
	mu    sync.Mutex
	tasks []*task.Task
	err   error
}

func (s *echoScheduler) Submit(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.tasks = append(s.tasks, t)
	go func() {
		ctx := context.Background()
		kw, _ := t.Payload["keyword"].(string)
		_ = t.Stream.SendChunk(ctx, "found "+kw)
		_ = t.Stream.SendEnd(ctx)
	}()
	return nil
}

func (s *echoScheduler) submitted() []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*task.Task(nil), s.tasks...)
}

func newGateway(t *testing.T, sched request.Submitter) *request.Gateway {
	t.Helper()
	return request.NewGateway(newValidator(t), sched, discardLogger())
}

// sseFrames decodes the data lines of an SSE body.
func sseFrames(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, frame := range strings.Split(strings.TrimSpace(body), "\n\n") {
		if frame == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, jsoncodec.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &m))
		out = append(out, m)
	}
	return out
}

package service

import (
	"context"

	"github.com/phrazzld/taskrelay/internal/stream"
)

// MicCheckTask is the task every service answers with a fixed event
// sequence, used by clients to verify their protocol handling.
const MicCheckTask = "MIC_CHECK"

// MicCheck emits the fixed mic check sequence: one confirm status, one
// chunk, one data object, one error and the end marker.
func MicCheck(ctx context.Context, call *Call) error {
	s := call.Stream
	call.Logger.Info("mic check", "mic_check_message", call.Context["mic_check_message"])

	if err := s.SendStatus(ctx, stream.StatusConfirm, "System Mic Check",
		stream.WithUserVisibleMessage("Hi User. We're just doing some testing. Sorry."),
		stream.WithMetadata(map[string]any{"some_key": "This is the system mic check sent as metadata"}),
	); err != nil {
		return err
	}
	if err := s.SendChunk(ctx, "This is the system mic check sent as a chunk"); err != nil {
		return err
	}
	if err := s.SendData(ctx, map[string]any{"some_key": "This is the system mic check sent as data"}); err != nil {
		return err
	}
	if err := s.SendError(ctx, stream.ErrorObject{
		Type:    "known_error_type_predefined_in_frontend_and_backend",
		Message: "This is the system mic check sent as an error",
		Code:    "error_code",
		Details: map[string]any{"some_key": "This is the system mic check sent as details"},
	}); err != nil {
		return err
	}
	return s.SendEnd(ctx)
}

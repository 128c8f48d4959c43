package llmcall

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/sysrev/internal/providers"
)

// Recorder persists LLM calls. Failures are logged and never surface to
// the caller, so a broken store cannot fail an extraction.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder creates a new LLM call recorder. A nil store disables recording.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Record builds a Call from result and stores it. Returns the call, or nil
// when recording is disabled or result is nil.
func (r *Recorder) Record(ctx context.Context, result *providers.ChatResult, opts RecordOptions) *Call {
	if r == nil || r.store == nil {
		return nil
	}
	call := FromChatResult(result, opts)
	if call == nil {
		return nil
	}
	r.RecordCall(ctx, call)
	return call
}

// RecordCall stores an already-constructed Call.
func (r *Recorder) RecordCall(ctx context.Context, call *Call) {
	if r == nil || r.store == nil || call == nil {
		return
	}
	if err := r.store.Save(ctx, call); err != nil {
		r.logger.Warn("failed to record LLM call",
			"call_id", call.ID,
			"prompt_key", call.PromptKey,
			"error", err)
	}
}

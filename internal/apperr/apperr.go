// Package apperr implements the error taxonomy that the scheduler and
// pipeline use to decide retry-vs-escalate behavior, instead of
// string-matching on err.Error().
package apperr

import "fmt"

// UserError is an invalid request: surfaced synchronously to the HTTP
// caller, never produces a Task.
type UserError struct{ Message string }

func (e *UserError) Error() string { return e.Message }

// SkipReason is not an error — the Skip Oracle's PROCEED/SKIP decision,
// carried as a value rather than an error, but typed here for symmetry
// with the rest of the taxonomy.
type SkipReason string

const (
	ReasonAlreadyHasTrack SkipReason = "already_has_track"
	ReasonOutputExists    SkipReason = "output_exists"
	ReasonHistory         SkipReason = "history"
	ReasonFilenameMarker  SkipReason = "filename_marker"
	ReasonInProgress      SkipReason = "in_progress"
)

// TransientError covers network errors, 429/5xx, timeouts, and locked
// files — retried with backoff inside the Pipeline; only escalates once
// retries are exhausted.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// ToolError is a non-zero exit from an external binary (ffmpeg, mkvmerge,
// mkvextract). Escalates the owning task to failed; its error_message is
// the full Error() text (command, exit code and StderrTail).
type ToolError struct {
	Command    string
	ExitCode   int
	StderrTail string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: exit %d: %s", e.Command, e.ExitCode, e.StderrTail)
}

// CodecError is an unparseable or ambiguous-format subtitle. Escalates
// to failed.
type CodecError struct {
	Path string
	Err  error
}

func (e *CodecError) Error() string { return fmt.Sprintf("codec error in %s: %v", e.Path, e.Err) }
func (e *CodecError) Unwrap() error { return e.Err }

// AuthError is an LLM credential failure (401/403). Escalates
// immediately, never retried.
type AuthError struct {
	Provider string
	Message  string
}

func (e *AuthError) Error() string { return fmt.Sprintf("%s: auth failed: %s", e.Provider, e.Message) }

// ConsistencyError is an invariant violation, e.g. a translation count
// that differs from the unit count when applied, an unresolvable target
// language, an MKV with no subtitle track, or mkv output requested for a
// non-MKV source. Escalates to failed.
type ConsistencyError struct{ Message string }

func (e *ConsistencyError) Error() string { return e.Message }

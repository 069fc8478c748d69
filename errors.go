package herald

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrInvalidTool      = goerr.New("invalid tool specification")
	ErrInvalidParameter = goerr.New("invalid parameter")
	ErrInvalidValue     = goerr.New("invalid value")
	ErrToolNameConflict = goerr.New("tool name conflict")
	ErrInvalidInput     = goerr.New("invalid input")

	// Planning failure taxonomy. A plan that trips any of these is rejected
	// as a whole; no step of it is ever executed.
	ErrUnknownTool     = goerr.New("plan references a tool not in the registry")
	ErrSchemaMismatch  = goerr.New("plan arguments do not conform to the tool schema")
	ErrLLMUnavailable  = goerr.New("LLM service is unavailable")
	ErrAmbiguousIntent = goerr.New("could not derive an intent from the transcript")

	ErrEmptyTranscript = goerr.New("transcript is empty")

	ErrPlanNotFound   = goerr.New("plan not found")
	ErrPlanExpired    = goerr.New("plan expired")
	ErrPlanNotPending = goerr.New("plan is not awaiting confirmation")

	ErrDeviceToolInvoked = goerr.New("device-target tool cannot run on the server")
	ErrStoreClosed       = goerr.New("plan store is closed")
)

// PlanningReason classifies a planner failure for error reporting.
type PlanningReason string

const (
	ReasonNone            PlanningReason = ""
	ReasonUnknownTool     PlanningReason = "unknown_tool"
	ReasonSchemaMismatch  PlanningReason = "schema_mismatch"
	ReasonLLMUnavailable  PlanningReason = "llm_unavailable"
	ReasonAmbiguousIntent PlanningReason = "ambiguous_intent"
)

// PlanningReasonOf returns the taxonomy reason of a planner error, or
// ReasonNone if the error is not a planning failure.
func PlanningReasonOf(err error) PlanningReason {
	switch {
	case errors.Is(err, ErrUnknownTool):
		return ReasonUnknownTool
	case errors.Is(err, ErrSchemaMismatch):
		return ReasonSchemaMismatch
	case errors.Is(err, ErrLLMUnavailable):
		return ReasonLLMUnavailable
	case errors.Is(err, ErrAmbiguousIntent), errors.Is(err, ErrEmptyTranscript):
		return ReasonAmbiguousIntent
	default:
		return ReasonNone
	}
}

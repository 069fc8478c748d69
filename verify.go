package herald

import (
	"context"
	"fmt"
)

// VerificationResult reports whether a completed action matches what was
// requested.
type VerificationResult struct {
	Matched       bool
	Discrepancies []string
}

// Verifier is an optional interface a Tool may implement to support
// read-after-write verification. Verify re-reads the affected resource and
// compares it with the arguments that produced it.
type Verifier interface {
	Verify(ctx context.Context, args map[string]any, result map[string]any) (*VerificationResult, error)
}

// VerifyServerStep verifies a successful server-side step. Tools without a
// Verifier implementation pass trivially.
func VerifyServerStep(ctx context.Context, registry *Registry, sr StepResult) *VerificationResult {
	logger := LoggerFromContext(ctx)

	tool, ok := registry.Lookup(sr.Step.ToolName)
	if !ok {
		return &VerificationResult{
			Matched:       false,
			Discrepancies: []string{fmt.Sprintf("unknown tool: %s", sr.Step.ToolName)},
		}
	}

	verifier, ok := tool.(Verifier)
	if !ok {
		return &VerificationResult{Matched: true}
	}

	verification, err := verifier.Verify(ctx, sr.Step.Args.AnyMap(), sr.Result)
	if err != nil {
		return &VerificationResult{
			Matched:       false,
			Discrepancies: []string{fmt.Sprintf("verification failed: %s", err)},
		}
	}

	logger.Info("server step verified",
		"tool", sr.Step.ToolName,
		"matched", verification.Matched,
		"discrepancies", verification.Discrepancies,
	)
	return verification
}

// VerifyDeviceResult verifies a device-side result reported by the client.
// The device is trusted to report its own outcome; a failure report is a
// mismatch by definition.
func VerifyDeviceResult(result DeviceActionResult) *VerificationResult {
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "unknown error"
		}
		return &VerificationResult{
			Matched:       false,
			Discrepancies: []string{fmt.Sprintf("device execution failed: %s", msg)},
		}
	}
	return &VerificationResult{Matched: true}
}

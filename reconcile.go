package herald

import (
	"context"
	"fmt"
	"strings"
)

// ReconciliationEntry is the verdict for one reported device result.
type ReconciliationEntry struct {
	ActionID      string         `json:"action_id"`
	Outcome       ResolveOutcome `json:"outcome"`
	Matched       bool           `json:"matched"`
	Discrepancies []string       `json:"discrepancies,omitempty"`
}

// ReconciliationReport summarizes a device-result batch.
type ReconciliationReport struct {
	PlanID      string                `json:"plan_id"`
	Status      string                `json:"status"`
	Entries     []ReconciliationEntry `json:"verifications"`
	Outstanding int                   `json:"outstanding"`
	Summary     string                `json:"summary"`
}

// Reconciler matches device-reported results against the outstanding
// actions of a stored plan.
type Reconciler struct {
	store PlanStore
}

// NewReconciler creates a Reconciler over the given plan store.
func NewReconciler(store PlanStore) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile applies a batch of device results to a plan. The batch is
// processed entry by entry: an unknown or replayed entry is recorded in
// the report without failing the rest of the batch. Only a missing or
// expired plan fails the whole call.
func (r *Reconciler) Reconcile(ctx context.Context, planID string, results []DeviceActionResult) (*ReconciliationReport, error) {
	logger := LoggerFromContext(ctx)

	// Reject the whole batch early when the plan itself is gone.
	if _, _, err := r.store.Get(ctx, planID); err != nil {
		return nil, err
	}

	report := &ReconciliationReport{
		PlanID:  planID,
		Entries: make([]ReconciliationEntry, 0, len(results)),
	}

	allMatched := true
	var failures []string

	for _, result := range results {
		resolved, err := r.store.ResolveDeviceAction(ctx, planID, result.ActionID, result.IdempotencyKey, result)
		if err != nil {
			return nil, err
		}
		report.Outstanding = resolved.Outstanding

		entry := ReconciliationEntry{
			ActionID: result.ActionID,
			Outcome:  resolved.Outcome,
		}

		switch resolved.Outcome {
		case ResolveUnknown:
			entry.Matched = false
			entry.Discrepancies = []string{"no outstanding action matches this result"}
			logger.Warn("rejected device result",
				"plan_id", planID,
				"action_id", result.ActionID,
			)

		default:
			// Replays verify against the recorded result, not the
			// incoming duplicate.
			verification := VerifyDeviceResult(resolved.Recorded)
			entry.Matched = verification.Matched
			entry.Discrepancies = verification.Discrepancies
			if !verification.Matched {
				failures = append(failures, fmt.Sprintf("%s: %s",
					resolved.Recorded.ActionID, strings.Join(verification.Discrepancies, "; ")))
			}
		}

		if !entry.Matched {
			allMatched = false
		}
		report.Entries = append(report.Entries, entry)
	}

	if allMatched {
		report.Status = "verified"
		if report.Outstanding == 0 {
			report.Summary = "All device actions completed."
		} else {
			report.Summary = fmt.Sprintf("Recorded %d result(s); %d action(s) still outstanding.",
				len(report.Entries), report.Outstanding)
		}
	} else {
		report.Status = "partial_failure"
		if len(failures) > 0 {
			report.Summary = fmt.Sprintf("Some device actions failed: %s", strings.Join(failures, " | "))
		} else {
			report.Summary = "Some reported results did not match any outstanding action."
		}
	}

	logger.Info("device results reconciled",
		"plan_id", planID,
		"entries", len(report.Entries),
		"outstanding", report.Outstanding,
		"status", report.Status,
	)

	return report, nil
}

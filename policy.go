package herald

import (
	"context"
	"fmt"
	"strings"
)

// PolicyRule inspects a step and may upgrade its risk or force
// confirmation. Rules must never downgrade: the gate applies spec-derived
// risk first and rules can only tighten the result.
type PolicyRule func(spec *ToolSpec, step *ActionStep)

// GatedPlan is the policy gate's verdict on a plan.
type GatedPlan struct {
	Plan                 *ActionPlan
	RequiresConfirmation bool
	ConfirmationPrompt   string
}

// EvaluatePolicy applies the confirmation policy to a plan. A step requires
// confirmation when its risk is high, or when it is medium risk and the
// underlying tool is irreversible. Extra rules run after the base policy
// and may only tighten it.
//
// The step slice is updated in place with the final risk and confirmation
// flags; the plan is otherwise unchanged.
func EvaluatePolicy(ctx context.Context, registry *Registry, plan *ActionPlan, rules ...PolicyRule) *GatedPlan {
	logger := LoggerFromContext(ctx)

	var phrases []string
	flagged := 0

	for i := range plan.Steps {
		step := &plan.Steps[i]

		spec, ok := registry.Spec(step.ToolName)
		if ok {
			// The spec's risk is a floor: a rule or the planner may have
			// already raised the step above it.
			step.Risk = step.Risk.Max(spec.Risk)
			for _, rule := range rules {
				rule(spec, step)
			}
		}

		irreversible := ok && spec.Irreversible
		if step.Risk == RiskHigh || (step.Risk == RiskMedium && irreversible) {
			step.RequiresConfirmation = true
		}

		if step.RequiresConfirmation {
			flagged++
			if step.ConfirmationPhrase == "" && ok && spec.ConfirmationPhrase != "" {
				step.ConfirmationPhrase = spec.ConfirmationPhrase
			}
			if step.ConfirmationPhrase != "" {
				phrases = append(phrases, step.ConfirmationPhrase)
			}
		}
	}

	gated := &GatedPlan{
		Plan:                 plan,
		RequiresConfirmation: flagged > 0,
	}
	if flagged > 0 {
		if len(phrases) > 0 {
			gated.ConfirmationPrompt = strings.Join(phrases, " ")
		} else {
			gated.ConfirmationPrompt = fmt.Sprintf("Proceed with %d actions?", flagged)
		}
	}

	logger.Info("policy evaluated",
		"plan_id", plan.PlanID,
		"requires_confirmation", gated.RequiresConfirmation,
		"max_risk", plan.MaxRisk(),
	)

	return gated
}

func upgradeRisk(step *ActionStep, target RiskLevel) {
	step.Risk = step.Risk.Max(target)
}

// DestructiveToolRule forces high risk and confirmation for the named
// tools.
func DestructiveToolRule(toolNames ...string) PolicyRule {
	destructive := make(map[string]bool, len(toolNames))
	for _, name := range toolNames {
		destructive[name] = true
	}

	return func(spec *ToolSpec, step *ActionStep) {
		if !destructive[step.ToolName] {
			return
		}
		upgradeRisk(step, RiskHigh)
		step.RequiresConfirmation = true
		if step.ConfirmationPhrase == "" {
			step.ConfirmationPhrase = "This will permanently delete an event. Are you sure?"
		}
	}
}

// notifyingSendValues are send_updates values that email attendees.
var notifyingSendValues = map[string]bool{
	"all":          true,
	"externalOnly": true,
}

// AttendeeNotificationRule tightens calendar writes that touch other
// people: inviting attendees or sending update notifications is at least
// medium risk and always confirmed.
func AttendeeNotificationRule(toolNames ...string) PolicyRule {
	watched := make(map[string]bool, len(toolNames))
	for _, name := range toolNames {
		watched[name] = true
	}

	return func(spec *ToolSpec, step *ActionStep) {
		if !watched[step.ToolName] {
			return
		}

		if attendees := attendeeList(step.Args); len(attendees) > 0 {
			upgradeRisk(step, RiskMedium)
			step.RequiresConfirmation = true
			if step.ConfirmationPhrase == "" {
				step.ConfirmationPhrase = attendeePhrase(attendees)
			}
		}

		if sendUpdates, ok := step.Args["send_updates"]; ok {
			if v, ok := sendUpdates.String(); ok && notifyingSendValues[v] {
				upgradeRisk(step, RiskMedium)
				step.RequiresConfirmation = true
				if step.ConfirmationPhrase == "" {
					step.ConfirmationPhrase = "This will send notifications to attendees. Confirm?"
				}
			}
		}
	}
}

func attendeeList(args Arguments) []string {
	raw, ok := args["attendees"]
	if !ok {
		return nil
	}
	items, ok := raw.Array()
	if !ok {
		return nil
	}

	var attendees []string
	for _, item := range items {
		if s, ok := item.String(); ok {
			attendees = append(attendees, s)
		}
	}
	return attendees
}

func attendeePhrase(attendees []string) string {
	names := attendees
	suffix := ""
	if len(attendees) > 3 {
		names = attendees[:3]
		suffix = fmt.Sprintf(" and %d more", len(attendees)-3)
	}
	return fmt.Sprintf("This will invite %s%s. Confirm?", strings.Join(names, ", "), suffix)
}

// DefaultPolicyRules is the standard rule set for the calendar domain.
func DefaultPolicyRules() []PolicyRule {
	return []PolicyRule{
		DestructiveToolRule(
			"google_calendar.delete_event",
			"ios_eventkit.delete_event",
		),
		AttendeeNotificationRule(
			"google_calendar.create_event",
			"google_calendar.update_event",
		),
	}
}

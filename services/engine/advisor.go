// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import "fmt"

// fixForwardMinConfidence is the confidence floor a cheap fix must clear
// before fixing forward is preferred over reverting a high-risk commit.
const fixForwardMinConfidence = 0.6

// RevertAdvisor decides between reverting, fixing forward, and monitoring.
//
// # Description
//
// The advisor is a pure decision function over an AnalysisResult and
// caller constraints. It has exactly three terminal decisions and no
// persisted intermediate state; a recommendation is recomputed fresh on
// every call.
//
//   - revert: risk is high or critical and no suggestion anywhere in the
//     list qualifies as a viable cheap fix, and the caller has not
//     flagged a timeline constraint.
//   - fix_forward: risk is high or critical but some suggestion offers a
//     low or medium effort fix with confidence >= 0.6. Low effort wins
//     over medium; ranking order breaks ties.
//   - monitor: everything else (risk at or below medium, or unknown).
//
// # Thread Safety
//
// RevertAdvisor is stateless and safe for concurrent use.
type RevertAdvisor struct{}

// NewRevertAdvisor creates a RevertAdvisor.
func NewRevertAdvisor() *RevertAdvisor {
	return &RevertAdvisor{}
}

// Advise computes the revert recommendation for an analysis result.
//
// The rationale always cites the deciding risk level, the chosen fix
// effort when one exists, and its confidence. AlternativeActions lists
// the non-chosen viable path when one exists.
func (a *RevertAdvisor) Advise(result *AnalysisResult, constraints RevertConstraints) RevertRecommendation {
	rec := RevertRecommendation{
		CommitHash:         result.CommitHash,
		AlternativeActions: []string{},
	}

	best, hasFix := bestSuggestion(result.Suggestions)
	fix, cheapFix := cheapestViableFix(result.Suggestions)

	highRisk := result.RiskLevel == RiskHigh || result.RiskLevel == RiskCritical

	switch {
	case highRisk && cheapFix:
		rec.Decision = DecisionFixForward
		rec.Rationale = fmt.Sprintf(
			"risk level %s, but a %s-effort fix is available with confidence %.2f: %s",
			result.RiskLevel, fix.EffortLevel, fix.Confidence, fix.Title)
		rec.AlternativeActions = append(rec.AlternativeActions,
			fmt.Sprintf("revert commit %s if the fix cannot land in time", result.CommitHash))

	case highRisk && !constraints.TimelineOverride:
		rec.Decision = DecisionRevert
		if hasFix {
			rec.Rationale = fmt.Sprintf(
				"risk level %s and the best available fix is %s effort (confidence %.2f); reverting is the safer path",
				result.RiskLevel, best.EffortLevel, best.Confidence)
			// The rejected fix stays visible as the alternative.
			rec.AlternativeActions = append(rec.AlternativeActions,
				fmt.Sprintf("fix forward with %q (%s effort, confidence %.2f)",
					best.Title, best.EffortLevel, best.Confidence))
		} else {
			rec.Rationale = fmt.Sprintf(
				"risk level %s with no fix suggestion available; reverting is the only safe remediation",
				result.RiskLevel)
			rec.AlternativeActions = append(rec.AlternativeActions,
				"monitor the deployment closely if reverting is not possible")
		}

	case highRisk && constraints.TimelineOverride:
		rec.Decision = DecisionFixForward
		if hasFix {
			rec.Rationale = fmt.Sprintf(
				"risk level %s; timeline constraint overrides revert, best fix is %s effort (confidence %.2f)",
				result.RiskLevel, best.EffortLevel, best.Confidence)
		} else {
			rec.Rationale = fmt.Sprintf(
				"risk level %s; timeline constraint overrides revert and no fix suggestion exists, manual remediation required",
				result.RiskLevel)
		}
		rec.AlternativeActions = append(rec.AlternativeActions,
			fmt.Sprintf("revert commit %s once the timeline constraint lifts", result.CommitHash))

	default:
		rec.Decision = DecisionMonitor
		if hasFix {
			rec.Rationale = fmt.Sprintf(
				"risk level %s does not warrant intervention; best fix on record is %s effort (confidence %.2f)",
				result.RiskLevel, best.EffortLevel, best.Confidence)
			rec.AlternativeActions = append(rec.AlternativeActions,
				fmt.Sprintf("apply %q proactively (%s effort)", best.Title, best.EffortLevel))
		} else {
			rec.Rationale = fmt.Sprintf(
				"risk level %s does not warrant intervention", result.RiskLevel)
		}
	}

	return rec
}

// bestSuggestion returns the highest-ranked suggestion. Suggestions are
// already in FixRanker order, so the first entry wins.
func bestSuggestion(suggestions []FixSuggestion) (FixSuggestion, bool) {
	if len(suggestions) == 0 {
		return FixSuggestion{}, false
	}
	return suggestions[0], true
}

// cheapestViableFix scans the whole suggestion list for the cheapest fix
// worth taking forward: low or medium effort with confidence at or above
// fixForwardMinConfidence. A low-effort fix beats a medium-effort one
// regardless of ranking; ties keep ranker order.
func cheapestViableFix(suggestions []FixSuggestion) (FixSuggestion, bool) {
	var chosen FixSuggestion
	found := false
	for _, s := range suggestions {
		if s.Confidence < fixForwardMinConfidence {
			continue
		}
		if s.EffortLevel != EffortLow && s.EffortLevel != EffortMedium {
			continue
		}
		if !found || (s.EffortLevel == EffortLow && chosen.EffortLevel == EffortMedium) {
			chosen = s
			found = true
		}
	}
	return chosen, found
}

package detection

import (
	"strconv"
	"strings"

	"github.com/christophervi/secainw-backend/internal/domain/events"
)

// Line-oriented response protocol. Each line is matched against these
// case-sensitive prefixes; the rest of a matching line (trimmed) is the field
// value. Unmatched lines are ignored and a repeated prefix overwrites the
// earlier value. Multi-line field values are not supported by this format.
const (
	prefixVerdict    = "VERDICT:"
	prefixSeverity   = "SEVERITY_SCORE:"
	prefixConfidence = "CONFIDENCE_SCORE:"
	prefixExplain    = "EXPLANATION:"
	prefixEvidence   = "SUPPORTING_EVIDENCE:"
)

const (
	defaultSeverity    = 5.0
	defaultConfidence  = 0.5
	defaultExplanation = "AI analysis completed"
	defaultEvidence    = "Standard event analysis"

	failedExplanation = "AI analysis failed, using default values"
	failedEvidence    = "Error in AI response parsing"
)

// responseFields holds the typed verdict fields parsed from raw model output.
type responseFields struct {
	Verdict            events.Verdict
	SeverityScore      float64
	ConfidenceScore    float64
	Explanation        string
	SupportingEvidence string
}

func (f responseFields) apply(e *events.AnomalyEvent) {
	e.Verdict = f.Verdict
	e.SeverityScore = f.SeverityScore
	e.ConfidenceScore = f.ConfidenceScore
	e.Explanation = f.Explanation
	e.SupportingEvidence = f.SupportingEvidence
}

func defaultFields() responseFields {
	return responseFields{
		Verdict:            events.VerdictNormal,
		SeverityScore:      defaultSeverity,
		ConfidenceScore:    defaultConfidence,
		Explanation:        defaultExplanation,
		SupportingEvidence: defaultEvidence,
	}
}

// parseResponse converts raw model output into typed fields. Every field is
// independently defaulted when absent or invalid, so the returned fields are
// always fully populated and in range. This never fails to its caller.
func parseResponse(raw string) (f responseFields) {
	f = defaultFields()
	defer func() {
		if r := recover(); r != nil {
			f = defaultFields()
			f.Explanation = failedExplanation
			f.SupportingEvidence = failedEvidence
		}
	}()

	// Last occurrence of a prefix wins.
	var verdictRaw, severityRaw, confidenceRaw, explainRaw, evidenceRaw *string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, prefixVerdict):
			verdictRaw = rest(line, prefixVerdict)
		case strings.HasPrefix(line, prefixSeverity):
			severityRaw = rest(line, prefixSeverity)
		case strings.HasPrefix(line, prefixConfidence):
			confidenceRaw = rest(line, prefixConfidence)
		case strings.HasPrefix(line, prefixExplain):
			explainRaw = rest(line, prefixExplain)
		case strings.HasPrefix(line, prefixEvidence):
			evidenceRaw = rest(line, prefixEvidence)
		}
	}

	if verdictRaw != nil {
		if v, ok := events.ParseVerdict(*verdictRaw); ok {
			f.Verdict = v
		}
	}
	if severityRaw != nil {
		if v, err := strconv.ParseFloat(*severityRaw, 64); err == nil {
			f.SeverityScore = clamp(v, 0.0, 10.0)
		}
	}
	if confidenceRaw != nil {
		if v, err := strconv.ParseFloat(*confidenceRaw, 64); err == nil {
			f.ConfidenceScore = clamp(v, 0.0, 1.0)
		}
	}
	if explainRaw != nil && *explainRaw != "" {
		f.Explanation = *explainRaw
	}
	if evidenceRaw != nil && *evidenceRaw != "" {
		f.SupportingEvidence = *evidenceRaw
	}
	return f
}

func rest(line, prefix string) *string {
	v := strings.TrimSpace(strings.TrimPrefix(line, prefix))
	return &v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

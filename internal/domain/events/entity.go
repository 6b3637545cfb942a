package events

import (
	"fmt"
	"strings"
	"time"
)

// Verdict enum
type Verdict string

const (
	VerdictNormal     Verdict = "NORMAL"
	VerdictSuspicious Verdict = "SUSPICIOUS"
	VerdictAnomalous  Verdict = "ANOMALOUS"
)

// ParseVerdict matches a verdict string case-insensitively.
func ParseVerdict(s string) (Verdict, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(VerdictNormal):
		return VerdictNormal, true
	case string(VerdictSuspicious):
		return VerdictSuspicious, true
	case string(VerdictAnomalous):
		return VerdictAnomalous, true
	default:
		return "", false
	}
}

// AnalysisRequest describes a single telemetry event submitted for analysis.
// Destination fields, process name and raw payload are optional.
type AnalysisRequest struct {
	EventID         string    `json:"event_id"`
	Timestamp       time.Time `json:"timestamp"`
	EventType       string    `json:"event_type"`
	SourceIP        string    `json:"source_ip"`
	DestinationIP   string    `json:"destination_ip,omitempty"`
	DestinationPort *int      `json:"destination_port,omitempty"`
	ProcessName     string    `json:"process_name,omitempty"`
	RawData         string    `json:"raw_data,omitempty"`
}

func (r AnalysisRequest) Validate() error {
	if strings.TrimSpace(r.EventID) == "" {
		return fmt.Errorf("event_id is required")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if strings.TrimSpace(r.EventType) == "" {
		return fmt.Errorf("event_type is required")
	}
	if strings.TrimSpace(r.SourceIP) == "" {
		return fmt.Errorf("source_ip is required")
	}
	return nil
}

// WithEventID clones the request under a different event id. Used by
// compare mode so per-backend runs don't collide on the same id.
func (r AnalysisRequest) WithEventID(id string) AnalysisRequest {
	out := r
	out.EventID = id
	return out
}

// Aggregate Root: AnomalyEvent, the analyzed and enriched record.
type AnomalyEvent struct {
	ID                 int64     `json:"id"`
	EventID            string    `json:"event_id"`
	Timestamp          time.Time `json:"timestamp"`
	EventType          string    `json:"event_type"`
	SourceIP           string    `json:"source_ip"`
	DestinationIP      string    `json:"destination_ip,omitempty"`
	DestinationPort    *int      `json:"destination_port,omitempty"`
	ProcessName        string    `json:"process_name,omitempty"`
	Verdict            Verdict   `json:"verdict"`
	SeverityScore      float64   `json:"severity_score"`
	ConfidenceScore    float64   `json:"confidence_score"`
	Explanation        string    `json:"explanation"`
	SupportingEvidence string    `json:"supporting_evidence"`
	CveData            string    `json:"cve_data,omitempty"`
	RawData            string    `json:"raw_data,omitempty"`
	AIModel            string    `json:"ai_model,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NewFromRequest builds the result shell carrying over all request fields.
func NewFromRequest(req AnalysisRequest, now time.Time) *AnomalyEvent {
	return &AnomalyEvent{
		EventID:         req.EventID,
		Timestamp:       req.Timestamp,
		EventType:       req.EventType,
		SourceIP:        req.SourceIP,
		DestinationIP:   req.DestinationIP,
		DestinationPort: req.DestinationPort,
		ProcessName:     req.ProcessName,
		RawData:         req.RawData,
		CreatedAt:       now,
	}
}

package baseline

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/netip"
	"strings"

	"github.com/christophervi/secainw-backend/internal/application"
	"github.com/christophervi/secainw-backend/internal/application/detection"
	"github.com/christophervi/secainw-backend/internal/domain/events"
)

const enrichUnavailable = "CVE enrichment unavailable"

// Common attack/backdoor ports.
var highRiskPorts = map[int]bool{
	1337: true, 31337: true, 12345: true, 54321: true,
	9999: true, 6666: true, 4444: true,
}

// Standard service ports.
var commonPorts = map[int]bool{
	80: true, 443: true, 22: true, 21: true, 25: true,
	53: true, 110: true, 143: true, 993: true, 995: true,
}

var suspiciousProcesses = []string{
	"cmd.exe", "powershell", "nc.exe", "netcat",
	"mimikatz", "psexec", "wmic", "rundll32",
}

var systemProcesses = []string{
	"svchost", "explorer", "winlogon", "csrss", "lsass", "smss",
}

// Service is the deterministic rule-based scorer, used as a complete
// substitute for model-backend analysis (and as the per-record scorer for
// bulk imports).
type Service struct {
	Repo     events.Repository
	Enricher detection.Enricher
	Clock    application.Clock

	// randFloat returns a value in [0,1) and is used for the jitter that
	// simulates analytic variability. Overridable in tests; the default
	// math/rand top-level source is safe for concurrent use.
	randFloat func() float64
}

func NewService(repo events.Repository, enricher detection.Enricher, clock application.Clock) *Service {
	return &Service{
		Repo:      repo,
		Enricher:  enricher,
		Clock:     clock,
		randFloat: rand.Float64,
	}
}

// Analyze scores the request with the rule engine, enriches and persists it.
func (s *Service) Analyze(ctx context.Context, req events.AnalysisRequest) (*events.AnomalyEvent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	log.Printf("analyzing event %s with rule engine", req.EventID)

	event := events.NewFromRequest(req, s.Clock.Now())
	s.scoreEvent(event)

	cveData, err := s.Enricher.Enrich(ctx, event)
	if err != nil {
		log.Printf("cve enrichment failed for event %s: %v", req.EventID, err)
		cveData = enrichUnavailable
	}
	event.CveData = cveData

	saved, err := s.Repo.Save(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("save event %s: %w", req.EventID, err)
	}
	return saved, nil
}

// scoreEvent accumulates severity from independent weighted rules, applies a
// small symmetric jitter (severity ±0.5, confidence ±0.1), clamps both scores
// and derives the verdict from the final severity.
func (s *Service) scoreEvent(e *events.AnomalyEvent) {
	severity := 0.0
	confidence := 0.7
	var explanation, evidence strings.Builder

	if e.DestinationPort != nil {
		port := *e.DestinationPort
		switch {
		case highRiskPorts[port]:
			severity += 3.0
			fmt.Fprintf(&explanation, "Connection to high-risk port %d. ", port)
			fmt.Fprintf(&evidence, "Destination port: %d; ", port)
		case commonPorts[port]:
			fmt.Fprintf(&explanation, "Connection to common service port %d. ", port)
			fmt.Fprintf(&evidence, "Standard port usage: %d; ", port)
		default:
			severity += 1.0
			fmt.Fprintf(&explanation, "Connection to uncommon port %d. ", port)
			fmt.Fprintf(&evidence, "Uncommon port: %d; ", port)
		}
	}

	// Bulk imports carry anonymized device names instead of addresses;
	// those skip the address rules rather than score as external.
	if src, ok := parseAddr(e.SourceIP); ok {
		if isPrivate(src) {
			explanation.WriteString("Internal network source. ")
			fmt.Fprintf(&evidence, "Private IP source: %s; ", e.SourceIP)
		} else {
			severity += 2.0
			explanation.WriteString("External network source detected. ")
			fmt.Fprintf(&evidence, "External IP source: %s; ", e.SourceIP)
		}
	}

	if dst, ok := parseAddr(e.DestinationIP); ok && !isPrivate(dst) {
		severity += 1.0
		explanation.WriteString("Outbound connection to external IP. ")
		fmt.Fprintf(&evidence, "External destination: %s; ", e.DestinationIP)
	}

	if e.ProcessName != "" {
		process := strings.ToLower(e.ProcessName)
		switch {
		case containsAny(process, suspiciousProcesses):
			severity += 4.0
			explanation.WriteString("Potentially suspicious process detected. ")
			fmt.Fprintf(&evidence, "Process: %s; ", e.ProcessName)
		case containsAny(process, systemProcesses):
			explanation.WriteString("System process activity. ")
			fmt.Fprintf(&evidence, "System process: %s; ", e.ProcessName)
		default:
			explanation.WriteString("User application activity. ")
			fmt.Fprintf(&evidence, "User process: %s; ", e.ProcessName)
		}
	}

	if e.EventType != "" {
		eventType := strings.ToLower(e.EventType)
		if strings.Contains(eventType, "execution") || strings.Contains(eventType, "process") {
			severity += 0.5
			explanation.WriteString("Process execution event. ")
			fmt.Fprintf(&evidence, "Event type: %s; ", e.EventType)
		} else if strings.Contains(eventType, "network") || strings.Contains(eventType, "connection") {
			explanation.WriteString("Network activity event. ")
			fmt.Fprintf(&evidence, "Network event: %s; ", e.EventType)
		}
	}

	// Jitter simulates analytic variability.
	severity += (s.randFloat() - 0.5) * 1.0
	confidence += (s.randFloat() - 0.5) * 0.2

	severity = clamp(severity, 0.0, 10.0)
	confidence = clamp(confidence, 0.0, 1.0)

	var verdict events.Verdict
	switch {
	case severity >= 7.0:
		verdict = events.VerdictAnomalous
		explanation.WriteString("High severity score indicates anomalous behavior.")
	case severity >= 4.0:
		verdict = events.VerdictSuspicious
		explanation.WriteString("Moderate severity score indicates suspicious activity.")
	default:
		verdict = events.VerdictNormal
		explanation.WriteString("Low severity score indicates normal behavior.")
	}

	e.Verdict = verdict
	e.SeverityScore = severity
	e.ConfidenceScore = confidence
	e.Explanation = strings.TrimSpace(explanation.String())
	e.SupportingEvidence = strings.TrimSpace(evidence.String())
}

func parseAddr(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(s)
	return addr, err == nil
}

// isPrivate reports whether the address is RFC1918 or loopback.
func isPrivate(addr netip.Addr) bool {
	return addr.IsPrivate() || addr.IsLoopback()
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
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

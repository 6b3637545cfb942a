package detection

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/christophervi/secainw-backend/internal/application"
	"github.com/christophervi/secainw-backend/internal/domain/ai"
	"github.com/christophervi/secainw-backend/internal/domain/events"
	"github.com/christophervi/secainw-backend/internal/domain/vector"
)

const promptTemplate = `You are a cybersecurity expert analyzing network and host events for anomaly detection.

Event Data:
- Event ID: %s
- Timestamp: %s
- Event Type: %s
- Source IP: %s
- Destination IP: %s
- Destination Port: %s
- Process Name: %s
- Raw Data: %s

Historical Context:
%s

Please analyze this event and provide:
1. VERDICT: ANOMALOUS, NORMAL, or SUSPICIOUS
2. SEVERITY_SCORE: A number between 0.0 and 10.0
3. CONFIDENCE_SCORE: A number between 0.0 and 1.0
4. EXPLANATION: A detailed explanation of your analysis
5. SUPPORTING_EVIDENCE: Key data points that influenced your decision

Format your response as:
VERDICT: [verdict]
SEVERITY_SCORE: [score]
CONFIDENCE_SCORE: [score]
EXPLANATION: [detailed explanation]
SUPPORTING_EVIDENCE: [evidence points]`

const (
	contextUnavailable = "Historical context unavailable."
	noSimilarEvents    = "No similar historical events found."
	enrichUnavailable  = "CVE enrichment unavailable"
)

// Enricher attaches vulnerability context to an analyzed event.
type Enricher interface {
	Enrich(ctx context.Context, e *events.AnomalyEvent) (string, error)
}

// Service implements the analysis use-cases: single-backend analysis and
// multi-backend comparison. Safe for concurrent use; each request gets its
// own result and no state is shared between invocations.
type Service struct {
	Repo     events.Repository
	History  vector.Store
	Enricher Enricher
	Clock    application.Clock

	// Backend slots. DeepSeek is the default when no key (or an unknown
	// key) is supplied.
	DeepSeek  ai.Backend
	Anthropic ai.Backend
	OpenAI    ai.Backend
}

// Analyze runs the full pipeline with the default backend.
func (s *Service) Analyze(ctx context.Context, req events.AnalysisRequest) (*events.AnomalyEvent, error) {
	return s.AnalyzeWithBackend(ctx, req, "")
}

// AnalyzeWithBackend runs the full pipeline: historical context lookup,
// prompt rendering, backend completion, response parsing, CVE enrichment,
// similarity indexing and persistence. Only the backend call is fatal;
// context lookup, enrichment and indexing degrade with fixed placeholders.
func (s *Service) AnalyzeWithBackend(ctx context.Context, req events.AnalysisRequest, backendKey string) (*events.AnomalyEvent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	backend := s.selectBackend(backendKey)
	log.Printf("analyzing event %s with model %s", req.EventID, backend.Name())

	event := events.NewFromRequest(req, s.Clock.Now())

	histContext := s.historicalContext(ctx, req)
	prompt := buildPrompt(req, histContext)

	raw, err := backend.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("analyze event %s: %w", req.EventID, err)
	}

	fields := parseResponse(raw)
	fields.apply(event)
	event.AIModel = backend.Name()

	cveData, err := s.Enricher.Enrich(ctx, event)
	if err != nil {
		log.Printf("cve enrichment failed for event %s: %v", req.EventID, err)
		cveData = enrichUnavailable
	}
	event.CveData = cveData

	s.indexEvent(ctx, event)

	saved, err := s.Repo.Save(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("save event %s: %w", req.EventID, err)
	}
	log.Printf("event analysis completed for %s using model %s", saved.EventID, backend.Name())
	return saved, nil
}

// CompareBackends analyzes the same event with every configured backend in
// fixed order (default first), appends a comparison summary to the primary
// result and re-persists it. Any per-backend failure degrades the whole
// comparison to a single default-backend analysis.
func (s *Service) CompareBackends(ctx context.Context, req events.AnalysisRequest) (*events.AnomalyEvent, error) {
	log.Printf("comparing models for event %s", req.EventID)

	primary, err := s.AnalyzeWithBackend(ctx, req, "deepseek")
	if err != nil {
		return s.fallbackSingle(ctx, req, err)
	}

	anthropicRes, err := s.AnalyzeWithBackend(ctx,
		req.WithEventID(req.EventID+"_anthropic_comparison"), "anthropic")
	if err != nil {
		return s.fallbackSingle(ctx, req, err)
	}

	openAIRes, err := s.AnalyzeWithBackend(ctx,
		req.WithEventID(req.EventID+"_openai_comparison"), "openai")
	if err != nil {
		return s.fallbackSingle(ctx, req, err)
	}

	summary := fmt.Sprintf(
		"Model Comparison:\n"+
			"DeepSeek (%s): Verdict=%s, Severity=%.2f, Confidence=%.2f\n"+
			"Anthropic (%s): Verdict=%s, Severity=%.2f, Confidence=%.2f\n"+
			"OpenAI (%s): Verdict=%s, Severity=%.2f, Confidence=%.2f\n"+
			"Primary Result: DeepSeek",
		primary.AIModel, primary.Verdict, primary.SeverityScore, primary.ConfidenceScore,
		anthropicRes.AIModel, anthropicRes.Verdict, anthropicRes.SeverityScore, anthropicRes.ConfidenceScore,
		openAIRes.AIModel, openAIRes.Verdict, openAIRes.SeverityScore, openAIRes.ConfidenceScore,
	)

	primary.Explanation = primary.Explanation + "\n\n" + summary
	saved, err := s.Repo.Save(ctx, primary)
	if err != nil {
		return nil, fmt.Errorf("save comparison for event %s: %w", req.EventID, err)
	}
	return saved, nil
}

func (s *Service) fallbackSingle(ctx context.Context, req events.AnalysisRequest, cause error) (*events.AnomalyEvent, error) {
	log.Printf("model comparison failed for event %s: %v, falling back to single analysis", req.EventID, cause)
	return s.Analyze(ctx, req)
}

// selectBackend resolves a caller-supplied key to a backend slot. Unknown
// keys resolve to the default backend on purpose; callers are not expected
// to know the full vocabulary.
func (s *Service) selectBackend(key string) ai.Backend {
	switch strings.ToLower(key) {
	case "openai", "gpt":
		return s.OpenAI
	case "anthropic", "claude":
		return s.Anthropic
	case "deepseek":
		return s.DeepSeek
	default:
		return s.DeepSeek
	}
}

// BackendNames lists the configured model identifiers keyed by selector slot.
func (s *Service) BackendNames() map[string]string {
	return map[string]string{
		"deepseek":  s.DeepSeek.Name(),
		"anthropic": s.Anthropic.Name(),
		"openai":    s.OpenAI.Name(),
	}
}

func (s *Service) historicalContext(ctx context.Context, req events.AnalysisRequest) string {
	query := fmt.Sprintf("Event: %s Source: %s Destination: %s Port: %s Process: %s",
		req.EventType,
		req.SourceIP,
		req.DestinationIP,
		portString(req.DestinationPort, ""),
		req.ProcessName,
	)

	similar, err := s.History.Query(ctx, query)
	if err != nil {
		log.Printf("failed to get historical context: %v", err)
		return contextUnavailable
	}
	if len(similar) == 0 {
		return noSimilarEvents
	}

	var b strings.Builder
	b.WriteString("Similar historical events:\n")
	for _, doc := range similar {
		b.WriteString("- ")
		b.WriteString(doc)
		b.WriteString("\n")
	}
	return b.String()
}

// indexEvent records a compact summary of the finished result for future
// similarity lookups. Best-effort: failures are logged and swallowed.
func (s *Service) indexEvent(ctx context.Context, e *events.AnomalyEvent) {
	content := fmt.Sprintf(
		"Event ID: %s, Type: %s, Source: %s, Destination: %s, Port: %s, Process: %s, Verdict: %s, Severity: %.2f, Model: %s",
		e.EventID,
		e.EventType,
		e.SourceIP,
		orNA(e.DestinationIP),
		portString(e.DestinationPort, "N/A"),
		orNA(e.ProcessName),
		e.Verdict,
		e.SeverityScore,
		orNA(e.AIModel),
	)

	meta := map[string]string{
		"eventId":   e.EventID,
		"timestamp": e.Timestamp.Format("2006-01-02T15:04:05"),
		"verdict":   string(e.Verdict),
		"aiModel":   orNA(e.AIModel),
	}
	if err := s.History.Index(ctx, content, meta); err != nil {
		log.Printf("failed to index event %s: %v", e.EventID, err)
	}
}

func buildPrompt(req events.AnalysisRequest, histContext string) string {
	return fmt.Sprintf(promptTemplate,
		req.EventID,
		req.Timestamp.Format("2006-01-02T15:04:05"),
		req.EventType,
		req.SourceIP,
		orNA(req.DestinationIP),
		portString(req.DestinationPort, "N/A"),
		orNA(req.ProcessName),
		orNA(req.RawData),
		histContext,
	)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func portString(p *int, absent string) string {
	if p == nil {
		return absent
	}
	return fmt.Sprintf("%d", *p)
}

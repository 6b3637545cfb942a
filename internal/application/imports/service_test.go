package imports

import (
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/christophervi/secainw-backend/internal/domain/events"
)

type countingScorer struct {
	mu   sync.Mutex
	seen []events.AnalysisRequest
}

func (s *countingScorer) Analyze(_ context.Context, req events.AnalysisRequest) (*events.AnomalyEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, req)
	return &events.AnomalyEvent{EventID: req.EventID}, nil
}

func (s *countingScorer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

type fakeStore struct {
	mu       sync.Mutex
	contents []string
}

func (s *fakeStore) Query(context.Context, string) ([]string, error) { return nil, nil }

func (s *fakeStore) Index(_ context.Context, text string, _ map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents = append(s.contents, text)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contents)
}

type fakeArchive struct {
	mu   sync.Mutex
	keys []string
}

func (a *fakeArchive) Upload(_ context.Context, _, key string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	return "http://minio.local/archive/" + key, nil
}

const netflowLine = "118781,86398,Comp348305,Comp370444,6,Port12597,22,32,30,5162,4900"

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseNetflowLine(t *testing.T) {
	req, ok := parseNetflowLine(netflowLine)
	if !ok {
		t.Fatal("parseNetflowLine rejected a valid record")
	}
	if !strings.HasPrefix(req.EventID, "netflow_") {
		t.Errorf("event id = %q, want netflow_ prefix", req.EventID)
	}
	if req.EventType != "network_connection" {
		t.Errorf("event type = %q", req.EventType)
	}
	if req.SourceIP != "Comp348305" || req.DestinationIP != "Comp370444" {
		t.Errorf("endpoints = %q -> %q", req.SourceIP, req.DestinationIP)
	}
	if req.DestinationPort == nil || *req.DestinationPort != 22 {
		t.Errorf("port = %v, want 22", req.DestinationPort)
	}
	if req.Timestamp != time.Unix(118781, 0).UTC() {
		t.Errorf("timestamp = %v", req.Timestamp)
	}
	if req.RawData != netflowLine {
		t.Errorf("raw data not preserved")
	}
}

func TestParseNetflowLineRejectsMalformed(t *testing.T) {
	for _, line := range []string{
		"too,few,fields",
		"notatime,86398,a,b,6,Port1,22,32,30,5162,4900",
	} {
		if _, ok := parseNetflowLine(line); ok {
			t.Errorf("parseNetflowLine accepted %q", line)
		}
	}
}

func TestParseNetflowLinePortPrefix(t *testing.T) {
	// LANL obfuscates some ports as "PortNNNN"; those don't parse as a
	// numeric destination port and are left unset.
	req, ok := parseNetflowLine("118781,86398,Comp1,Comp2,6,22,Port12597,32,30,5162,4900")
	if !ok {
		t.Fatal("parseNetflowLine rejected record")
	}
	if req.DestinationPort == nil || *req.DestinationPort != 12597 {
		t.Errorf("port = %v, want 12597 from Port prefix", req.DestinationPort)
	}
}

func TestParseWindowsLogLine(t *testing.T) {
	line := `{"UserName":"User624@Domain001","EventID":4688,"LogHost":"Comp649388","ProcessName":"Proc336015.exe","Time":1089}`
	req, ok := parseWindowsLogLine(line)
	if !ok {
		t.Fatal("parseWindowsLogLine rejected a valid record")
	}
	if !strings.HasPrefix(req.EventID, "winlog_4688_") {
		t.Errorf("event id = %q", req.EventID)
	}
	if req.EventType != "process_execution" {
		t.Errorf("event type = %q, want process_execution", req.EventType)
	}
	if req.SourceIP != "Comp649388" {
		t.Errorf("source = %q", req.SourceIP)
	}
	if req.ProcessName != "Proc336015.exe" {
		t.Errorf("process = %q", req.ProcessName)
	}
}

func TestParseWindowsLogLineEventTypes(t *testing.T) {
	for _, tt := range []struct {
		eventID int
		want    string
	}{
		{4688, "process_execution"},
		{4624, "authentication"},
		{4625, "authentication"},
		{4648, "authentication"},
		{1102, "windows_log"},
	} {
		line := `{"EventID":` + strconv.Itoa(tt.eventID) + `,"LogHost":"Comp1","Time":1}`
		req, ok := parseWindowsLogLine(line)
		if !ok {
			t.Fatalf("rejected event id %d", tt.eventID)
		}
		if req.EventType != tt.want {
			t.Errorf("event id %d mapped to %q, want %q", tt.eventID, req.EventType, tt.want)
		}
	}
}

func TestParseWindowsLogLineRejectsMalformed(t *testing.T) {
	for _, line := range []string{
		"not json",
		`{"EventID":4688,"Time":1}`, // missing LogHost
	} {
		if _, ok := parseWindowsLogLine(line); ok {
			t.Errorf("parseWindowsLogLine accepted %q", line)
		}
	}
}

func TestImportNetflow(t *testing.T) {
	var lines []string
	for i := 0; i < 25; i++ {
		lines = append(lines, netflowLine)
	}
	lines = append(lines, "", "malformed line")
	path := writeTempFile(t, "netflow.csv", strings.Join(lines, "\n"))

	scorer := &countingScorer{}
	archive := &fakeArchive{}
	history := &fakeStore{}
	svc := NewService(scorer, archive, history, 4)

	summary, err := svc.ImportNetflow(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportNetflow: %v", err)
	}
	if summary.Processed != 25 {
		t.Errorf("processed = %d, want 25", summary.Processed)
	}
	if scorer.count() != 25 {
		t.Errorf("scorer called %d times, want 25", scorer.count())
	}
	if summary.Filename != "netflow.csv" {
		t.Errorf("filename = %q", summary.Filename)
	}
	if summary.ArchiveURL != "http://minio.local/archive/imports/netflow/netflow.csv" {
		t.Errorf("archive url = %q", summary.ArchiveURL)
	}
	if history.count() != 25 {
		t.Errorf("indexed %d records, want 25", history.count())
	}

	status := svc.Status()
	if status.Processed != 25 || status.Total != 25 {
		t.Errorf("status = %+v, want 25/25", status)
	}
	if status.Processing {
		t.Error("status still processing after completion")
	}
	if status.Progress != 100 {
		t.Errorf("progress = %v, want 100", status.Progress)
	}
}

func TestImportNetflowGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netflow.csv.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	for i := 0; i < 3; i++ {
		gz.Write([]byte(netflowLine + "\n"))
	}
	gz.Close()
	f.Close()

	scorer := &countingScorer{}
	svc := NewService(scorer, nil, nil, 2)

	summary, err := svc.ImportNetflow(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportNetflow: %v", err)
	}
	if summary.Processed != 3 {
		t.Errorf("processed = %d, want 3", summary.Processed)
	}
	if summary.ArchiveURL != "" {
		t.Errorf("archive url set without an archive store: %q", summary.ArchiveURL)
	}
}

func TestImportWindowsLogs(t *testing.T) {
	content := strings.Join([]string{
		`{"EventID":4688,"LogHost":"Comp1","ProcessName":"a.exe","Time":1}`,
		`{"EventID":4624,"LogHost":"Comp2","Time":2}`,
		`not json at all`,
	}, "\n")
	path := writeTempFile(t, "wls.json", content)

	scorer := &countingScorer{}
	svc := NewService(scorer, nil, nil, 2)

	summary, err := svc.ImportWindowsLogs(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportWindowsLogs: %v", err)
	}
	if summary.Processed != 2 {
		t.Errorf("processed = %d, want 2", summary.Processed)
	}
}

func TestImportRespectsMaxRecords(t *testing.T) {
	var lines []string
	for i := 0; i < 50; i++ {
		lines = append(lines, netflowLine)
	}
	path := writeTempFile(t, "netflow.csv", strings.Join(lines, "\n"))

	scorer := &countingScorer{}
	svc := NewService(scorer, nil, nil, 4)
	svc.MaxRecords = 10

	summary, err := svc.ImportNetflow(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportNetflow: %v", err)
	}
	if summary.Processed != 10 {
		t.Errorf("processed = %d, want capped 10", summary.Processed)
	}
}

func TestImportIndexesScoredRecords(t *testing.T) {
	path := writeTempFile(t, "netflow.csv", netflowLine)

	history := &fakeStore{}
	svc := NewService(&countingScorer{}, nil, history, 1)

	if _, err := svc.ImportNetflow(context.Background(), path); err != nil {
		t.Fatalf("ImportNetflow: %v", err)
	}
	if history.count() != 1 {
		t.Fatalf("indexed %d records, want 1", history.count())
	}
	doc := history.contents[0]
	for _, want := range []string{"Event ID: netflow_", "Type: network_connection", "Source: Comp348305", "Port: 22"} {
		if !strings.Contains(doc, want) {
			t.Errorf("indexed document missing %q:\n%s", want, doc)
		}
	}
}

type failingScorer struct{}

func (failingScorer) Analyze(context.Context, events.AnalysisRequest) (*events.AnomalyEvent, error) {
	return nil, errAnalyze
}

var errAnalyze = errors.New("scoring failed")

func TestImportSkipsIndexingFailedRecords(t *testing.T) {
	path := writeTempFile(t, "netflow.csv", netflowLine)

	history := &fakeStore{}
	svc := NewService(failingScorer{}, nil, history, 1)

	if _, err := svc.ImportNetflow(context.Background(), path); err != nil {
		t.Fatalf("ImportNetflow: %v", err)
	}
	if history.count() != 0 {
		t.Errorf("indexed %d records for failed scoring, want 0", history.count())
	}
}

func TestImportMissingFile(t *testing.T) {
	svc := NewService(&countingScorer{}, nil, nil, 2)
	if _, err := svc.ImportNetflow(context.Background(), filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

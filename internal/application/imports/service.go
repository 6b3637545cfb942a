package imports

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/christophervi/secainw-backend/internal/domain/events"
	"github.com/christophervi/secainw-backend/internal/domain/vector"
)

const defaultMaxRecords = 10000

// Scorer analyzes one record. Bulk imports go through the rule engine, one
// call per record, with no ordering guarantee between records.
type Scorer interface {
	Analyze(ctx context.Context, req events.AnalysisRequest) (*events.AnomalyEvent, error)
}

// Archive stores the raw source file after a successful import.
type Archive interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// Summary reports the outcome of one import run.
type Summary struct {
	Processed  int       `json:"processed_events"`
	Filename   string    `json:"filename"`
	ImportedAt time.Time `json:"imported_at"`
	ArchiveURL string    `json:"archive_url,omitempty"`
}

// Status is a snapshot of import progress.
type Status struct {
	Processed  int64   `json:"processed_count"`
	Total      int64   `json:"total_count"`
	Processing bool    `json:"is_processing"`
	Progress   float64 `json:"progress"`
}

// Service imports LANL-style telemetry files: netflow CSV and Windows log
// JSON lines, plain or gzip. Records are scored in parallel by a bounded
// worker pool; progress is exposed through explicit atomic counters rather
// than ambient globals.
type Service struct {
	Scorer     Scorer
	Archive    Archive      // optional
	History    vector.Store // optional
	Workers    int
	MaxRecords int

	processed atomic.Int64
	total     atomic.Int64
}

func NewService(scorer Scorer, archive Archive, history vector.Store, workers int) *Service {
	if workers <= 0 {
		workers = 4
	}
	return &Service{
		Scorer:     scorer,
		Archive:    archive,
		History:    history,
		Workers:    workers,
		MaxRecords: defaultMaxRecords,
	}
}

// ImportNetflow parses a netflow CSV file and scores each record.
func (s *Service) ImportNetflow(ctx context.Context, path string) (Summary, error) {
	return s.importFile(ctx, path, "netflow", parseNetflowLine)
}

// ImportWindowsLogs parses a Windows log JSON-lines file and scores each record.
func (s *Service) ImportWindowsLogs(ctx context.Context, path string) (Summary, error) {
	return s.importFile(ctx, path, "windows-logs", parseWindowsLogLine)
}

// Status reports current progress for the poll endpoint.
func (s *Service) Status() Status {
	processed := s.processed.Load()
	total := s.total.Load()
	st := Status{
		Processed:  processed,
		Total:      total,
		Processing: processed < total,
	}
	if total > 0 {
		st.Progress = float64(processed) / float64(total) * 100
	}
	return st
}

// indexEvent records a compact summary of a scored record for future
// similarity lookups. Best-effort: failures are logged and swallowed.
func (s *Service) indexEvent(ctx context.Context, e *events.AnomalyEvent) {
	if s.History == nil {
		return
	}

	port := "N/A"
	if e.DestinationPort != nil {
		port = strconv.Itoa(*e.DestinationPort)
	}
	process := e.ProcessName
	if process == "" {
		process = "N/A"
	}
	destination := e.DestinationIP
	if destination == "" {
		destination = "N/A"
	}

	content := fmt.Sprintf(
		"Event ID: %s, Type: %s, Source: %s, Destination: %s, Port: %s, Process: %s, Verdict: %s, Severity: %.2f",
		e.EventID,
		e.EventType,
		e.SourceIP,
		destination,
		port,
		process,
		e.Verdict,
		e.SeverityScore,
	)
	meta := map[string]string{
		"eventId":   e.EventID,
		"timestamp": e.Timestamp.Format("2006-01-02T15:04:05"),
		"verdict":   string(e.Verdict),
	}
	if err := s.History.Index(ctx, content, meta); err != nil {
		log.Printf("failed to index imported record %s: %v", e.EventID, err)
	}
}

type lineParser func(line string) (events.AnalysisRequest, bool)

func (s *Service) importFile(ctx context.Context, path, kind string, parse lineParser) (Summary, error) {
	log.Printf("starting %s import from %s", kind, path)

	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return Summary{}, fmt.Errorf("open %s: %w", path, err)
		}
		defer gz.Close()
		reader = gz
	}

	maxRecords := s.MaxRecords
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}

	jobs := make(chan events.AnalysisRequest, s.Workers)
	var wg sync.WaitGroup
	for i := 0; i < s.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				e, err := s.Scorer.Analyze(ctx, req)
				if err != nil {
					log.Printf("failed to score imported record %s: %v", req.EventID, err)
				} else {
					s.indexEvent(ctx, e)
				}
				s.processed.Add(1)
			}
		}()
	}

	queued := 0
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() && queued < maxRecords {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		req, ok := parse(line)
		if !ok {
			continue
		}
		s.total.Add(1)
		queued++
		jobs <- req
	}
	close(jobs)
	wg.Wait()

	if err := scanner.Err(); err != nil {
		return Summary{}, fmt.Errorf("read %s: %w", path, err)
	}

	summary := Summary{
		Processed:  queued,
		Filename:   filepath.Base(path),
		ImportedAt: time.Now(),
	}

	// Archive the source file best-effort; import already succeeded.
	if s.Archive != nil {
		key := fmt.Sprintf("imports/%s/%s", kind, filepath.Base(path))
		url, err := s.Archive.Upload(ctx, path, key)
		if err != nil {
			log.Printf("failed to archive %s: %v", path, err)
		} else {
			summary.ArchiveURL = url
		}
	}

	log.Printf("completed %s import: %d records processed", kind, queued)
	return summary, nil
}

// parseNetflowLine parses one LANL netflow CSV record:
// time,duration,srcDevice,dstDevice,protocol,srcPort,dstPort,srcPackets,dstPackets,srcBytes,dstBytes
func parseNetflowLine(line string) (events.AnalysisRequest, bool) {
	parts := strings.Split(line, ",")
	if len(parts) < 11 {
		return events.AnalysisRequest{}, false
	}
	epoch, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		log.Printf("error parsing netflow line: bad time %q", parts[0])
		return events.AnalysisRequest{}, false
	}

	req := events.AnalysisRequest{
		EventID:       "netflow_" + uuid.New().String(),
		Timestamp:     time.Unix(epoch, 0).UTC(),
		EventType:     "network_connection",
		SourceIP:      parts[2],
		DestinationIP: parts[3],
		RawData:       line,
	}
	if port, err := strconv.Atoi(strings.TrimPrefix(parts[6], "Port")); err == nil {
		req.DestinationPort = &port
	}
	return req, true
}

// windowsLogRecord mirrors the LANL Windows host log JSON schema.
type windowsLogRecord struct {
	UserName    string `json:"UserName"`
	EventID     int    `json:"EventID"`
	LogHost     string `json:"LogHost"`
	ProcessName string `json:"ProcessName"`
	Time        int64  `json:"Time"`
	LogonType   int    `json:"LogonType"`
}

func parseWindowsLogLine(line string) (events.AnalysisRequest, bool) {
	var rec windowsLogRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		log.Printf("error parsing Windows log line: %v", err)
		return events.AnalysisRequest{}, false
	}
	if rec.LogHost == "" {
		return events.AnalysisRequest{}, false
	}

	eventType := "windows_log"
	switch rec.EventID {
	case 4688:
		eventType = "process_execution"
	case 4624, 4625, 4648:
		eventType = "authentication"
	}

	return events.AnalysisRequest{
		EventID:     fmt.Sprintf("winlog_%d_%s", rec.EventID, uuid.New().String()),
		Timestamp:   time.Unix(rec.Time, 0).UTC(),
		EventType:   eventType,
		SourceIP:    rec.LogHost,
		ProcessName: rec.ProcessName,
		RawData:     line,
	}, true
}

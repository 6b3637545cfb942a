package enrichment

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/christophervi/secainw-backend/internal/domain/events"
	"github.com/christophervi/secainw-backend/internal/domain/vuln"
)

// maxSearchTerms caps the number of live feed lookups per event to stay
// under the NVD rate limit.
const maxSearchTerms = 3

// Process-name substrings mapped to a search term, checked in order; the
// first hit wins per field.
var processTerms = []struct{ substr, term string }{
	{"java", "java"},
	{"apache", "apache"},
	{"httpd", "apache"},
	{"nginx", "nginx"},
	{"mysql", "mysql"},
	{"postgres", "postgresql"},
	{"ssh", "openssh"},
	{"powershell", "powershell"},
	{"cmd", "windows command"},
	{"w3wp.exe", "w3wp.exe"},
}

var portTerms = map[int]string{
	80: "http server", 8080: "http server", 8000: "http server",
	443: "https server", 8443: "https server",
	22: "ssh", 21: "ftp", 23: "telnet",
	25: "smtp", 587: "smtp",
	53: "dns", 110: "pop3", 143: "imap",
	3306: "mysql", 5432: "postgresql",
	1521: "oracle", 1433: "mssql",
	3389: "rdp", 5900: "vnc",
}

// Term to CPE 2.3 identifier for the live lookup path. Terms without a
// mapping are skipped for the live path but still hit the canned table.
var cpeNames = map[string]string{
	"apache":             "cpe:2.3:a:apache:http_server:*:*:*:*:*:*:*:*",
	"http server":        "cpe:2.3:a:apache:http_server:*:*:*:*:*:*:*:*",
	"mysql":              "cpe:2.3:a:oracle:mysql:*:*:*:*:*:*:*:*",
	"java":               "cpe:2.3:a:oracle:jre:*:*:*:*:*:*:*:*",
	"openssh":            "cpe:2.3:a:openbsd:openssh:*:*:*:*:*:*:*:*",
	"ssh":                "cpe:2.3:a:openbsd:openssh:*:*:*:*:*:*:*:*",
	"nginx":              "cpe:2.3:a:f5:nginx:*:*:*:*:*:*:*:*",
	"powershell":         "cpe:2.3:a:microsoft:powershell:*:*:*:*:*:*:*:*",
	"w3wp.exe":           "cpe:2.3:a:microsoft:exchange_server:2016:*:*:*:*:*:*:*",
	"microsoft exchange": "cpe:2.3:a:microsoft:exchange_server:2016:*:*:*:*:*:*:*",
}

// Canned advisories for well-known terms, used when the live path yields
// nothing (feed down, no mapping, empty responses).
var cannedAdvisories = map[string]string{
	"java": "CVE-2023-22081: Oracle Java SE vulnerability allowing remote code execution. " +
		"CVE-2023-22049: Oracle Java SE vulnerability in Hotspot component.",
	"apache": "CVE-2023-44487: Apache HTTP Server HTTP/2 Rapid Reset vulnerability. " +
		"CVE-2023-38545: Apache HTTP Server mod_http2 vulnerability.",
	"nginx": "CVE-2023-44487: Nginx HTTP/2 implementation vulnerability. " +
		"CVE-2023-4807: Nginx HTTP/2 stream handling vulnerability.",
	"mysql": "CVE-2023-22084: MySQL Server vulnerability in InnoDB component. " +
		"CVE-2023-22092: MySQL Server vulnerability in Server: Optimizer component.",
	"postgresql": "CVE-2023-39417: PostgreSQL extension script vulnerability. " +
		"CVE-2023-39418: PostgreSQL MERGE privilege escalation vulnerability.",
	"ssh": "CVE-2023-38408: OpenSSH ssh-agent vulnerability allowing remote code execution. " +
		"CVE-2023-28531: OpenSSH before 9.3 vulnerability.",
	"openssh": "CVE-2023-38408: OpenSSH ssh-agent vulnerability allowing remote code execution. " +
		"CVE-2023-28531: OpenSSH before 9.3 vulnerability.",
	"powershell": "CVE-2023-36884: Windows PowerShell remote code execution vulnerability. " +
		"CVE-2023-36033: Windows PowerShell elevation of privilege vulnerability.",
	"http server": "CVE-2023-44487: HTTP/2 Rapid Reset attack vulnerability affecting multiple implementations. " +
		"CVE-2023-4807: HTTP/2 stream handling vulnerabilities.",
	"https server": "CVE-2023-44487: HTTP/2 Rapid Reset attack vulnerability affecting multiple implementations. " +
		"CVE-2023-4807: HTTP/2 stream handling vulnerabilities.",
	"rdp": "CVE-2023-21708: Remote Desktop Protocol vulnerability allowing remote code execution. " +
		"CVE-2023-23397: Microsoft Outlook elevation of privilege vulnerability.",
	"dns": "CVE-2023-50387: DNSSEC validation vulnerability (KeyTrap). " +
		"CVE-2023-50868: NSEC3 closest encloser proof vulnerability.",
	"smtp": "CVE-2023-51765: Sendmail vulnerability allowing local privilege escalation. " +
		"CVE-2023-4863: SMTP server buffer overflow vulnerability.",
}

// Service maps event attributes to software identifiers, queries the live
// vulnerability feed and falls back to the canned table, then to a
// synthesized generic advisory.
type Service struct {
	Feed vuln.Feed
}

func NewService(feed vuln.Feed) *Service {
	return &Service{Feed: feed}
}

// Enrich returns HTML-formatted advisory text for the analyzed event. The
// live path is tried per term and each failure is swallowed; the result is
// never empty.
func (s *Service) Enrich(ctx context.Context, e *events.AnomalyEvent) (string, error) {
	log.Printf("enriching event %s with CVE data", e.EventID)

	terms := extractSearchTerms(e)
	var b strings.Builder
	liveDataFound := false

	for _, term := range terms {
		cpeName, ok := cpeNames[term]
		if !ok {
			continue
		}
		advisories, err := s.Feed.Lookup(ctx, cpeName)
		if err != nil {
			log.Printf("live CVE lookup failed for %q: %v", cpeName, err)
			continue
		}
		if len(advisories) > 0 {
			b.WriteString(formatAdvisories(advisories))
			liveDataFound = true
		}
	}

	if !liveDataFound {
		log.Printf("no live CVE data for event %s, falling back to canned advisories", e.EventID)
		for _, term := range terms {
			if canned, ok := cannedAdvisories[term]; ok {
				b.WriteString(canned)
				b.WriteString(" ")
			}
		}
	}

	data := strings.TrimSpace(b.String())
	if data == "" {
		return genericAdvisory(e), nil
	}
	return data, nil
}

// extractSearchTerms pulls up to maxSearchTerms distinct terms from the
// process name, destination port and event type, in that order.
func extractSearchTerms(e *events.AnomalyEvent) []string {
	var terms []string

	if e.ProcessName != "" {
		process := strings.ToLower(e.ProcessName)
		for _, pt := range processTerms {
			if strings.Contains(process, pt.substr) {
				terms = append(terms, pt.term)
				break
			}
		}
	}

	if e.DestinationPort != nil {
		if term, ok := portTerms[*e.DestinationPort]; ok {
			terms = append(terms, term)
		}
	}

	if e.EventType != "" {
		eventType := strings.ToLower(e.EventType)
		if strings.Contains(eventType, "network") || strings.Contains(eventType, "connection") {
			terms = append(terms, "network")
		} else if strings.Contains(eventType, "process") || strings.Contains(eventType, "execution") {
			terms = append(terms, "process execution")
		} else if strings.Contains(eventType, "file") || strings.Contains(eventType, "access") {
			terms = append(terms, "file access")
		}
	}

	seen := make(map[string]bool, len(terms))
	var out []string
	for _, t := range terms {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == maxSearchTerms {
			break
		}
	}
	return out
}

func formatAdvisories(advisories []vuln.Advisory) string {
	var b strings.Builder
	b.WriteString("<ul>")
	for _, a := range advisories {
		severity, score, version := "N/A", 0.0, "N/A"
		if s, ok := a.BestScoring(); ok {
			severity, score, version = s.Severity, s.Score, "v"+s.Version
		}
		b.WriteString("<li>")
		fmt.Fprintf(&b, "<b>%s</b>", a.ID)
		fmt.Fprintf(&b, " [CVSS %s Severity: %s, Score: %g]<br/>", version, severity, score)
		b.WriteString(a.Description())
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}

func genericAdvisory(e *events.AnomalyEvent) string {
	var b strings.Builder
	b.WriteString("CVE enrichment completed with limited data. ")
	if e.DestinationPort != nil {
		fmt.Fprintf(&b, "Port %d services should be monitored for known vulnerabilities. ", *e.DestinationPort)
	}
	if e.ProcessName != "" {
		fmt.Fprintf(&b, "Process '%s' should be checked against latest security advisories. ", e.ProcessName)
	}
	b.WriteString("Recommend regular vulnerability scanning and patch management.")
	return b.String()
}

package nvd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const sampleResponse = `{
  "vulnerabilities": [
    {
      "cve": {
        "id": "CVE-2023-44487",
        "descriptions": [
          {"lang": "es", "value": "descripción en español"},
          {"lang": "en", "value": "The HTTP/2 protocol allows a denial of service."}
        ],
        "metrics": {
          "cvssMetricV31": [
            {"cvssData": {"baseScore": 7.5, "baseSeverity": "HIGH"}}
          ],
          "cvssMetricV2": [
            {"baseSeverity": "MEDIUM", "cvssData": {"baseScore": 5.0}}
          ]
        }
      }
    },
    {
      "cve": {
        "id": "CVE-2020-0001",
        "descriptions": [
          {"lang": "en", "value": "Legacy flaw scored only under CVSS v2."}
        ],
        "metrics": {
          "cvssMetricV2": [
            {"baseSeverity": "LOW", "cvssData": {"baseScore": 2.1}}
          ]
        }
      }
    }
  ]
}`

func TestLookup(t *testing.T) {
	const cpe = "cpe:2.3:a:f5:nginx:*:*:*:*:*:*:*:*"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("cpeName"); got != cpe {
			t.Errorf("cpeName = %q, want %q", got, cpe)
		}
		if got := r.Header.Get("apiKey"); got != "test-key" {
			t.Errorf("apiKey header = %q, want test-key", got)
		}
		if got := r.Header.Get("User-Agent"); got == "" {
			t.Error("User-Agent header not set")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	advisories, err := client.Lookup(context.Background(), cpe)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(advisories) != 2 {
		t.Fatalf("got %d advisories, want 2", len(advisories))
	}

	first := advisories[0]
	if first.ID != "CVE-2023-44487" {
		t.Errorf("id = %q", first.ID)
	}
	if got := first.Description(); got != "The HTTP/2 protocol allows a denial of service." {
		t.Errorf("description = %q", got)
	}
	best, ok := first.BestScoring()
	if !ok {
		t.Fatal("no scoring found")
	}
	if best.Version != "3.1" || best.Severity != "HIGH" || best.Score != 7.5 {
		t.Errorf("best scoring = %+v, want v3.1 HIGH 7.5", best)
	}

	// v2-only record takes the metric-level severity label.
	second := advisories[1]
	best, ok = second.BestScoring()
	if !ok {
		t.Fatal("no scoring on v2-only advisory")
	}
	if best.Version != "2.0" || best.Severity != "LOW" || best.Score != 2.1 {
		t.Errorf("v2 scoring = %+v, want v2.0 LOW 2.1", best)
	}
}

func TestLookupOmitsAPIKeyHeaderWhenUnset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Apikey"]; ok {
			t.Error("apiKey header sent without a configured key")
		}
		w.Write([]byte(`{"vulnerabilities": []}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	advisories, err := client.Lookup(context.Background(), "cpe:2.3:a:oracle:mysql:*:*:*:*:*:*:*:*")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(advisories) != 0 {
		t.Errorf("got %d advisories, want 0", len(advisories))
	}
}

func TestLookupNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	if _, err := client.Lookup(context.Background(), "cpe:2.3:a:x:y:*:*:*:*:*:*:*:*"); err == nil {
		t.Fatal("expected error on 403 response")
	}
}

func TestNewClientDefaultBaseURL(t *testing.T) {
	client := NewClient("", "")
	if client.baseURL != defaultBaseURL {
		t.Errorf("baseURL = %q, want %q", client.baseURL, defaultBaseURL)
	}
}

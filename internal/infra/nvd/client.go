package nvd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/christophervi/secainw-backend/internal/domain/vuln"
)

const defaultBaseURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"

// Client queries the NVD CVE 2.0 REST API by CPE name.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type nvdResponse struct {
	Vulnerabilities []struct {
		Cve struct {
			ID           string `json:"id"`
			Descriptions []struct {
				Lang  string `json:"lang"`
				Value string `json:"value"`
			} `json:"descriptions"`
			Metrics struct {
				CvssMetricV31 []nvdMetric `json:"cvssMetricV31"`
				CvssMetricV30 []nvdMetric `json:"cvssMetricV30"`
				CvssMetricV2  []nvdMetric `json:"cvssMetricV2"`
			} `json:"metrics"`
		} `json:"cve"`
	} `json:"vulnerabilities"`
}

type nvdMetric struct {
	BaseSeverity string `json:"baseSeverity"`
	CvssData     struct {
		BaseScore    float64 `json:"baseScore"`
		BaseSeverity string  `json:"baseSeverity"`
	} `json:"cvssData"`
}

// Lookup fetches advisories matching a CPE 2.3 identifier.
func (c *Client) Lookup(ctx context.Context, cpeName string) ([]vuln.Advisory, error) {
	endpoint := c.baseURL + "?cpeName=" + url.QueryEscape(cpeName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "secainw-backend/1.0")
	if c.apiKey != "" {
		req.Header.Set("apiKey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nvd request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nvd request: status %d", resp.StatusCode)
	}

	var result nvdResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode nvd response: %w", err)
	}

	advisories := make([]vuln.Advisory, 0, len(result.Vulnerabilities))
	for _, v := range result.Vulnerabilities {
		a := vuln.Advisory{ID: v.Cve.ID}
		for _, d := range v.Cve.Descriptions {
			a.Descriptions = append(a.Descriptions, vuln.Description{Lang: d.Lang, Value: d.Value})
		}
		a.Scorings = appendScorings(a.Scorings, "3.1", v.Cve.Metrics.CvssMetricV31)
		a.Scorings = appendScorings(a.Scorings, "3.0", v.Cve.Metrics.CvssMetricV30)
		a.Scorings = appendScorings(a.Scorings, "2.0", v.Cve.Metrics.CvssMetricV2)
		advisories = append(advisories, a)
	}
	return advisories, nil
}

func appendScorings(dst []vuln.Scoring, version string, metrics []nvdMetric) []vuln.Scoring {
	if len(metrics) == 0 {
		return dst
	}
	m := metrics[0]
	severity := m.CvssData.BaseSeverity
	if severity == "" {
		// v2 carries the label on the metric, not cvssData.
		severity = m.BaseSeverity
	}
	if severity == "" {
		severity = "N/A"
	}
	return append(dst, vuln.Scoring{
		Version:  version,
		Severity: severity,
		Score:    m.CvssData.BaseScore,
	})
}

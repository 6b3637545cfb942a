package vuln

import (
	"context"
	"strings"
)

// Description is one locale variant of an advisory text.
type Description struct {
	Lang  string
	Value string
}

// Scoring is one CVSS entry attached to an advisory.
type Scoring struct {
	Version  string // "3.1", "3.0", "2.0"
	Severity string
	Score    float64
}

// Advisory is a single vulnerability record from a feed.
type Advisory struct {
	ID           string
	Descriptions []Description
	Scorings     []Scoring
}

// Feed port (interface for a live vulnerability lookup)
type Feed interface {
	Lookup(ctx context.Context, cpeName string) ([]Advisory, error)
}

// Description prefers the English variant, falling back to the first one.
func (a Advisory) Description() string {
	for _, d := range a.Descriptions {
		if strings.EqualFold(d.Lang, "en") {
			return d.Value
		}
	}
	if len(a.Descriptions) > 0 {
		return a.Descriptions[0].Value
	}
	return "No description available."
}

// cvssPriority orders scoring schemes newest-first.
var cvssPriority = []string{"3.1", "3.0", "2.0"}

// BestScoring picks the highest-priority CVSS entry available.
func (a Advisory) BestScoring() (Scoring, bool) {
	for _, v := range cvssPriority {
		for _, s := range a.Scorings {
			if s.Version == v {
				return s, true
			}
		}
	}
	return Scoring{}, false
}

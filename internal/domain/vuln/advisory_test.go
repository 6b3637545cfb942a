package vuln

import "testing"

func TestDescriptionPrefersEnglish(t *testing.T) {
	a := Advisory{Descriptions: []Description{
		{Lang: "fr", Value: "texte"},
		{Lang: "EN", Value: "english text"},
	}}
	if got := a.Description(); got != "english text" {
		t.Errorf("Description() = %q", got)
	}
}

func TestDescriptionFallsBackToFirst(t *testing.T) {
	a := Advisory{Descriptions: []Description{{Lang: "fr", Value: "texte"}}}
	if got := a.Description(); got != "texte" {
		t.Errorf("Description() = %q", got)
	}
	if got := (Advisory{}).Description(); got != "No description available." {
		t.Errorf("empty Description() = %q", got)
	}
}

func TestBestScoringPriority(t *testing.T) {
	a := Advisory{Scorings: []Scoring{
		{Version: "2.0", Severity: "MEDIUM", Score: 5.0},
		{Version: "3.0", Severity: "HIGH", Score: 7.0},
		{Version: "3.1", Severity: "HIGH", Score: 7.5},
	}}
	best, ok := a.BestScoring()
	if !ok || best.Version != "3.1" {
		t.Errorf("BestScoring() = %+v, %v", best, ok)
	}

	a.Scorings = a.Scorings[:2]
	best, ok = a.BestScoring()
	if !ok || best.Version != "3.0" {
		t.Errorf("BestScoring() without v3.1 = %+v, %v", best, ok)
	}

	if _, ok := (Advisory{}).BestScoring(); ok {
		t.Error("BestScoring() on empty advisory reported ok")
	}
}

func TestBestScoringUnknownVersionNotOK(t *testing.T) {
	a := Advisory{Scorings: []Scoring{{Version: "4.0", Severity: "HIGH", Score: 9.0}}}
	if _, ok := a.BestScoring(); ok {
		t.Error("BestScoring() reported ok for a version outside the known schemes")
	}
}

package pipelineworker

import (
	"math"
	"testing"
)

func TestCredibilityTiers(t *testing.T) {
	cases := []struct {
		doc  Document
		want float64
	}{
		{Document{Source: "journal"}, 0.9},
		{Document{Source: "conference"}, 0.8},
		{Document{Source: "book"}, 0.7},
		{Document{Source: "preprint"}, 0.6},
		{Document{Source: "web"}, 0.4},
		{Document{Source: "newsletter"}, 0.3},
	}
	for _, tc := range cases {
		if got := Credibility(tc.doc); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("Credibility(%s) = %v, want %v", tc.doc.Source, got, tc.want)
		}
	}
}

func TestCredibilityCitationBoost(t *testing.T) {
	// log1p(10)/20 is under the cap.
	doc := Document{Source: "web", CitedBy: 10}
	want := 0.4 + math.Log1p(10)/20
	if got := Credibility(doc); math.Abs(got-want) > 1e-9 {
		t.Fatalf("Credibility = %v, want %v", got, want)
	}

	// Heavily cited work hits the 0.2 cap.
	doc = Document{Source: "web", CitedBy: 100000}
	if got := Credibility(doc); math.Abs(got-0.6) > 1e-9 {
		t.Fatalf("capped Credibility = %v, want 0.6", got)
	}

	// The sum clamps to 1.
	doc = Document{Source: "journal", CitedBy: 100000}
	if got := Credibility(doc); got != 1 {
		t.Fatalf("clamped Credibility = %v, want 1", got)
	}
}

func TestScoreEmptyBatch(t *testing.T) {
	r := Score(nil)
	if r.Score != 0 || r.Credibility != 0 || r.Consistency != 0 || r.Coverage != 0 {
		t.Fatalf("empty batch report = %+v, want zeros", r)
	}
}

func TestScoreSingleDocument(t *testing.T) {
	doc := Document{Source: "journal"}
	r := Score([]Document{doc})

	if r.Consistency != 1 {
		t.Fatalf("consistency = %v, want 1 for a single document", r.Consistency)
	}
	if math.Abs(r.Coverage-0.1) > 1e-9 {
		t.Fatalf("coverage = %v, want 0.1", r.Coverage)
	}
	want := 0.5*0.9 + 0.3*1 + 0.2*0.1
	if math.Abs(r.Score-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", r.Score, want)
	}
}

func TestScoreMixedBatch(t *testing.T) {
	batch := []Document{
		{Source: "journal"},
		{Source: "web"},
	}
	r := Score(batch)

	mean := (0.9 + 0.4) / 2
	stddev := 0.25 // credibilities 0.9 and 0.4, half-spread
	if math.Abs(r.Credibility-mean) > 1e-9 {
		t.Fatalf("credibility = %v, want %v", r.Credibility, mean)
	}
	if math.Abs(r.Consistency-(1-stddev)) > 1e-9 {
		t.Fatalf("consistency = %v, want %v", r.Consistency, 1-stddev)
	}
	if math.Abs(r.Coverage-0.2) > 1e-9 {
		t.Fatalf("coverage = %v, want 0.2", r.Coverage)
	}

	want := 0.5*mean + 0.3*(1-stddev) + 0.2*0.2
	if math.Abs(r.Score-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", r.Score, want)
	}
}

func TestScoreUniformHighBatchPassesThreshold(t *testing.T) {
	batch := make([]Document, 10)
	for i := range batch {
		batch[i] = Document{Source: "journal", CitedBy: 1000}
	}
	r := Score(batch)
	// cred 1.0 across the board, full coverage.
	if r.Score < MinValidationScore {
		t.Fatalf("score = %v, want >= %v", r.Score, MinValidationScore)
	}
	if r.Score != 1 {
		t.Fatalf("score = %v, want exactly 1", r.Score)
	}
}

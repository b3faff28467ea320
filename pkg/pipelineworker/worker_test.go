package pipelineworker

import (
	"context"
	"errors"
	"testing"

	"github.com/okanri/machina/pkg/api"
)

func TestGraphIsValid(t *testing.T) {
	if err := Graph().Validate(); err != nil {
		t.Fatalf("graph invalid: %v", err)
	}
	if err := DefaultConfig("p1").Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestMemProviderSearch(t *testing.T) {
	p := NewMemProvider()
	ctx := context.Background()

	all, err := p.Search(ctx, "*", 0)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("corpus size = %d, want 6", len(all))
	}

	some, err := p.Search(ctx, "backoff", 0)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(some) != 1 || some[0].ID != "doc-4" {
		t.Fatalf("matches = %+v, want just doc-4", some)
	}

	limited, err := p.Search(ctx, "*", 2)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limited = %d, want 2", len(limited))
	}

	if _, err := p.Search(ctx, "", 0); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestPipelineStageTasks(t *testing.T) {
	w := New()
	ctx := context.Background()

	out, err := w.PerformTask(ctx, api.TaskDefinition{
		ID:      "t-search",
		Type:    TaskSearch,
		Payload: SearchRequest{Query: "*"},
	}, nil)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	search := out.(SearchReport)
	if len(search.Documents) != 6 {
		t.Fatalf("documents = %d, want 6", len(search.Documents))
	}

	out, err = w.PerformTask(ctx, api.TaskDefinition{ID: "t-analyze", Type: TaskAnalyze}, nil)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	analysis := out.(AnalysisReport)
	if len(analysis.Findings) != 6 {
		t.Fatalf("findings = %d, want 6", len(analysis.Findings))
	}
	for _, f := range analysis.Findings {
		if f.Credibility <= 0 || f.Credibility > 1 {
			t.Fatalf("finding credibility out of range: %+v", f)
		}
	}

	out, err = w.PerformTask(ctx, api.TaskDefinition{ID: "t-synth", Type: TaskSynthesize}, nil)
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if out.(SynthesisReport).Findings != 6 {
		t.Fatalf("synthesis = %+v", out)
	}

	out, err = w.PerformTask(ctx, api.TaskDefinition{ID: "t-validate", Type: TaskValidate}, nil)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	validation := out.(ValidationReport)
	if validation.Score <= 0 || validation.Score > 1 {
		t.Fatalf("validation = %+v", validation)
	}
	if w.LastScore() != validation.Score {
		t.Fatal("LastScore must reflect the validation report")
	}

	out, err = w.PerformTask(ctx, api.TaskDefinition{ID: "t-publish", Type: TaskPublish, Payload: "Survey of Worker Patterns"}, nil)
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	publish := out.(PublishReport)
	if publish.Title != "Survey of Worker Patterns" || publish.Findings != 6 {
		t.Fatalf("publish = %+v", publish)
	}
	if w.Published() != 1 {
		t.Fatalf("published = %d, want 1", w.Published())
	}

	// Publishing closes the working set.
	if w.ResourceUsage()["batch_documents"] != 0 {
		t.Fatal("publish must clear the batch")
	}
}

func TestStageTasksRequireUpstreamOutput(t *testing.T) {
	w := New()
	ctx := context.Background()

	if _, err := w.PerformTask(ctx, api.TaskDefinition{ID: "t1", Type: TaskAnalyze}, nil); err == nil {
		t.Fatal("analyze without a batch must fail")
	}
	if _, err := w.PerformTask(ctx, api.TaskDefinition{ID: "t2", Type: TaskSynthesize}, nil); err == nil {
		t.Fatal("synthesize without findings must fail")
	}
	if _, err := w.PerformTask(ctx, api.TaskDefinition{ID: "t3", Type: TaskValidate}, nil); err == nil {
		t.Fatal("validate without a synthesis must fail")
	}
}

func TestGuardsGateStageProgression(t *testing.T) {
	w := New()
	rules := make(map[string]api.StateTransitionRule)
	for _, r := range w.TransitionRules() {
		rules[r.Trigger] = r
	}

	if rules[TriggerSearchComplete].Guard(nil) {
		t.Fatal("searchComplete must be gated on a non-empty batch")
	}
	if rules[TriggerAnalysisComplete].Guard(nil) {
		t.Fatal("analysisComplete must be gated on findings")
	}

	ctx := context.Background()
	if _, err := w.PerformTask(ctx, api.TaskDefinition{ID: "t1", Type: TaskSearch, Payload: SearchRequest{Query: "*"}}, nil); err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !rules[TriggerSearchComplete].Guard(nil) {
		t.Fatal("searchComplete must pass once the batch is populated")
	}

	// validationComplete reads the live score, with call-context override.
	guard := rules[TriggerValidationComplete].Guard
	if guard(map[string]any{}) {
		t.Fatal("validationComplete must reject a zero score")
	}
	if !guard(map[string]any{"score": 0.95}) {
		t.Fatal("call-context score must override")
	}
	if guard(map[string]any{"score": 0.5}) {
		t.Fatal("sub-threshold call-context score must reject")
	}
}

func TestRecoveryClearsPoisonedStage(t *testing.T) {
	w := New()
	ctx := context.Background()

	if _, err := w.PerformTask(ctx, api.TaskDefinition{ID: "t1", Type: TaskSearch, Payload: SearchRequest{Query: "*"}}, nil); err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if _, err := w.PerformTask(ctx, api.TaskDefinition{ID: "t2", Type: TaskAnalyze}, nil); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	if err := w.PerformRecovery(ctx, errors.New("analysis produced contradictions")); err != nil {
		t.Fatalf("recovery failed: %v", err)
	}
	u := w.ResourceUsage()
	if u["findings"] != 0 {
		t.Fatalf("findings after analysis recovery = %v, want 0", u["findings"])
	}
	if u["batch_documents"] == 0 {
		t.Fatal("analysis recovery must keep the search batch")
	}

	if err := w.PerformRecovery(ctx, errors.New("search backend unavailable")); err != nil {
		t.Fatalf("recovery failed: %v", err)
	}
	if w.ResourceUsage()["batch_documents"] != 0 {
		t.Fatal("search recovery must clear the batch")
	}
}

func TestCitations(t *testing.T) {
	w := New()
	ctx := context.Background()

	if _, err := w.PerformTask(ctx, api.TaskDefinition{ID: "t1", Type: TaskSearch, Payload: SearchRequest{Query: "*", Limit: 2}}, nil); err != nil {
		t.Fatalf("search failed: %v", err)
	}
	out, err := w.PerformTask(ctx, api.TaskDefinition{ID: "t2", Type: TaskCite}, nil)
	if err != nil {
		t.Fatalf("cite failed: %v", err)
	}
	cites := out.(CitationReport)
	if len(cites.Citations) != 2 {
		t.Fatalf("citations = %d, want 2", len(cites.Citations))
	}
}

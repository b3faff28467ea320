// Package pipelineworker is a reference machina domain: a research
// pipeline that moves work through search, analysis, synthesis,
// validation, and publishing stages. Stage progression is explicit:
// every stage state is active-typed, so tasks never auto-advance the
// graph; the pipeline fires its own stage-complete triggers.
package pipelineworker

import (
	"context"
	"encoding/gob"
	"fmt"
	"strings"
	"sync"

	"github.com/okanri/machina/pkg/api"
)

// Payload types must be registered for durable (gob-encoded) queues.
func init() {
	gob.Register(SearchRequest{})
	gob.Register(Document{})
	gob.Register(SearchReport{})
	gob.Register(AnalysisReport{})
	gob.Register(SynthesisReport{})
	gob.Register(ValidationReport{})
	gob.Register(PublishReport{})
	gob.Register(CitationReport{})
}

// Task types handled by this domain.
const (
	TaskSearch     = "search"
	TaskAnalyze    = "analyze"
	TaskSynthesize = "synthesize"
	TaskValidate   = "validate"
	TaskPublish    = "publish"
	TaskCite       = "cite"
)

// State names of the pipeline graph.
const (
	StateIdle         = "idle"
	StateSearching    = "searching"
	StateAnalyzing    = "analyzing"
	StateSynthesizing = "synthesizing"
	StateValidating   = "validating"
	StatePublishing   = "publishing"
	StateErrored      = "error"
	StateArchived     = "archived"
)

// Stage-progression triggers.
const (
	TriggerSearchComplete     = "searchComplete"
	TriggerAnalysisComplete   = "analysisComplete"
	TriggerSynthesisComplete  = "synthesisComplete"
	TriggerValidationComplete = "validationComplete"
	TriggerPublishComplete    = "publishComplete"
	TriggerArchive            = "archive"
	TriggerErrorDetected      = "errorDetected"
)

// MinValidationScore gates the validating -> publishing transition.
const MinValidationScore = 0.8

// Task payloads and outputs.
type (
	// SearchRequest asks the provider for documents matching a query.
	SearchRequest struct {
		Query string
		Limit int
	}

	SearchReport struct {
		Query     string
		Documents []Document
	}

	// Finding is one analyzed claim backed by a document.
	Finding struct {
		DocumentID  string
		Claim       string
		Credibility float64
	}

	AnalysisReport struct {
		Findings []Finding
	}

	SynthesisReport struct {
		Summary  string
		Findings int
	}

	ValidationReport struct {
		Score       float64
		Credibility float64
		Consistency float64
		Coverage    float64
	}

	PublishReport struct {
		Title    string
		Findings int
		Score    float64
	}

	CitationReport struct {
		Citations []string
	}
)

// Worker implements api.Domain for the research pipeline.
type Worker struct {
	provider SearchProvider

	mu        sync.Mutex
	batch     []Document
	findings  []Finding
	summary   string
	lastScore float64
	published int
}

// Option configures a Worker.
type Option func(*Worker)

// WithProvider replaces the in-memory search provider.
func WithProvider(p SearchProvider) Option {
	return func(w *Worker) {
		if p != nil {
			w.provider = p
		}
	}
}

// New creates a pipeline worker backed by the deterministic in-memory
// provider unless WithProvider overrides it.
func New(opts ...Option) *Worker {
	w := &Worker{provider: NewMemProvider()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

var _ api.Domain = (*Worker)(nil)

// Graph returns the pipeline's state graph.
func Graph() api.StateGraph {
	return api.StateGraph{
		States: []api.StateDecl{
			{Name: StateIdle, Type: api.StateIdle},
			{Name: StateSearching, Type: api.StateActive},
			{Name: StateAnalyzing, Type: api.StateActive},
			{Name: StateSynthesizing, Type: api.StateActive},
			{Name: StateValidating, Type: api.StateActive},
			{Name: StatePublishing, Type: api.StateActive},
			{Name: StateErrored, Type: api.StateError},
			{Name: StateArchived, Type: api.StateIdle},
		},
		Transitions: []api.TransitionDecl{
			{From: StateIdle, To: StateSearching, Trigger: api.TriggerStartTask},
			{From: StateSearching, To: StateAnalyzing, Trigger: TriggerSearchComplete},
			{From: StateAnalyzing, To: StateSynthesizing, Trigger: TriggerAnalysisComplete},
			{From: StateSynthesizing, To: StateValidating, Trigger: TriggerSynthesisComplete},
			{From: StateValidating, To: StatePublishing, Trigger: TriggerValidationComplete},
			{From: StatePublishing, To: StateIdle, Trigger: TriggerPublishComplete},
			{From: StatePublishing, To: StateArchived, Trigger: TriggerArchive},
			{From: api.AnyState, To: StateErrored, Trigger: TriggerErrorDetected},
			{From: api.AnyState, To: StateIdle, Trigger: api.TriggerRecover},
		},
		Initial: StateIdle,
		Finals:  []string{StateArchived},
	}
}

// DefaultConfig returns a ready-to-use machine configuration for this
// domain. Pipelines run one stage at a time.
func DefaultConfig(workerID string) api.Config {
	return api.Config{
		WorkerID: workerID,
		Domain:   "pipeline",
		Capabilities: []api.Capability{
			{ID: "cap-search", Name: "literature-search", Type: api.CapabilityCore, Version: "1.0.0", Enabled: true},
			{ID: "cap-validate", Name: "finding-validation", Type: api.CapabilitySpecialized, Version: "1.0.0", Enabled: true},
		},
		Graph: Graph(),
		Policy: api.Policy{
			MaxConcurrentTasks: 1,
		},
	}.Normalize()
}

// compat maps each stage to the task types allowed while it is current.
var compat = map[string]map[string]bool{
	StateIdle:         {TaskSearch: true},
	StateSearching:    {TaskSearch: true},
	StateAnalyzing:    {TaskAnalyze: true, TaskCite: true},
	StateSynthesizing: {TaskSynthesize: true, TaskCite: true},
	StateValidating:   {TaskValidate: true},
	StatePublishing:   {TaskPublish: true, TaskCite: true},
}

func (w *Worker) CanHandleTask(stateName string, task api.TaskDefinition) bool {
	return compat[stateName][task.Type]
}

func (w *Worker) PerformTask(ctx context.Context, task api.TaskDefinition, state map[string]any) (any, error) {
	switch task.Type {
	case TaskSearch:
		return w.search(ctx, task)
	case TaskAnalyze:
		return w.analyze()
	case TaskSynthesize:
		return w.synthesize()
	case TaskValidate:
		return w.validate()
	case TaskPublish:
		return w.publish(task)
	case TaskCite:
		return w.cite()
	default:
		return nil, fmt.Errorf("pipelineworker: unknown task type %q", task.Type)
	}
}

func (w *Worker) search(ctx context.Context, task api.TaskDefinition) (any, error) {
	req, _ := task.Payload.(SearchRequest)
	if req.Query == "" {
		return nil, fmt.Errorf("search task %s: empty query", task.ID)
	}
	docs, err := w.provider.Search(ctx, req.Query, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", req.Query, err)
	}

	w.mu.Lock()
	w.batch = docs
	w.mu.Unlock()

	return SearchReport{Query: req.Query, Documents: docs}, nil
}

func (w *Worker) analyze() (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.batch) == 0 {
		return nil, fmt.Errorf("analyze: no documents in the current batch")
	}
	findings := make([]Finding, 0, len(w.batch))
	for _, doc := range w.batch {
		findings = append(findings, Finding{
			DocumentID:  doc.ID,
			Claim:       "key claim of " + doc.Title,
			Credibility: Credibility(doc),
		})
	}
	w.findings = findings
	return AnalysisReport{Findings: findings}, nil
}

func (w *Worker) synthesize() (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.findings) == 0 {
		return nil, fmt.Errorf("synthesize: no findings to combine")
	}
	claims := make([]string, len(w.findings))
	for i, f := range w.findings {
		claims[i] = f.Claim
	}
	w.summary = strings.Join(claims, "; ")
	return SynthesisReport{Summary: w.summary, Findings: len(w.findings)}, nil
}

func (w *Worker) validate() (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.summary == "" {
		return nil, fmt.Errorf("validate: nothing synthesized yet")
	}
	report := Score(w.batch)
	w.lastScore = report.Score
	return report, nil
}

func (w *Worker) publish(task api.TaskDefinition) (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	title, _ := task.Payload.(string)
	if title == "" {
		title = "untitled report " + task.ID
	}
	w.published++
	report := PublishReport{Title: title, Findings: len(w.findings), Score: w.lastScore}

	// A publish closes out the working set.
	w.batch = nil
	w.findings = nil
	w.summary = ""
	return report, nil
}

func (w *Worker) cite() (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	citations := make([]string, 0, len(w.batch))
	for _, doc := range w.batch {
		citations = append(citations, fmt.Sprintf("%s. %s. %d. %s", doc.Source, doc.Title, doc.PublishedYear, doc.URL))
	}
	return CitationReport{Citations: citations}, nil
}

// ResourceUsage reports pipeline depth rather than host pressure.
func (w *Worker) ResourceUsage() api.ResourceUsage {
	w.mu.Lock()
	defer w.mu.Unlock()

	return api.ResourceUsage{
		"batch_documents": float64(len(w.batch)),
		"findings":        float64(len(w.findings)),
		"published":       float64(w.published),
		"last_score":      w.lastScore,
	}
}

// PerformRecovery drops the stage output the failure poisoned so the
// pipeline restarts from clean input.
func (w *Worker) PerformRecovery(ctx context.Context, cause error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := strings.ToLower(cause.Error())

	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case strings.Contains(msg, "search"):
		w.batch = nil
		w.findings = nil
		w.summary = ""
	case strings.Contains(msg, "analy"):
		w.findings = nil
		w.summary = ""
	case strings.Contains(msg, "synth"), strings.Contains(msg, "valid"):
		w.summary = ""
		w.lastScore = 0
	}
	return nil
}

// TransitionRules returns the pipeline's guarded rule table.
func (w *Worker) TransitionRules() []api.StateTransitionRule {
	return []api.StateTransitionRule{
		{From: StateIdle, To: StateSearching, Trigger: api.TriggerStartTask},
		{From: StateSearching, To: StateAnalyzing, Trigger: TriggerSearchComplete, Guard: w.hasBatch},
		{From: StateAnalyzing, To: StateSynthesizing, Trigger: TriggerAnalysisComplete, Guard: w.hasFindings},
		{From: StateSynthesizing, To: StateValidating, Trigger: TriggerSynthesisComplete},
		{From: StateValidating, To: StatePublishing, Trigger: TriggerValidationComplete, Guard: w.scorePasses,
			Action: func(ctx context.Context, state map[string]any) (map[string]any, error) {
				return map[string]any{"validated_score": w.LastScore()}, nil
			}},
		{From: StatePublishing, To: StateIdle, Trigger: TriggerPublishComplete},
		{From: StatePublishing, To: StateArchived, Trigger: TriggerArchive},
		{From: api.AnyState, To: StateErrored, Trigger: TriggerErrorDetected},
		// Recovery restarts the pipeline from idle wherever it happened
		// to be; machine-level recovery fires this from any state.
		{From: api.AnyState, To: StateIdle, Trigger: api.TriggerRecover},
	}
}

func (w *Worker) hasBatch(map[string]any) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.batch) > 0
}

func (w *Worker) hasFindings(map[string]any) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.findings) > 0
}

// scorePasses reads a call-context override first so callers can gate
// on a score they computed themselves.
func (w *Worker) scorePasses(ctx map[string]any) bool {
	if v, ok := ctx["score"].(float64); ok {
		return v >= MinValidationScore
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastScore >= MinValidationScore
}

// LastScore returns the most recent validation score.
func (w *Worker) LastScore() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastScore
}

// Published returns how many reports this worker has published.
func (w *Worker) Published() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.published
}

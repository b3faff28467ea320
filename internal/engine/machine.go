package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okanri/machina/internal/persistence"
	"github.com/okanri/machina/internal/taskqueue"
	"github.com/okanri/machina/pkg/api"
)

// machine is the engine behind api.Machine: it owns the current-state
// record, the bounded state history, the active-task set, the admission
// queue, and the outbound event queue. Domain behavior is delegated
// through the api.Domain hooks.
type machine struct {
	cfg    api.Config
	domain api.Domain
	rules  *ruleTable

	// mu guards current, history, active, taskRetries, results and
	// lastHost, and serializes transition application: no two
	// transitions ever mutate the current-state record concurrently.
	mu          sync.Mutex
	current     *api.WorkerState
	history     *historyRing
	active      map[string]api.TaskDefinition
	taskRetries map[string]int
	results     map[string]*api.TaskResult
	lastHost    api.ResourceUsage

	queue    taskqueue.Queue
	store    persistence.SnapshotStore
	observer api.Observer

	// draining is the single-flight guard on queue drains.
	draining atomic.Bool

	sampler *sampler

	// Outbound event queue, consumed by the dispatcher goroutine.
	events       chan api.Event
	emitMu       sync.RWMutex
	closed       bool
	dispatchDone chan struct{}

	started  bool
	runCtx   context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a machine at construction.
type Option func(*machine)

// WithObserver sets the observer receiving lifecycle events. Use
// api.NewCompositeObserver to attach several.
func WithObserver(obs api.Observer) Option {
	return func(m *machine) {
		if obs != nil {
			m.observer = obs
		}
	}
}

// WithSnapshotStore wires a persistence collaborator: every state record
// the machine leaves and every terminal task result is saved to it.
func WithSnapshotStore(store persistence.SnapshotStore) Option {
	return func(m *machine) { m.store = store }
}

// WithQueue replaces the default in-memory admission queue, for example
// with a SQLite-backed one.
func WithQueue(q taskqueue.Queue) Option {
	return func(m *machine) {
		if q != nil {
			m.queue = q
		}
	}
}

// WithSampleInterval overrides the resource sampler interval.
func WithSampleInterval(d time.Duration) Option {
	return func(m *machine) {
		if d > 0 {
			m.sampler.interval = d
		}
	}
}

// WithHostGauges replaces the gopsutil-backed host gauge source. Tests
// use this to drive deterministic cpu/memory values.
func WithHostGauges(fn func() api.ResourceUsage) Option {
	return func(m *machine) {
		if fn != nil {
			m.sampler.host = fn
		}
	}
}

// New constructs a machine from an immutable configuration and a domain.
// The state graph and the domain's rule table are validated here;
// violations are returned immediately and never deferred to runtime.
func New(cfg api.Config, domain api.Domain, opts ...Option) (api.Machine, error) {
	if domain == nil {
		return nil, errors.New("machine: domain is required")
	}
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rules, err := newRuleTable(cfg.Graph, domain.TransitionRules())
	if err != nil {
		return nil, fmt.Errorf("machine: %w", err)
	}

	initial, _ := cfg.Graph.State(cfg.Graph.Initial)
	m := &machine{
		cfg:    cfg,
		domain: domain,
		rules:  rules,
		current: &api.WorkerState{
			ID:        uuid.NewString(),
			Name:      initial.Name,
			Type:      initial.Type,
			Context:   map[string]any{},
			EnteredAt: time.Now(),
		},
		history:      newHistoryRing(cfg.HistorySize),
		active:       make(map[string]api.TaskDefinition),
		taskRetries:  make(map[string]int),
		results:      make(map[string]*api.TaskResult),
		queue:        taskqueue.NewMemoryQueue(),
		observer:     api.NoopObserver{},
		events:       make(chan api.Event, 256),
		dispatchDone: make(chan struct{}),
	}
	m.sampler = newSampler(m)

	for _, opt := range opts {
		opt(m)
	}

	go m.dispatch()
	return m, nil
}

func (m *machine) ID() string { return m.cfg.WorkerID }

// Start launches the background sampler. Task execution works without
// Start, but drained tasks then run under context.Background().
func (m *machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("machine: already started")
	}
	m.started = true
	runCtx, cancel := context.WithCancel(ctx)
	m.runCtx = runCtx
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.sampler.run(runCtx)
	}()
	return nil
}

// Stop cancels background work, waits for in-flight tasks, and flushes
// the outbound event queue. It is idempotent.
func (m *machine) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		cancel := m.cancel
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		m.wg.Wait()

		m.emitMu.Lock()
		m.closed = true
		close(m.events)
		m.emitMu.Unlock()
		<-m.dispatchDone
	})
}

func (m *machine) CurrentState() api.WorkerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Clone()
}

func (m *machine) History() []api.WorkerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.snapshot()
}

func (m *machine) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *machine) QueueLen() int { return m.queue.Len() }

func (m *machine) Result(taskID string) (*api.TaskResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[taskID]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

func (m *machine) Results() []*api.TaskResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*api.TaskResult, 0, len(m.results))
	for _, r := range m.results {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

// Transition fires a trigger. On any failure the current state record is
// left byte-for-byte unchanged.
func (m *machine) Transition(ctx context.Context, trigger string, callCtx map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(ctx, trigger, callCtx)
}

func (m *machine) transitionLocked(ctx context.Context, trigger string, callCtx map[string]any) error {
	rule, ok := m.rules.lookup(m.current.Name, trigger)
	if !ok {
		return fmt.Errorf("%w: (%s, %s)", api.ErrNoTransitionRule, m.current.Name, trigger)
	}

	merged := api.MergeContext(m.current.Context, callCtx)
	if rule.Guard != nil && !rule.Guard(merged) {
		return fmt.Errorf("%w: trigger %q in state %q", api.ErrGuardRejected, trigger, m.current.Name)
	}

	if rule.Action != nil {
		patch, err := runAction(ctx, rule, merged)
		if err != nil {
			return fmt.Errorf("%w: trigger %q: %w", api.ErrTransitionActionFailed, trigger, err)
		}
		merged = api.MergeContext(merged, patch)
	}

	decl, _ := m.cfg.Graph.State(rule.To)
	m.applyStateLocked(decl, trigger, merged)
	return nil
}

// runAction executes a transition action under its timeout. The action
// races a timer; on expiry the transition fails and the state stays put.
func runAction(ctx context.Context, rule api.StateTransitionRule, merged map[string]any) (map[string]any, error) {
	timeout := rule.Timeout
	if timeout <= 0 {
		timeout = api.DefaultActionTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type actionResult struct {
		patch map[string]any
		err   error
	}
	ch := make(chan actionResult, 1)
	go func() {
		patch, err := rule.Action(actx, merged)
		ch <- actionResult{patch, err}
	}()

	select {
	case r := <-ch:
		return r.patch, r.err
	case <-actx.Done():
		return nil, actx.Err()
	}
}

// setState is the unguarded primitive behind transitions and recovery.
func (m *machine) setState(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	decl, ok := m.cfg.Graph.State(name)
	if !ok {
		return fmt.Errorf("%w: %q", api.ErrUnknownState, name)
	}
	m.applyStateLocked(decl, "", m.current.Context)
	return nil
}

// applyStateLocked replaces the current-state record: the prior state
// gets its dwell duration computed and is pushed into the bounded
// history, then a fresh record is built with a new enteredAt.
func (m *machine) applyStateLocked(decl api.StateDecl, trigger string, ctx map[string]any) {
	now := time.Now()

	prev := m.current.Clone()
	prev.Duration = now.Sub(prev.EnteredAt)
	m.history.push(prev)

	m.current = &api.WorkerState{
		ID:        uuid.NewString(),
		Name:      decl.Name,
		Type:      decl.Type,
		Context:   ctx,
		EnteredAt: now,
	}

	if m.store != nil {
		_ = m.store.SaveState(m.cfg.WorkerID, prev)
	}

	m.emit(api.Event{
		Type:    api.EventStateChanged,
		From:    prev.Name,
		To:      decl.Name,
		Trigger: trigger,
	})
	switch decl.Type {
	case api.StateError:
		m.emit(api.Event{Type: api.EventErrorState, From: prev.Name, To: decl.Name, Err: prev.LastError})
	case api.StateMaintenance:
		m.emit(api.Event{Type: api.EventMaintenanceMode, From: prev.Name, To: decl.Name})
	}
}

// ExecuteTask admits and executes a task.
//
// Synchronous refusals: ErrStateIncompatible (task rejected, not
// queued) and ErrQueued (capacity backpressure; the task drains once a
// slot frees up, and its terminal result is observable via Result and
// the taskCompleted/taskFailed events). A stopped machine refuses with
// ErrMachineStopped. Admitted tasks always return a TaskResult, never
// an error.
func (m *machine) ExecuteTask(ctx context.Context, task api.TaskDefinition) (*api.TaskResult, error) {
	m.emitMu.RLock()
	stopped := m.closed
	m.emitMu.RUnlock()
	if stopped {
		return nil, api.ErrMachineStopped
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	m.mu.Lock()
	if !m.domain.CanHandleTask(m.current.Name, task) {
		state := m.current.Name
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: task type %q in state %q", api.ErrStateIncompatible, task.Type, state)
	}
	if len(m.active) >= m.cfg.Policy.MaxConcurrentTasks {
		m.mu.Unlock()
		if err := m.queue.PushBack(task); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: task %s at capacity %d", api.ErrQueued, task.ID, m.cfg.Policy.MaxConcurrentTasks)
	}
	m.active[task.ID] = task
	m.mu.Unlock()

	return m.runAdmitted(ctx, task), nil
}

// runAdmitted executes a task that already holds an active slot and
// returns this attempt's result. Only terminal results (completed, or
// failed past the retry budget) are recorded.
func (m *machine) runAdmitted(ctx context.Context, task api.TaskDefinition) *api.TaskResult {
	if m.CurrentState().Type != api.StateBusy {
		// Best-effort: the compatibility table already gated admission,
		// so a missing startTask rule is not an execution failure.
		err := m.Transition(ctx, api.TriggerStartTask, nil)
		if err != nil && !errors.Is(err, api.ErrNoTransitionRule) && !errors.Is(err, api.ErrGuardRejected) {
			now := time.Now()
			res := m.terminalFailure(task, now, now, err)
			m.settle(ctx, task.ID)
			return res
		}
	}

	start := time.Now()
	out, execErr := m.attempt(ctx, task)
	end := time.Now()

	defer m.settle(ctx, task.ID)

	if execErr == nil {
		res := &api.TaskResult{
			TaskID:     task.ID,
			Status:     api.TaskCompleted,
			Output:     out,
			StartedAt:  start,
			FinishedAt: end,
			Usage:      m.ResourceUsage(),
		}
		m.record(res)
		m.emit(api.Event{Type: api.EventTaskCompleted, TaskID: task.ID, Result: res})
		return res
	}

	m.mu.Lock()
	m.taskRetries[task.ID]++
	retries := m.taskRetries[task.ID]
	m.mu.Unlock()

	if retries <= m.cfg.Policy.Retry.MaxRetries {
		// Retried tasks go to the front of the queue, ahead of fresh
		// submissions. This attempt's result is not terminal and is
		// never recorded.
		_ = m.queue.PushFront(task)
		return &api.TaskResult{
			TaskID:     task.ID,
			Status:     api.TaskFailed,
			StartedAt:  start,
			FinishedAt: end,
			Errors:     []string{execErr.Error()},
		}
	}

	return m.terminalFailure(task, start, end, execErr)
}

// attempt runs the domain's PerformTask under the configured timeout.
func (m *machine) attempt(ctx context.Context, task api.TaskDefinition) (any, error) {
	tctx, cancel := context.WithTimeout(ctx, m.cfg.Policy.TaskTimeout)
	defer cancel()

	stateCtx := m.CurrentState().Context

	type taskResult struct {
		out any
		err error
	}
	ch := make(chan taskResult, 1)
	go func() {
		out, err := m.domain.PerformTask(tctx, task, stateCtx)
		ch <- taskResult{out, err}
	}()

	select {
	case r := <-ch:
		return r.out, r.err
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: task %s after %s", api.ErrTaskExecutionTimeout, task.ID, m.cfg.Policy.TaskTimeout)
		}
		return nil, tctx.Err()
	}
}

// terminalFailure records the single terminal failed result for a task
// whose retry budget is exhausted and emits taskFailed exactly once.
func (m *machine) terminalFailure(task api.TaskDefinition, start, end time.Time, cause error) *api.TaskResult {
	m.mu.Lock()
	delete(m.taskRetries, task.ID)
	m.mu.Unlock()

	res := &api.TaskResult{
		TaskID:     task.ID,
		Status:     api.TaskFailed,
		StartedAt:  start,
		FinishedAt: end,
		Usage:      m.ResourceUsage(),
		Errors:     []string{cause.Error(), api.ErrTaskRetriesExceeded.Error()},
	}
	m.record(res)
	m.emit(api.Event{Type: api.EventTaskFailed, TaskID: task.ID, Result: res, Err: cause.Error()})
	return res
}

// record stores a terminal result for history queries and, when a
// snapshot store is wired, persists it.
func (m *machine) record(res *api.TaskResult) {
	m.mu.Lock()
	m.results[res.TaskID] = res
	delete(m.taskRetries, res.TaskID)
	m.mu.Unlock()

	if m.store != nil {
		_ = m.store.SaveResult(m.cfg.WorkerID, res)
	}
}

// settle is the always-run cleanup after a task attempt: release the
// active slot, drain the queue, and fire completeTask when the active
// set emptied while in a busy-type state.
func (m *machine) settle(ctx context.Context, taskID string) {
	m.mu.Lock()
	delete(m.active, taskID)
	m.mu.Unlock()

	m.drain()

	m.mu.Lock()
	idle := len(m.active) == 0
	busy := m.current.Type == api.StateBusy
	m.mu.Unlock()
	if idle && busy {
		// completeTask is best-effort bookkeeping, like startTask.
		_ = m.Transition(ctx, api.TriggerCompleteTask, nil)
	}
}

// drain admits queued tasks while capacity allows. The CAS guard keeps
// at most one drain attempt running at a time; competing callers simply
// return, and the completion path of whatever is running will drain
// again.
func (m *machine) drain() {
	if !m.draining.CompareAndSwap(false, true) {
		return
	}
	defer m.draining.Store(false)

	for {
		task, ok, err := m.queue.PopFront()
		if err != nil || !ok {
			return
		}

		m.mu.Lock()
		if len(m.active) >= m.cfg.Policy.MaxConcurrentTasks {
			m.mu.Unlock()
			_ = m.queue.PushFront(task)
			return
		}
		if !m.domain.CanHandleTask(m.current.Name, task) {
			m.mu.Unlock()
			// The state moved on while the task sat queued; it can no
			// longer run here. Terminal failure keeps the one-result
			// invariant for deferred tasks.
			now := time.Now()
			m.terminalFailure(task, now, now,
				fmt.Errorf("%w: task type %q in state %q", api.ErrStateIncompatible, task.Type, m.CurrentState().Name))
			continue
		}
		m.active[task.ID] = task
		m.mu.Unlock()

		m.wg.Add(1)
		go func(t api.TaskDefinition) {
			defer m.wg.Done()
			_ = m.runAdmitted(m.bgCtx(), t)
		}(task)
	}
}

func (m *machine) bgCtx() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runCtx != nil {
		return m.runCtx
	}
	return context.Background()
}

// RecoverFromError runs machine-level recovery for the current state.
//
// Each call increments the state-level retry counter, waits out the
// configured backoff, then runs the domain's PerformRecovery hook and
// the recover trigger. Once the counter reaches the retry budget with
// no success, the machine is forced into the terminal error state and
// only an explicit recover trigger moves it again.
func (m *machine) RecoverFromError(ctx context.Context, cause error) error {
	if cause == nil {
		return nil
	}

	m.mu.Lock()
	if m.current.Type == api.StateError {
		state := m.current.Name
		m.mu.Unlock()
		return fmt.Errorf("%w: machine is in %q; an explicit recover trigger is required", api.ErrStateRetriesExceeded, state)
	}
	m.current.RetryCount++
	m.current.LastError = cause.Error()
	retries := m.current.RetryCount
	m.mu.Unlock()

	maxRetries := m.cfg.Policy.Retry.MaxRetries
	if retries > maxRetries {
		m.giveUp(cause)
		return fmt.Errorf("%w: %d recovery attempts for %v", api.ErrStateRetriesExceeded, retries-1, cause)
	}

	if delay := m.cfg.Policy.Retry.Delay(retries); delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	recErr := m.domain.PerformRecovery(ctx, cause)
	if recErr == nil {
		recErr = m.Transition(ctx, api.TriggerRecover, nil)
	}
	if recErr == nil {
		return nil
	}
	if retries >= maxRetries {
		m.giveUp(cause)
		return fmt.Errorf("%w: %d recovery attempts for %v", api.ErrStateRetriesExceeded, retries, cause)
	}
	return fmt.Errorf("recovery attempt %d: %w", retries, recErr)
}

// giveUp force-transitions into the graph's error-type state and emits
// maxRetriesExceeded. No further automatic recovery runs afterwards.
func (m *machine) giveUp(cause error) {
	m.emit(api.Event{Type: api.EventMaxRetriesExceeded, Err: cause.Error()})
	if name, ok := m.errorStateName(); ok {
		_ = m.setState(name)
	}
}

func (m *machine) errorStateName() (string, bool) {
	for _, s := range m.cfg.Graph.States {
		if s.Type == api.StateError {
			return s.Name, true
		}
	}
	return "", false
}

// ResourceUsage merges the domain's gauges, the last host sample, and
// the machine's own admission gauges.
func (m *machine) ResourceUsage() api.ResourceUsage {
	out := api.ResourceUsage{}
	for k, v := range m.domain.ResourceUsage() {
		out[k] = v
	}

	m.mu.Lock()
	for k, v := range m.lastHost {
		out[k] = v
	}
	activeCount := len(m.active)
	m.mu.Unlock()

	out["queue_depth"] = float64(m.queue.Len())
	out["active_tasks"] = float64(activeCount)
	return out
}

func (m *machine) setHostSample(u api.ResourceUsage) {
	m.mu.Lock()
	m.lastHost = u
	m.mu.Unlock()
}

// emit pushes an event onto the outbound queue. After Stop the event is
// dropped.
func (m *machine) emit(e api.Event) {
	e.WorkerID = m.cfg.WorkerID
	if e.At.IsZero() {
		e.At = time.Now()
	}

	m.emitMu.RLock()
	defer m.emitMu.RUnlock()
	if m.closed {
		return
	}
	m.events <- e
}

// dispatch delivers queued events to the observer, in order, off the
// transition path.
func (m *machine) dispatch() {
	for e := range m.events {
		api.Dispatch(m.observer, e)
	}
	close(m.dispatchDone)
}

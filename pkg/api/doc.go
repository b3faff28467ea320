// Package api defines the public contract of the machina worker state
// machine: the data model (WorkerState, TaskDefinition, TaskResult,
// Capability, Config), the declarative StateGraph and its transition
// rules, the error taxonomy, the lifecycle event vocabulary, and the
// Observer and Domain interfaces.
//
// Most applications import the root machina package, which re-exports
// everything here; api exists so that domain implementations and
// collaborators (persistence, metrics) can depend on the contract
// without pulling in the engine.
package api

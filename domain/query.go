// Package domain holds the data types shared across the orchestration
// core: Query, Analysis, Hypothesis, ProcessStep/ProcessTree, retrieval
// results, progress events, and checkpoints. Types here are pure data —
// no I/O, no locking beyond what a single mutable aggregate (ProcessTree)
// needs to stay internally consistent.
package domain

// Query is free-form text plus optional conversation history and
// per-request configuration overrides. Immutable once submitted.
type Query struct {
	Text                string
	Locale              string
	ConversationHistory []ConversationTurn
	ConfigOverrides     map[string]interface{}
}

// ConversationTurn is one prior exchange, carried for context only; the
// analyzer does not re-classify history, only the current Text.
type ConversationTurn struct {
	Role string // "user" | "assistant"
	Text string
}

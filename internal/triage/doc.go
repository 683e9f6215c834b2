// Package triage is the deterministic feedback classifier. An Engine, compiled
// from a versioned rules.RuleSet, derives sentiment, category, priority,
// department and initial status from a feedback message. It performs no I/O
// and holds no mutable state beyond the swappable department set.
package triage

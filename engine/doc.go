// Package engine is the assignment engine described by the rest of
// this module's packages: it owns the Offer Store/Host View
// (registry.go), the Assignment Evaluator's worker pool
// (evaluator.go), the fail-fast State Guard (guard.go), the single
// validated Config record (config.go), and the Scheduling Round
// Orchestrator plus Mutation API, both exposed as methods on
// Scheduler (scheduler.go).
//
// A round never blocks waiting for another round or a mutation call;
// a caller that arrives while the guard is held gets a usage error
// back immediately and is expected to retry. Reject and autoscale
// callbacks are dispatched off a round's critical path through the
// adapted async runner and drained at the end of ScheduleOnce; a
// mutation call issued between rounds sees its own dispatch drained
// on the next round, not immediately, which mirrors how the host
// framework's own update loop only drains pending async work once
// per iteration rather than after every individual state change.
package engine

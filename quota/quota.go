// Package quota implements the Quota Evaluator: per-group resource
// allocation ceilings enforced before a task is considered for
// placement. Generalized from common/allocator's single-dimension
// capacity/allocated bookkeeping to the five-dimension resource
// vector plus a task-count ceiling, one allocator per group.
package quota

import (
	"fmt"
	"sync"

	"github.com/taskfleet/clustersched/resource"
	"github.com/taskfleet/clustersched/sched"
)

// Quota is the per-group ceiling on total resources and task count a
// group may consume across a round.
type Quota struct {
	Limit    resource.Vector
	MaxTasks int
}

// Evaluator tracks per-group quotas and their in-round usage. A group
// with no configured Quota is unconstrained, matching
// common/allocator's "no allocator configured, no limit" posture.
type Evaluator struct {
	mu sync.Mutex

	limits map[string]Quota
	used   map[string]resource.Vector
	counts map[string]int

	failedThisRound map[string]bool
}

// New returns an Evaluator with no configured quotas.
func New() *Evaluator {
	return &Evaluator{
		limits:          map[string]Quota{},
		used:            map[string]resource.Vector{},
		counts:          map[string]int{},
		failedThisRound: map[string]bool{},
	}
}

// AddOrReplace sets (or overwrites) the quota for a group, per the
// Mutation API's idempotent-set contract.
func (e *Evaluator) AddOrReplace(group string, q Quota) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limits[group] = q
}

// Remove deletes the quota configured for a group; the group becomes
// unconstrained.
func (e *Evaluator) Remove(group string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.limits, group)
}

// Get returns the configured quota for a group, if any.
func (e *Evaluator) Get(group string) (Quota, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.limits[group]
	return q, ok
}

// All returns a copy of every configured group quota.
func (e *Evaluator) All() map[string]Quota {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]Quota, len(e.limits))
	for k, v := range e.limits {
		out[k] = v
	}
	return out
}

// Prepare snapshots current usage at round start: zeroes in-round
// accounting and clears which groups were marked exhausted by the
// previous round.
func (e *Evaluator) Prepare() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.used = map[string]resource.Vector{}
	e.counts = map[string]int{}
	e.failedThisRound = map[string]bool{}
}

// HasResAllocs returns nil if task fits within its group's remaining
// quota, else an AssignmentFailure describing which dimension was
// exceeded. A task whose group has no configured quota always fits.
func (e *Evaluator) HasResAllocs(task *sched.TaskRequest) *sched.AssignmentFailure {
	e.mu.Lock()
	defer e.mu.Unlock()

	q, ok := e.limits[task.GroupName]
	if !ok {
		return nil
	}

	if q.MaxTasks > 0 && e.counts[task.GroupName]+1 > q.MaxTasks {
		return &sched.AssignmentFailure{
			Kind:   sched.FailureQuota,
			Reason: fmt.Sprintf("group %s at task-count quota %d", task.GroupName, q.MaxTasks),
		}
	}

	projected := e.used[task.GroupName].Add(task.Resources)
	if ok, short := q.Limit.Fits(projected); !ok {
		return &sched.AssignmentFailure{
			Kind:          sched.FailureQuota,
			ResourceShort: short,
			Reason:        fmt.Sprintf("group %s exceeds %s quota", task.GroupName, short),
		}
	}
	return nil
}

// Commit records that task was bound this round, decrementing
// remaining quota for its group.
func (e *Evaluator) Commit(task *sched.TaskRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.used[task.GroupName] = e.used[task.GroupName].Add(task.Resources)
	e.counts[task.GroupName]++
}

// MarkGroupFailed short-circuits further evaluation of a group for
// the remainder of the round: once a group exhausts quota, further
// tasks of that group skip both evaluation and autoscale accounting,
// since adding hosts cannot fix a quota shortfall.
func (e *Evaluator) MarkGroupFailed(group string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failedThisRound[group] = true
}

// TaskGroupFailed reports whether group was already marked exhausted
// this round.
func (e *Evaluator) TaskGroupFailed(group string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failedThisRound[group]
}

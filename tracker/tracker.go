// Package tracker implements the Task Tracker: a process-wide registry
// of tasks currently running or tentatively assigned, indexed by task
// id and by hostname. Grounded on the in-progress-job map kept by the
// engine's round orchestrator, generalized from per-job bookkeeping to
// a flat task/hostname index.
package tracker

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/taskfleet/clustersched/sched"
)

// entry is the tracker's per-task record.
type entry struct {
	task       *sched.TaskRequest
	hostname   string
	assignedAt time.Time
}

// Tracker is the Task Tracker described in the component design: a
// taskId -> {task, hostname, assignedAt} map plus its hostname reverse
// index. All methods are safe for concurrent use; the state guard only
// serializes scheduling rounds, not individual tracker updates
// (unassignTask in particular is commonly called from an external
// event thread without holding the guard).
type Tracker struct {
	mu        sync.RWMutex
	byTask    map[string]*entry
	byHostname map[string]map[string]bool // hostname -> set of taskIds
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{
		byTask:     map[string]*entry{},
		byHostname: map[string]map[string]bool{},
	}
}

// Assign records that task is now assigned to (or running on)
// hostname. Re-assigning an already-tracked task id moves it, so
// reconstructing state from a fresh cluster-manager snapshot is safe.
func (t *Tracker) Assign(task *sched.TaskRequest, hostname string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.byTask[task.Id]; ok && old.hostname != hostname {
		t.removeFromHostIndexLocked(old.hostname, task.Id)
	}
	t.byTask[task.Id] = &entry{task: task, hostname: hostname, assignedAt: at}
	if t.byHostname[hostname] == nil {
		t.byHostname[hostname] = map[string]bool{}
	}
	t.byHostname[hostname][task.Id] = true
	log.WithFields(log.Fields{"taskId": task.Id, "hostname": hostname}).Debug("tracker: assigned")
}

// Unassign removes taskId from both indices. A no-op if the task is
// not currently tracked, so callers need not check existence first.
func (t *Tracker) Unassign(taskId string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byTask[taskId]
	if !ok {
		return
	}
	delete(t.byTask, taskId)
	t.removeFromHostIndexLocked(e.hostname, taskId)
	log.WithFields(log.Fields{"taskId": taskId, "hostname": e.hostname}).Debug("tracker: unassigned")
}

func (t *Tracker) removeFromHostIndexLocked(hostname, taskId string) {
	if set, ok := t.byHostname[hostname]; ok {
		delete(set, taskId)
		if len(set) == 0 {
			delete(t.byHostname, hostname)
		}
	}
}

// TasksOnHost returns the ids of every task currently tracked against
// hostname. Implements sched.TrackerSnapshot.
func (t *Tracker) TasksOnHost(hostname string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set := t.byHostname[hostname]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// HostnameForTask returns the hostname a task is currently tracked
// against, if any. Implements sched.TrackerSnapshot.
func (t *Tracker) HostnameForTask(taskId string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.byTask[taskId]
	if !ok {
		return "", false
	}
	return e.hostname, true
}

// Snapshot returns a read-only view safe to hand to constraint and
// fitness plugins during evaluation; it is simply the Tracker itself,
// since every exported method is already read-only with respect to
// plugin access (plugins can never reach Assign/Unassign through this
// interface).
func (t *Tracker) Snapshot() sched.TrackerSnapshot { return t }

// Count returns the number of currently tracked tasks, for stats.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byTask)
}

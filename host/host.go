// Package host owns per-host state: the offers currently held, the
// tasks previously and tentatively assigned, and disable/group status.
// It answers the primitive "try this task here" query the Assignment
// Evaluator drives in parallel across many hosts.
package host

import (
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/taskfleet/clustersched/resource"
	"github.com/taskfleet/clustersched/sched"
)

var nilTime = time.Time{}

// Host is the per-hostname aggregate of held offers and assigned tasks.
// A Host is created lazily on first offer or first disable/assign call
// and persists until the periodic inactive-host sweep reclaims it.
type Host struct {
	mu sync.Mutex

	hostname string
	vmId     string
	group    string

	offers map[string]sched.Offer // offer id -> offer, all currently held

	runningTasks map[string]*sched.TaskRequest // tasks previously assigned here (running)

	tentative           []*sched.TaskRequest // this round's tentative assignments, in bind order
	tentativeResources  resource.Vector       // sum of tentative assignments' resource needs

	disableUntil time.Time
}

// New returns an empty Host for hostname. Mirrors newNodeState's role
// of initializing per-node bookkeeping with no assignments.
func New(hostname string) *Host {
	return &Host{
		hostname:     hostname,
		offers:       map[string]sched.Offer{},
		runningTasks: map[string]*sched.TaskRequest{},
	}
}

func (h *Host) Hostname() string { return h.hostname }

// AddOffer merges a newly received offer into the held set. Returns
// false if an offer with this id is already held (the caller treats
// that as a duplicate-offer usage error, not silently ignored).
func (h *Host) AddOffer(o sched.Offer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.offers[o.Id]; exists {
		return false
	}
	h.offers[o.Id] = o
	if o.VmId != "" {
		h.vmId = o.VmId
	}
	return true
}

// ReplaceOffer overwrites the held offer set with a single offer,
// used in single-offer-per-host mode where each offer is a complete
// view rather than an incremental delta.
func (h *Host) ReplaceOffer(o sched.Offer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.offers = map[string]sched.Offer{o.Id: o}
	if o.VmId != "" {
		h.vmId = o.VmId
	}
}

// RemoveOffer drops a held offer, e.g. because it expired or was
// explicitly rejected. Returns the removed offer and whether it existed.
func (h *Host) RemoveOffer(id string) (sched.Offer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.offers[id]
	if ok {
		delete(h.offers, id)
	}
	return o, ok
}

// OfferIds returns the ids of every currently held offer.
func (h *Host) OfferIds() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.offers))
	for id := range h.offers {
		ids = append(ids, id)
	}
	return ids
}

// HasOffers reports whether this host currently holds any offer.
func (h *Host) HasOffers() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.offers) > 0
}

// aggregateOffered sums resources across all held offers. Caller must
// hold h.mu.
func (h *Host) aggregateOffered() resource.Vector {
	var total resource.Vector
	for _, o := range h.offers {
		total = total.Add(o.Resources)
	}
	return total
}

// FreeResources returns the host's free resource vector: sum of held
// offers minus resources consumed by this round's tentative
// assignments. Previously assigned (running) tasks are NOT subtracted;
// offers already exclude them upstream per the driver contract.
func (h *Host) FreeResources() resource.Vector {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aggregateOffered().Sub(h.tentativeResources)
}

// TryTask evaluates a single task against this host: resource fit,
// then hard constraints, then (if all pass) soft constraints and the
// fitness calculator. It does not mutate host state; callers bind the
// winning result later via AssignResult.
func (h *Host) TryTask(task *sched.TaskRequest, fitnessFn sched.FitnessCalculator, snapshot sched.TrackerSnapshot) sched.AssignmentResult {
	h.mu.Lock()
	free := h.aggregateOffered().Sub(h.tentativeResources)
	h.mu.Unlock()

	result := sched.AssignmentResult{Task: task, Hostname: h.hostname}

	if ok, short := free.Fits(task.Resources); !ok {
		result.Failures = append(result.Failures, sched.AssignmentFailure{
			Kind:          sched.FailureResource,
			ResourceShort: short,
			Reason:        fmt.Sprintf("insufficient %s on %s", short, h.hostname),
		})
		return result
	}

	for _, c := range task.HardConstraints {
		cr := c.Evaluate(task, h.hostname, snapshot)
		if !cr.Passed {
			result.Failures = append(result.Failures, sched.AssignmentFailure{
				Kind:           sched.FailureConstraint,
				ConstraintName: cr.Name,
				Reason:         cr.Reason,
			})
			return result
		}
	}

	var softScore float64
	if n := len(task.SoftConstraints); n > 0 {
		for _, c := range task.SoftConstraints {
			softScore += c.Score(task, h.hostname, snapshot)
		}
		softScore /= float64(n)
	}

	fitness := softScore
	if fitnessFn != nil {
		fitness = fitnessFn(task, h.hostname, snapshot)
		if n := len(task.SoftConstraints); n > 0 {
			fitness = (fitness + softScore) / 2
		}
	}

	result.Successful = true
	result.Fitness = fitness
	return result
}

// AssignResult records a winning result as a tentative assignment,
// reducing this host's free resources for the remainder of the round.
// Only the round orchestrator calls this, and only for the single
// winning result per task, preserving the single-writer-per-host rule.
func (h *Host) AssignResult(result sched.AssignmentResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tentative = append(h.tentative, result.Task)
	h.tentativeResources = h.tentativeResources.Add(result.Task.Resources)
}

// ResetAndGetSuccessfullyAssignedRequests atomically returns this
// round's accumulated tentative assignments (or nil if none) and
// clears the tentative list and its resource accounting.
func (h *Host) ResetAndGetSuccessfullyAssignedRequests() []*sched.TaskRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.tentative) == 0 {
		return nil
	}
	out := h.tentative
	h.tentative = nil
	h.tentativeResources = resource.Vector{}
	return out
}

// RunningResources sums the resource needs of every task marked
// running on this host via MarkRunning. Held offers already exclude
// these per the driver contract, so this exists only for reporting
// how much of a host's capacity is accounted for, not for further
// subtraction against FreeResources.
func (h *Host) RunningResources() resource.Vector {
	h.mu.Lock()
	defer h.mu.Unlock()
	var total resource.Vector
	for _, task := range h.runningTasks {
		total = total.Add(task.Resources)
	}
	return total
}

// HasPreviouslyAssignedTasks reports whether this host still carries
// any task marked as running (via MarkRunning), excluding this round's
// tentative assignments. Idle-host detection uses this to avoid
// reclaiming or idling a host with live work on it.
func (h *Host) HasPreviouslyAssignedTasks() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.runningTasks) > 0
}

// MarkRunning records that taskId is now actually running on this
// host, called by the Mutation API's assignTask.
func (h *Host) MarkRunning(taskId string, task *sched.TaskRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runningTasks[taskId] = task
}

// UnmarkRunning removes taskId from the running set, called by
// unassignTask.
func (h *Host) UnmarkRunning(taskId string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.runningTasks, taskId)
}

// Reclaimable reports whether this host has neither offers nor running
// tasks nor an active disable hold, making it eligible for the
// periodic inactive-host sweep.
func (h *Host) Reclaimable(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.offers) == 0 && len(h.runningTasks) == 0 && !h.disabled(now)
}

// Disable sets a disable-until timestamp; the host is skipped from
// candidate gathering until that time passes, but keeps its offers.
func (h *Host) Disable(until time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disableUntil = until
}

// Enable clears any disable hold.
func (h *Host) Enable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disableUntil = nilTime
}

func (h *Host) disabled(now time.Time) bool {
	return h.disableUntil.After(now)
}

// Disabled reports whether this host is currently disabled.
func (h *Host) Disabled(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disabled(now)
}

// SetGroup records the group tag derived from the configured
// autoscale-group attribute name.
func (h *Host) SetGroup(group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.group = group
}

func (h *Host) Group() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.group
}

func (h *Host) VmId() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.vmId
}

func (h *Host) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fmt.Sprintf("{hostname:%s group:%s vmId:%s offers:%s running:%d tentative:%d disableUntil:%v}",
		h.hostname, h.group, h.vmId, spew.Sdump(h.offers), len(h.runningTasks), len(h.tentative), h.disableUntil)
}

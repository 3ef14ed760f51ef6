// Package engine ties the Offer Store, Host View, Task Tracker, Quota
// Evaluator, Assignment Evaluator and autoscaler collaborator together
// behind a single Scheduler value, grounded on the same shape the
// source material's statefulScheduler uses: one struct holding all
// scheduling state, a guarded entry point per round, and an
// async.AsyncRunner draining side-effecting callbacks off the critical
// path.
package engine

import (
	"fmt"
	"time"

	"github.com/luci/go-render/render"
	log "github.com/sirupsen/logrus"

	"github.com/taskfleet/clustersched/async"
	"github.com/taskfleet/clustersched/autoscale"
	"github.com/taskfleet/clustersched/common/stats"
	"github.com/taskfleet/clustersched/quota"
	"github.com/taskfleet/clustersched/resource"
	"github.com/taskfleet/clustersched/sched"
	"github.com/taskfleet/clustersched/schederr"
	"github.com/taskfleet/clustersched/tracker"
)

// Scheduler is the assignment engine's single entry point: construct
// one with New, feed it offers and task requests through ScheduleOnce,
// and use the Mutation API methods to adjust state between rounds.
type Scheduler struct {
	cfg *Config

	guard    *stateGuard
	registry *registry
	tracker  *tracker.Tracker
	quota    *quota.Evaluator
	autoscaler *autoscale.Evaluator

	sideEffects async.AsyncRunner

	stat stats.StatsReceiver
}

// New constructs a Scheduler from a validated Config. Initial quota
// allocations are installed immediately; autoscale rules supplied via
// WithAutoScaleRules are installed after the attribute name, so
// ordering within cfg never matters to the caller.
func New(cfg *Config, stat stats.StatsReceiver) *Scheduler {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	s := &Scheduler{
		cfg:         cfg,
		guard:       newStateGuard(),
		registry:    newRegistry(),
		tracker:     tracker.New(),
		quota:       quota.New(),
		autoscaler:  autoscale.New(),
		sideEffects: async.NewAsyncRunner(),
		stat:        stat,
	}
	for group, q := range cfg.InitialResAllocs {
		s.quota.AddOrReplace(group, q)
	}
	if cfg.AutoScaleByAttributeName != "" {
		s.autoscaler.SetGroupAttributeName(cfg.AutoScaleByAttributeName)
		s.autoscaler.SetDisableShortfallEvaluation(cfg.DisableShortfallEvaluation)
		s.registry.setActiveGroupAttributeName(cfg.AutoScaleByAttributeName)
		for _, r := range cfg.AutoScaleRules {
			if err := s.autoscaler.AddOrReplaceRule(r); err != nil {
				log.WithError(err).WithField("group", r.Group).Error("dropping invalid initial autoscale rule")
			}
		}
	}
	return s
}

// ScheduleOnce runs a single scheduling round: ingest newOffers, then
// attempt to place every entry in requests against the current
// candidate host set, in order. Returns a usage error (never nil
// alongside a nil result) if the round could not even start or a
// batch-level usage error occurred; assignment failures are always
// carried inside the returned SchedulingResult, never as an error.
func (s *Scheduler) ScheduleOnce(requests []*sched.TaskRequest, newOffers []sched.Offer) (*sched.SchedulingResult, error) {
	if !s.guard.tryEnter() {
		s.stat.Counter(stats.RoundConcurrentEntryRejectedCounter).Inc(1)
		return nil, errConcurrentEntry
	}
	defer s.guard.exit()

	start := time.Now()
	defer s.stat.Latency(stats.RoundLatency_ms).Time().Stop()

	result := sched.NewSchedulingResult()

	if err := s.ingestOffers(newOffers, result); err != nil {
		return nil, err
	}

	now := time.Now()
	expireTTL := time.Duration(s.cfg.LeaseOfferExpirySecs) * time.Second
	for _, pair := range s.registry.expireStaleOffers(now, expireTTL) {
		s.rejectOffer(pair.OfferId, pair.Hostname, sched.RejectExpired)
		result.LeasesRejected++
	}

	s.quota.Prepare()
	snapshot := s.tracker.Snapshot()

	var failedNotDueToQuota []*sched.TaskRequest
	for _, task := range requests {
		s.evaluateOneTask(task, snapshot, result, &failedNotDueToQuota)
	}

	assignedThisRound := s.finalizeAssignments(result)

	dropped := s.registry.sweep(now)
	s.stat.Counter(stats.RegistrySweptHostsCounter).Inc(int64(len(dropped)))

	idleByGroup, idleHosts := s.collectIdleHosts(assignedThisRound)
	result.TotalVMs = len(s.registry.all())
	result.IdleVMs = len(idleHosts)
	s.stat.Gauge(stats.RoundTotalVMsGauge).Update(int64(result.TotalVMs))
	s.stat.Gauge(stats.RoundIdleVMsGauge).Update(int64(result.IdleVMs))

	s.rejectIdleHosts(idleHosts, result)
	s.feedAutoscaler(idleByGroup, failedNotDueToQuota)

	s.sideEffects.ProcessMessages()

	result.RuntimeMillis = int64(time.Since(start) / time.Millisecond)
	s.stat.Counter(stats.RoundAllocationTrialsCounter).Inc(int64(result.NumAllocationTrials))
	s.stat.Counter(stats.RoundLeasesAddedCounter).Inc(int64(result.LeasesAdded))
	s.stat.Counter(stats.RoundLeasesRejectedCounter).Inc(int64(result.LeasesRejected))
	log.Debugln("round result", render.Render(result))
	return result, nil
}

// ingestOffers adds every offer in order, stopping at the first
// duplicate id. A duplicate both aborts the batch with a usage error
// (propagated to the caller per the mutation contract) and is reported
// through the reject callback like any other rejected offer, so a
// caller that only watches the callback stream still observes it even
// though the aborted round's result is never returned.
func (s *Scheduler) ingestOffers(offers []sched.Offer, result *sched.SchedulingResult) error {
	for _, o := range offers {
		if err := s.registry.addOffer(o, s.cfg.SingleOfferPerHost); err != nil {
			s.rejectOffer(o.Id, o.Hostname, sched.RejectDuplicate)
			return err
		}
		result.LeasesAdded++
	}
	return nil
}

func (s *Scheduler) evaluateOneTask(task *sched.TaskRequest, snapshot sched.TrackerSnapshot, result *sched.SchedulingResult, failedNotDueToQuota *[]*sched.TaskRequest) {
	if s.quota.TaskGroupFailed(task.GroupName) {
		result.PerTaskFailures[task.Id] = append(result.PerTaskFailures[task.Id], sched.AssignmentResult{
			Task: task,
			Failures: []sched.AssignmentFailure{{
				Kind:   sched.FailureQuota,
				Reason: fmt.Sprintf("group %s already exhausted its quota this round", task.GroupName),
			}},
		})
		return
	}

	if failure := s.quota.HasResAllocs(task); failure != nil {
		s.quota.MarkGroupFailed(task.GroupName)
		s.stat.Counter(stats.RoundQuotaExceededCounter).Inc(1)
		result.PerTaskFailures[task.Id] = append(result.PerTaskFailures[task.Id], sched.AssignmentResult{
			Task:     task,
			Failures: []sched.AssignmentFailure{*failure},
		})
		return
	}

	candidates := s.registry.candidateHosts(time.Now())
	winner, failures, trials := evaluateTask(task, candidates, s.cfg, snapshot)
	result.NumAllocationTrials += trials

	if winner == nil {
		result.PerTaskFailures[task.Id] = append(result.PerTaskFailures[task.Id], failures...)
		*failedNotDueToQuota = append(*failedNotDueToQuota, task)
		return
	}

	h, ok := s.registry.hostByHostname(winner.Hostname)
	if !ok {
		log.WithFields(log.Fields{"task": task.Id, "hostname": winner.Hostname}).Error("assignment evaluator returned an unknown host")
		result.PerTaskFailures[task.Id] = append(result.PerTaskFailures[task.Id], *winner)
		return
	}
	h.AssignResult(*winner)
	s.quota.Commit(task)
	s.tracker.Assign(task, winner.Hostname, time.Now())
}

// finalizeAssignments performs the round-end host walk (spec'd after
// fenzo's TaskScheduler resetting each VM's successfully-assigned
// requests once the task loop finishes): every host's tentative
// bindings are drained into result.PerHostAssignments and the host's
// tentativeResources accounting is cleared, so the next round's
// FreeResources reflects only that round's own tentative assignments
// rather than accumulating them forever. Returns the set of hostnames
// that received at least one assignment this round.
func (s *Scheduler) finalizeAssignments(result *sched.SchedulingResult) map[string]bool {
	assigned := make(map[string]bool)
	for hostname, h := range s.registry.all() {
		tasks := h.ResetAndGetSuccessfullyAssignedRequests()
		if tasks == nil {
			continue
		}
		assigned[hostname] = true
		result.PerHostAssignments[hostname] = &sched.VMAssignmentResult{Hostname: hostname, Tasks: tasks}
	}
	return assigned
}

// collectIdleHosts identifies hosts that got no assignment this round
// and carry no previously-assigned (running) task, mirroring fenzo's
// idle-VM test of "no assignment this round AND nothing already
// running there". Returns idle free capacity summed by group,
// captured before any idle-offer rejection removes it, plus the idle
// hostnames themselves.
func (s *Scheduler) collectIdleHosts(assignedThisRound map[string]bool) (map[string]resource.Vector, []string) {
	idleByGroup := map[string]resource.Vector{}
	var idleHosts []string
	for hostname, h := range s.registry.all() {
		if assignedThisRound[hostname] || h.HasPreviouslyAssignedTasks() {
			continue
		}
		idleByGroup[h.Group()] = idleByGroup[h.Group()].Add(h.FreeResources())
		idleHosts = append(idleHosts, hostname)
	}
	return idleByGroup, idleHosts
}

// rejectIdleHosts returns every idle host's held offers to the cluster
// manager via the reject callback, tagged RejectIdleHost, and counts
// them in result.LeasesRejected alongside expired and explicitly
// expired leases.
func (s *Scheduler) rejectIdleHosts(idleHosts []string, result *sched.SchedulingResult) {
	for _, pair := range s.registry.rejectIdleOffers(idleHosts) {
		s.rejectOffer(pair.OfferId, pair.Hostname, sched.RejectIdleHost)
		result.LeasesRejected++
	}
}

// feedAutoscaler dispatches the autoscale evaluation off the round's
// critical path through the adapted async runner; the round itself
// never waits on the autoscaler callback.
func (s *Scheduler) feedAutoscaler(idleByGroup map[string]resource.Vector, failedNotDueToQuota []*sched.TaskRequest) {
	if s.cfg.AutoscalerCallback == nil {
		return
	}

	signal := autoscale.Signal{
		IdleResources:            idleByGroup,
		FailedTasksNotDueToQuota: failedNotDueToQuota,
	}

	s.sideEffects.RunAsync(func() error {
		s.autoscaler.Evaluate(signal, s.wrappedAutoscaleCallback())
		return nil
	}, func(err error) {
		if err != nil {
			log.WithError(err).Warn("autoscale evaluation failed")
		}
	})
}

// wrappedAutoscaleCallback forwards each action to the configured
// callback and counts every dispatched action by direction (before
// the callback runs, so a panicking action is counted too); a panic from a
// misbehaving callback is caught so one bad action never loses the
// rest of the signal's actions.
func (s *Scheduler) wrappedAutoscaleCallback() autoscale.Callback {
	cb := s.cfg.AutoscalerCallback
	return func(action autoscale.Action) {
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("autoscaler callback panicked")
				s.stat.Counter(stats.AutoscaleCallbackErrCounter).Inc(1)
			}
		}()
		if action.Direction == autoscale.ScaleUp {
			s.stat.Counter(stats.AutoscaleScaleUpCounter).Inc(1)
		} else {
			s.stat.Counter(stats.AutoscaleScaleDownCounter).Inc(1)
		}
		cb(action)
	}
}

// rejectOffer dispatches the lease reject callback off the critical
// path through the adapted async runner. The callback is required by
// Config, so this is always non-nil.
func (s *Scheduler) rejectOffer(offerId, hostname string, reason sched.RejectReason) {
	cb := s.cfg.LeaseRejectCallback
	s.sideEffects.RunAsync(func() error {
		cb(offerId, hostname, reason)
		return nil
	}, func(err error) {
		if err != nil {
			log.WithError(err).WithField("offerId", offerId).Warn("reject callback delivery failed")
		}
	})
}

// --- Mutation API ---
//
// Every method below except UnassignTask, GetResAllocs and
// GetAutoScaleRules acquires the same state guard ScheduleOnce does:
// a mutation cannot interleave with an in-flight round, or with
// another mutation, so the registry and quota/autoscale evaluators
// never observe a half-applied change. GetResAllocs and
// GetAutoScaleRules rely on the quota and autoscale evaluators' own
// locks instead.

// AssignTask records taskId as now actually running on hostname,
// outside of any round (e.g. because the cluster manager's own
// launch succeeded). Mirrors the host framework driver's role of
// confirming a tentative assignment became real.
func (s *Scheduler) AssignTask(task *sched.TaskRequest, hostname string) error {
	if !s.guard.tryEnter() {
		return errConcurrentEntry
	}
	defer s.guard.exit()

	h := s.registry.getOrCreate(hostname)
	h.MarkRunning(task.Id, task)
	s.tracker.Assign(task, hostname, time.Now())
	return nil
}

// UnassignTask removes a task from the running set, e.g. because it
// completed or was killed. Safe to call even if the task was never
// tracked. Per the mutation contract this is the one operation that
// never takes the state guard: the tracker is RWMutex-safe for this
// single-point update, and hostByHostname's own lock (registry.go)
// makes the host lookup safe against a concurrently in-flight round,
// so a cluster-manager event thread can call this while ScheduleOnce
// is running.
func (s *Scheduler) UnassignTask(taskId string) error {
	if hostname, ok := s.tracker.HostnameForTask(taskId); ok {
		if h, ok := s.registry.hostByHostname(hostname); ok {
			h.UnmarkRunning(taskId)
		}
	}
	s.tracker.Unassign(taskId)
	return nil
}

// DisableHost excludes hostname from candidate gathering until until.
func (s *Scheduler) DisableHost(hostname string, until time.Time) error {
	if !s.guard.tryEnter() {
		return errConcurrentEntry
	}
	defer s.guard.exit()
	s.registry.getOrCreate(hostname).Disable(until)
	return nil
}

// EnableHost clears any disable hold on hostname.
func (s *Scheduler) EnableHost(hostname string) error {
	if !s.guard.tryEnter() {
		return errConcurrentEntry
	}
	defer s.guard.exit()
	if h, ok := s.registry.hostByHostname(hostname); ok {
		h.Enable()
	}
	return nil
}

// DisableHostByVmId resolves vmId to its current hostname and disables it.
func (s *Scheduler) DisableHostByVmId(vmId string, until time.Time) error {
	if !s.guard.tryEnter() {
		return errConcurrentEntry
	}
	defer s.guard.exit()
	h, ok := s.registry.hostByVmId(vmId)
	if !ok {
		return schederr.Newf(schederr.UnknownVmId, "no host known for vmId %q", vmId)
	}
	h.Disable(until)
	return nil
}

// ExpireLease drops a single held offer and fires the reject callback
// with RejectExplicitExpire.
func (s *Scheduler) ExpireLease(offerId string) error {
	if !s.guard.tryEnter() {
		return errConcurrentEntry
	}
	defer s.guard.exit()
	if hostname, ok := s.registry.expireById(offerId); ok {
		s.rejectOffer(offerId, hostname, sched.RejectExplicitExpire)
	}
	return nil
}

// ExpireAllLeasesByHostname drops every offer held by hostname.
func (s *Scheduler) ExpireAllLeasesByHostname(hostname string) error {
	if !s.guard.tryEnter() {
		return errConcurrentEntry
	}
	defer s.guard.exit()
	for _, id := range s.registry.expireAllForHost(hostname) {
		s.rejectOffer(id, hostname, sched.RejectExplicitExpire)
	}
	return nil
}

// ExpireAllLeasesByVmId resolves vmId to its hostname and drops every
// offer held there.
func (s *Scheduler) ExpireAllLeasesByVmId(vmId string) error {
	if !s.guard.tryEnter() {
		return errConcurrentEntry
	}
	defer s.guard.exit()
	hostname, ok := s.registry.hostnameForVmId(vmId)
	if !ok {
		return schederr.Newf(schederr.UnknownVmId, "no host known for vmId %q", vmId)
	}
	for _, id := range s.registry.expireAllForHost(hostname) {
		s.rejectOffer(id, hostname, sched.RejectExplicitExpire)
	}
	return nil
}

// ExpireAllLeases drops every held offer across every host.
func (s *Scheduler) ExpireAllLeases() error {
	if !s.guard.tryEnter() {
		return errConcurrentEntry
	}
	defer s.guard.exit()
	for _, pair := range s.registry.expireAll() {
		s.rejectOffer(pair.OfferId, pair.Hostname, sched.RejectExplicitExpire)
	}
	return nil
}

// SetActiveGroupAttributeName sets the host attribute the registry
// derives a host's group tag from.
func (s *Scheduler) SetActiveGroupAttributeName(name string) error {
	if !s.guard.tryEnter() {
		return errConcurrentEntry
	}
	defer s.guard.exit()
	s.registry.setActiveGroupAttributeName(name)
	return nil
}

// SetActiveGroups restricts candidate gathering to hosts tagged with
// one of groups; pass nil to restore "all groups active".
func (s *Scheduler) SetActiveGroups(groups []string) error {
	if !s.guard.tryEnter() {
		return errConcurrentEntry
	}
	defer s.guard.exit()
	s.registry.setActiveGroups(groups)
	return nil
}

// AddOrReplaceResAllocs installs (or overwrites) the quota for group.
func (s *Scheduler) AddOrReplaceResAllocs(group string, q quota.Quota) error {
	if !s.guard.tryEnter() {
		return errConcurrentEntry
	}
	defer s.guard.exit()
	s.quota.AddOrReplace(group, q)
	return nil
}

// RemoveResAllocs removes the quota configured for group.
func (s *Scheduler) RemoveResAllocs(group string) error {
	if !s.guard.tryEnter() {
		return errConcurrentEntry
	}
	defer s.guard.exit()
	s.quota.Remove(group)
	return nil
}

// GetResAllocs returns every currently configured per-group quota.
func (s *Scheduler) GetResAllocs() map[string]quota.Quota {
	return s.quota.All()
}

// AddOrReplaceAutoScaleRule validates and installs an autoscale rule.
func (s *Scheduler) AddOrReplaceAutoScaleRule(r autoscale.Rule) error {
	if !s.guard.tryEnter() {
		return errConcurrentEntry
	}
	defer s.guard.exit()
	if err := s.autoscaler.AddOrReplaceRule(r); err != nil {
		return schederr.New(schederr.BadAutoscaleRule, err)
	}
	return nil
}

// RemoveAutoScaleRule removes the rule configured for group.
func (s *Scheduler) RemoveAutoScaleRule(group string) error {
	if !s.guard.tryEnter() {
		return errConcurrentEntry
	}
	defer s.guard.exit()
	s.autoscaler.RemoveRule(group)
	return nil
}

// GetAutoScaleRules returns every currently configured autoscale rule.
func (s *Scheduler) GetAutoScaleRules() map[string]autoscale.Rule {
	return s.autoscaler.Rules()
}

// HostStatus is the point-in-time view of one host's resources and
// occupancy returned by GetHostCurrentStates.
type HostStatus struct {
	Hostname           string
	Group              string
	VmId               string
	Free               resource.Vector
	HasRunningTasks    bool
	Disabled           bool
}

// GetHostCurrentStates reports every known host's current occupancy,
// supplementing the core round-result reporting with the same detail
// the host framework's own console uses to render cluster state. Like
// a mutation, this takes the state guard: it walks the registry's
// host map directly, which is otherwise only ever touched while the
// guard is held.
func (s *Scheduler) GetHostCurrentStates() ([]HostStatus, error) {
	if !s.guard.tryEnter() {
		return nil, errConcurrentEntry
	}
	defer s.guard.exit()

	now := time.Now()
	out := make([]HostStatus, 0, len(s.registry.all()))
	for hostname, h := range s.registry.all() {
		out = append(out, HostStatus{
			Hostname:        hostname,
			Group:           h.Group(),
			VmId:            h.VmId(),
			Free:            h.FreeResources(),
			HasRunningTasks: h.HasPreviouslyAssignedTasks(),
			Disabled:        h.Disabled(now),
		})
	}
	return out, nil
}

// GetResourceStatus reports, per known host and per resource
// dimension, a [used, available] pair: used sums the resource needs
// of tasks confirmed running there via the Mutation API's AssignTask,
// available is what FreeResources currently reports out of the held
// offers. Held offers already exclude running tasks per the driver
// contract, so used and available are not complementary within a
// single offer total; used exists for visibility into a host's
// accounted-for capacity, not for further arithmetic against
// available. Mirrors fenzo's getResourceStatus map of hostname to
// per-resource [used, available].
func (s *Scheduler) GetResourceStatus() (map[string]map[resource.Kind][2]float64, error) {
	if !s.guard.tryEnter() {
		return nil, errConcurrentEntry
	}
	defer s.guard.exit()

	out := make(map[string]map[resource.Kind][2]float64, len(s.registry.all()))
	for hostname, h := range s.registry.all() {
		used := h.RunningResources()
		free := h.FreeResources()
		out[hostname] = map[resource.Kind][2]float64{
			resource.CPU:     {used.CPU, free.CPU},
			resource.Memory:  {used.MemoryMB, free.MemoryMB},
			resource.Network: {used.NetworkMbps, free.NetworkMbps},
			resource.Disk:    {used.DiskMB, free.DiskMB},
			resource.Ports:   {float64(used.Ports), float64(free.Ports)},
		}
	}
	return out, nil
}

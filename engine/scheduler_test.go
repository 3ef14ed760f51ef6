package engine

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/taskfleet/clustersched/autoscale"
	"github.com/taskfleet/clustersched/quota"
	"github.com/taskfleet/clustersched/resource"
	"github.com/taskfleet/clustersched/sched"
	"github.com/taskfleet/clustersched/schederr"
)

func noopReject(offerId, hostname string, reason sched.RejectReason) {}

func newTestScheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	allOpts := append([]Option{WithLeaseRejectCallback(noopReject)}, opts...)
	cfg, err := NewConfig(allOpts...)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	return New(cfg, nil)
}

func offer(id, hostname string, v resource.Vector) sched.Offer {
	return sched.Offer{Id: id, Hostname: hostname, VmId: "vm-" + hostname, Resources: v}
}

func task(id, group string, v resource.Vector) *sched.TaskRequest {
	return &sched.TaskRequest{Id: id, GroupName: group, Resources: v}
}

func TestScheduleOnceSingleHostSingleTask(t *testing.T) {
	s := newTestScheduler(t)
	offers := []sched.Offer{offer("o1", "host1", resource.Vector{CPU: 4, MemoryMB: 4096})}
	requests := []*sched.TaskRequest{task("t1", "", resource.Vector{CPU: 1, MemoryMB: 512})}

	result, err := s.ScheduleOnce(requests, offers)
	if err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	if result.LeasesAdded != 1 {
		t.Errorf("expected 1 lease added, got %d", result.LeasesAdded)
	}
	va, ok := result.PerHostAssignments["host1"]
	if !ok || len(va.Tasks) != 1 {
		t.Fatalf("expected task t1 assigned to host1, got %+v", result.PerHostAssignments)
	}
	if diff := cmp.Diff(requests[0], va.Tasks[0]); diff != "" {
		t.Errorf("assigned task does not match the requested task (-want +got):\n%s", diff)
	}
	if len(result.PerTaskFailures) != 0 {
		t.Errorf("expected no failures, got %+v", result.PerTaskFailures)
	}
}

func TestScheduleOnceInsufficientResourcesFails(t *testing.T) {
	s := newTestScheduler(t)
	offers := []sched.Offer{offer("o1", "host1", resource.Vector{CPU: 1, MemoryMB: 512})}
	requests := []*sched.TaskRequest{task("t1", "", resource.Vector{CPU: 4, MemoryMB: 4096})}

	result, err := s.ScheduleOnce(requests, offers)
	if err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	if len(result.PerHostAssignments) != 0 {
		t.Fatalf("expected no assignment, got %+v", result.PerHostAssignments)
	}
	failures, ok := result.PerTaskFailures["t1"]
	if !ok || len(failures) == 0 {
		t.Fatalf("expected a recorded failure for t1")
	}
}

func TestScheduleOnceDuplicateOfferIsUsageError(t *testing.T) {
	s := newTestScheduler(t)
	offers := []sched.Offer{offer("o1", "host1", resource.Vector{CPU: 4})}
	// Placing a task keeps host1 from being idle, so o1 is still held
	// (not rejected as idle) when the same offer arrives again.
	if _, err := s.ScheduleOnce([]*sched.TaskRequest{task("t0", "", resource.Vector{CPU: 1})}, offers); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	_, err := s.ScheduleOnce(nil, offers)
	if !schederr.Is(err, schederr.DuplicateOffer) {
		t.Fatalf("expected DuplicateOffer usage error, got %v", err)
	}
}

func TestScheduleOnceDuplicateOfferFiresRejectCallback(t *testing.T) {
	rejectedCh := make(chan sched.RejectReason, 1)
	s := newTestScheduler(t, WithLeaseRejectCallback(func(offerId, hostname string, reason sched.RejectReason) {
		rejectedCh <- reason
	}))
	offers := []sched.Offer{offer("o1", "host1", resource.Vector{CPU: 4})}
	// Placing a task keeps host1 from being idle, so o1 is still held
	// (not rejected as idle) when the same offer arrives again.
	if _, err := s.ScheduleOnce([]*sched.TaskRequest{task("t0", "", resource.Vector{CPU: 1})}, offers); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	_, err := s.ScheduleOnce(nil, offers)
	if !schederr.Is(err, schederr.DuplicateOffer) {
		t.Fatalf("expected DuplicateOffer usage error, got %v", err)
	}
	select {
	case reason := <-rejectedCh:
		if reason != sched.RejectDuplicate {
			t.Fatalf("expected RejectDuplicate, got %v", reason)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the duplicate-offer reject callback")
	}
}

func TestScheduleOnceTwoTasksExhaustSingleHost(t *testing.T) {
	s := newTestScheduler(t)
	offers := []sched.Offer{offer("o1", "host1", resource.Vector{CPU: 2})}
	requests := []*sched.TaskRequest{
		task("t1", "", resource.Vector{CPU: 1}),
		task("t2", "", resource.Vector{CPU: 1.5}),
	}
	result, err := s.ScheduleOnce(requests, offers)
	if err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	va := result.PerHostAssignments["host1"]
	if va == nil || len(va.Tasks) != 1 {
		t.Fatalf("expected exactly one of the two tasks to land, got %+v", result.PerHostAssignments)
	}
	if _, failed := result.PerTaskFailures["t2"]; !failed {
		if _, failed := result.PerTaskFailures["t1"]; !failed {
			t.Fatalf("expected one task to fail once host1's capacity is exhausted")
		}
	}
}

func TestScheduleOnceQuotaExceededShortCircuitsGroup(t *testing.T) {
	s := newTestScheduler(t)
	if err := s.AddOrReplaceResAllocs("groupA", quota.Quota{Limit: resource.Vector{CPU: 1}}); err != nil {
		t.Fatalf("AddOrReplaceResAllocs: %v", err)
	}
	offers := []sched.Offer{offer("o1", "host1", resource.Vector{CPU: 10})}
	requests := []*sched.TaskRequest{
		task("tA1", "groupA", resource.Vector{CPU: 0.8}),
		task("tA2", "groupA", resource.Vector{CPU: 0.8}),
		task("tB1", "groupB", resource.Vector{CPU: 1}),
	}
	result, err := s.ScheduleOnce(requests, offers)
	if err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	if _, ok := result.PerTaskFailures["tA2"]; !ok {
		t.Errorf("expected tA2 to fail on quota")
	}
	if va := result.PerHostAssignments["host1"]; va == nil {
		t.Fatalf("expected groupB's unconstrained task to still be assigned")
	} else {
		found := false
		for _, task := range va.Tasks {
			if task.Id == "tB1" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected tB1 to be assigned despite groupA's quota exhaustion")
		}
	}
}

func TestMutationAPIDisableHostExcludesFromCandidates(t *testing.T) {
	s := newTestScheduler(t)
	offers := []sched.Offer{offer("o1", "host1", resource.Vector{CPU: 4})}
	// Placing a task keeps host1 from being idle, so o1 is still held
	// in the next round unless the mutation under test removes it.
	if _, err := s.ScheduleOnce([]*sched.TaskRequest{task("t0", "", resource.Vector{CPU: 1})}, offers); err != nil {
		t.Fatalf("ingest offers: %v", err)
	}
	if err := s.DisableHost("host1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("DisableHost: %v", err)
	}
	result, err := s.ScheduleOnce([]*sched.TaskRequest{task("t1", "", resource.Vector{CPU: 1})}, nil)
	if err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	if len(result.PerHostAssignments) != 0 {
		t.Fatalf("expected disabled host1 to be excluded, got %+v", result.PerHostAssignments)
	}
}

func TestExpireLeaseRemovesOffer(t *testing.T) {
	s := newTestScheduler(t)
	offers := []sched.Offer{offer("o1", "host1", resource.Vector{CPU: 4})}
	// Placing a task keeps host1 from being idle, so o1 is still held
	// in the next round unless the mutation under test removes it.
	if _, err := s.ScheduleOnce([]*sched.TaskRequest{task("t0", "", resource.Vector{CPU: 1})}, offers); err != nil {
		t.Fatalf("ingest offers: %v", err)
	}
	if err := s.ExpireLease("o1"); err != nil {
		t.Fatalf("ExpireLease: %v", err)
	}
	result, err := s.ScheduleOnce([]*sched.TaskRequest{task("t1", "", resource.Vector{CPU: 1})}, nil)
	if err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	if len(result.PerHostAssignments) != 0 {
		t.Fatalf("expected no assignment after the offer was expired, got %+v", result.PerHostAssignments)
	}
}

func TestConcurrentEntryRejected(t *testing.T) {
	s := newTestScheduler(t)
	if !s.guard.tryEnter() {
		t.Fatal("expected first entry to succeed")
	}
	_, err := s.ScheduleOnce(nil, nil)
	if !schederr.Is(err, schederr.ConcurrentEntry) {
		t.Fatalf("expected ConcurrentEntry usage error, got %v", err)
	}
	s.guard.exit()
}

func TestAutoscaleRuleRequiresAttributeName(t *testing.T) {
	_, err := NewConfig(
		WithLeaseRejectCallback(noopReject),
		WithAutoScaleRules([]autoscale.Rule{{Group: "g", MinIdleHostsToKeep: 1, MaxIdleHostsToKeep: 2}}),
	)
	if !schederr.Is(err, schederr.BadAutoscaleRule) {
		t.Fatalf("expected BadAutoscaleRule, got %v", err)
	}
}

func TestConfigRequiresRejectCallback(t *testing.T) {
	_, err := NewConfig()
	if !schederr.Is(err, schederr.BadConfig) {
		t.Fatalf("expected BadConfig, got %v", err)
	}
}

func TestScheduleOnceClearsTentativeAssignmentAcrossRounds(t *testing.T) {
	s := newTestScheduler(t)
	offers := []sched.Offer{offer("o1", "host1", resource.Vector{CPU: 4})}
	result, err := s.ScheduleOnce([]*sched.TaskRequest{task("t1", "", resource.Vector{CPU: 3})}, offers)
	if err != nil {
		t.Fatalf("round 1: %v", err)
	}
	if va := result.PerHostAssignments["host1"]; va == nil || len(va.Tasks) != 1 {
		t.Fatalf("round 1: expected t1 assigned to host1, got %+v", result.PerHostAssignments)
	}

	// The same offer is still held (it was never expired or re-ingested),
	// but round 1's tentative binding of t1 must not still be subtracted:
	// a same-sized task should fit again.
	result, err = s.ScheduleOnce([]*sched.TaskRequest{task("t2", "", resource.Vector{CPU: 3})}, nil)
	if err != nil {
		t.Fatalf("round 2: %v", err)
	}
	va := result.PerHostAssignments["host1"]
	if va == nil || len(va.Tasks) != 1 || va.Tasks[0].Id != "t2" {
		t.Fatalf("round 2: expected t2 to fit once round 1's tentative binding was cleared, got %+v", result.PerHostAssignments)
	}
}

func TestScheduleOnceRejectsIdleHostOffers(t *testing.T) {
	rejectedCh := make(chan sched.RejectReason, 1)
	s := newTestScheduler(t, WithLeaseRejectCallback(func(offerId, hostname string, reason sched.RejectReason) {
		rejectedCh <- reason
	}))
	offers := []sched.Offer{offer("o1", "host1", resource.Vector{CPU: 4})}
	result, err := s.ScheduleOnce(nil, offers)
	if err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	if result.IdleVMs != 1 {
		t.Fatalf("expected host1 to be counted idle, got IdleVMs=%d", result.IdleVMs)
	}
	if result.LeasesRejected != 1 {
		t.Fatalf("expected host1's offer to be rejected as idle, got LeasesRejected=%d", result.LeasesRejected)
	}
	select {
	case reason := <-rejectedCh:
		if reason != sched.RejectIdleHost {
			t.Fatalf("expected RejectIdleHost, got %v", reason)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the idle-host reject callback")
	}
	if h, ok := s.registry.hostByHostname("host1"); !ok || h.HasOffers() {
		t.Fatalf("expected host1's offer to have been removed from the registry")
	}
}

func TestScheduleOnceDoesNotCountAssignedHostAsIdle(t *testing.T) {
	s := newTestScheduler(t)
	offers := []sched.Offer{offer("o1", "host1", resource.Vector{CPU: 4})}
	result, err := s.ScheduleOnce([]*sched.TaskRequest{task("t1", "", resource.Vector{CPU: 1})}, offers)
	if err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	if result.IdleVMs != 0 {
		t.Fatalf("expected host1 to not be counted idle once it received an assignment, got IdleVMs=%d", result.IdleVMs)
	}
	if result.LeasesRejected != 0 {
		t.Fatalf("expected no idle rejection for an assigned host, got LeasesRejected=%d", result.LeasesRejected)
	}
}

func TestUnassignTaskClearsTrackerAndHostRunningSet(t *testing.T) {
	s := newTestScheduler(t)
	t1 := task("t1", "", resource.Vector{CPU: 1})
	if err := s.AssignTask(t1, "host1"); err != nil {
		t.Fatalf("AssignTask: %v", err)
	}
	h, ok := s.registry.hostByHostname("host1")
	if !ok || !h.HasPreviouslyAssignedTasks() {
		t.Fatalf("expected host1 to carry a running task after AssignTask")
	}

	if err := s.UnassignTask("t1"); err != nil {
		t.Fatalf("UnassignTask: %v", err)
	}
	if h.HasPreviouslyAssignedTasks() {
		t.Fatal("expected host1's running set to be cleared after UnassignTask")
	}
	if _, ok := s.tracker.HostnameForTask("t1"); ok {
		t.Fatal("expected the tracker to drop t1 after UnassignTask")
	}
}

func TestUnassignTaskUnknownTaskIsNoop(t *testing.T) {
	s := newTestScheduler(t)
	if err := s.UnassignTask("never-tracked"); err != nil {
		t.Fatalf("expected UnassignTask to tolerate an unknown taskId, got %v", err)
	}
}

func TestUnassignTaskDoesNotRequireStateGuard(t *testing.T) {
	s := newTestScheduler(t)
	if err := s.AssignTask(task("t1", "", resource.Vector{CPU: 1}), "host1"); err != nil {
		t.Fatalf("AssignTask: %v", err)
	}
	if !s.guard.tryEnter() {
		t.Fatal("expected to acquire the guard to simulate an in-flight round")
	}
	defer s.guard.exit()

	if err := s.UnassignTask("t1"); err != nil {
		t.Fatalf("expected UnassignTask to succeed while the guard is held, got %v", err)
	}
}

func TestGetResourceStatusReportsPerHostUsedAndAvailable(t *testing.T) {
	s := newTestScheduler(t)
	offers := []sched.Offer{offer("o1", "host1", resource.Vector{CPU: 4, MemoryMB: 1024})}
	t1 := task("t1", "", resource.Vector{CPU: 1, MemoryMB: 256})
	if _, err := s.ScheduleOnce([]*sched.TaskRequest{t1}, offers); err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	// A round only tentatively binds a task; it is not "used" for
	// reporting purposes until the host framework confirms the launch
	// through the Mutation API.
	if err := s.AssignTask(t1, "host1"); err != nil {
		t.Fatalf("AssignTask: %v", err)
	}

	status, err := s.GetResourceStatus()
	if err != nil {
		t.Fatalf("GetResourceStatus: %v", err)
	}
	byResource, ok := status["host1"]
	if !ok {
		t.Fatalf("expected host1 in the resource status report, got %+v", status)
	}
	cpu := byResource[resource.CPU]
	if cpu[0] != 1 || cpu[1] != 4 {
		t.Fatalf("expected host1 cpu [used, available] = [1, 4], got %v", cpu)
	}
	mem := byResource[resource.Memory]
	if mem[0] != 256 || mem[1] != 1024 {
		t.Fatalf("expected host1 memory [used, available] = [256, 1024], got %v", mem)
	}
}

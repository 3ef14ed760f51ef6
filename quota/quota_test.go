package quota

import (
	"testing"

	"github.com/taskfleet/clustersched/resource"
	"github.com/taskfleet/clustersched/sched"
)

func TestUnconstrainedGroupAlwaysFits(t *testing.T) {
	e := New()
	e.Prepare()
	task := &sched.TaskRequest{GroupName: "unconfigured", Resources: resource.Vector{CPU: 1000}}
	if f := e.HasResAllocs(task); f != nil {
		t.Fatalf("expected no failure for unconfigured group, got %v", f)
	}
}

func TestQuotaExceededByDimension(t *testing.T) {
	e := New()
	e.AddOrReplace("groupA", Quota{Limit: resource.Vector{CPU: 4}})
	e.Prepare()

	task1 := &sched.TaskRequest{GroupName: "groupA", Resources: resource.Vector{CPU: 3}}
	if f := e.HasResAllocs(task1); f != nil {
		t.Fatalf("expected task1 to fit, got %v", f)
	}
	e.Commit(task1)

	task2 := &sched.TaskRequest{GroupName: "groupA", Resources: resource.Vector{CPU: 2}}
	f := e.HasResAllocs(task2)
	if f == nil || f.Kind != sched.FailureQuota || f.ResourceShort != resource.CPU {
		t.Fatalf("expected cpu quota failure for task2, got %v", f)
	}

	task3 := &sched.TaskRequest{GroupName: "groupB", Resources: resource.Vector{CPU: 1}}
	if f := e.HasResAllocs(task3); f != nil {
		t.Fatalf("expected groupB task to bind (scenario 5), got %v", f)
	}
}

func TestTaskGroupFailedShortCircuit(t *testing.T) {
	e := New()
	e.Prepare()
	if e.TaskGroupFailed("groupA") {
		t.Fatal("expected group to not be failed initially")
	}
	e.MarkGroupFailed("groupA")
	if !e.TaskGroupFailed("groupA") {
		t.Fatal("expected group to be marked failed")
	}
	e.Prepare()
	if e.TaskGroupFailed("groupA") {
		t.Fatal("expected Prepare to clear failed-group state for the new round")
	}
}

func TestMaxTasksQuota(t *testing.T) {
	e := New()
	e.AddOrReplace("groupA", Quota{Limit: resource.Vector{CPU: 1000}, MaxTasks: 1})
	e.Prepare()

	task1 := &sched.TaskRequest{GroupName: "groupA"}
	if f := e.HasResAllocs(task1); f != nil {
		t.Fatalf("expected first task to fit, got %v", f)
	}
	e.Commit(task1)

	task2 := &sched.TaskRequest{GroupName: "groupA"}
	if f := e.HasResAllocs(task2); f == nil {
		t.Fatal("expected second task to exceed task-count quota")
	}
}

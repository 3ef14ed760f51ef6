package tracker

import (
	"testing"
	"time"

	"github.com/taskfleet/clustersched/sched"
)

func TestAssignUnassignRoundTrip(t *testing.T) {
	tr := New()
	if tr.Count() != 0 {
		t.Fatal("expected empty tracker")
	}

	task := &sched.TaskRequest{Id: "t1"}
	tr.Assign(task, "h1", time.Now())
	if tr.Count() != 1 {
		t.Fatal("expected one tracked task")
	}
	if host, ok := tr.HostnameForTask("t1"); !ok || host != "h1" {
		t.Fatalf("expected t1 on h1, got %s %v", host, ok)
	}
	if tasks := tr.TasksOnHost("h1"); len(tasks) != 1 || tasks[0] != "t1" {
		t.Fatalf("expected h1 to list t1, got %v", tasks)
	}

	tr.Unassign("t1")
	if tr.Count() != 0 {
		t.Fatal("expected tracker restored to prior (empty) state after unassign")
	}
	if _, ok := tr.HostnameForTask("t1"); ok {
		t.Fatal("expected t1 to be gone")
	}
	if tasks := tr.TasksOnHost("h1"); len(tasks) != 0 {
		t.Fatalf("expected h1's task set to be empty, got %v", tasks)
	}
}

func TestUnassignUnknownIsNoop(t *testing.T) {
	tr := New()
	tr.Unassign("nope") // must not panic
}

func TestReassignMovesHost(t *testing.T) {
	tr := New()
	task := &sched.TaskRequest{Id: "t1"}
	tr.Assign(task, "h1", time.Now())
	tr.Assign(task, "h2", time.Now())

	if host, _ := tr.HostnameForTask("t1"); host != "h2" {
		t.Fatalf("expected t1 to move to h2, got %s", host)
	}
	if tasks := tr.TasksOnHost("h1"); len(tasks) != 0 {
		t.Fatalf("expected h1 to no longer list t1, got %v", tasks)
	}
}

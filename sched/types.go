// Package sched defines the data types the assignment engine reasons
// about: offers, task requests, and the results of a scheduling round.
//
//go:generate mockgen -source=types.go -package=sched -destination=types_mock.go
package sched

import (
	"time"

	"github.com/taskfleet/clustersched/resource"
)

// Offer is an immutable advertisement of available resources on a host,
// as received from the cluster manager. Identified by Id; ingesting two
// offers with the same Id is a usage error.
type Offer struct {
	Id         string
	Hostname   string
	VmId       string
	OfferedAt  time.Time
	Resources  resource.Vector
	Attributes map[string]string
}

// RejectReason names why an offer was returned to the cluster manager
// instead of being bound to a task.
type RejectReason string

const (
	RejectExpired        RejectReason = "expired"
	RejectIdleHost        RejectReason = "idle-host"
	RejectExplicitExpire  RejectReason = "explicit-expire"
	RejectDuplicate       RejectReason = "duplicate"
)

// TaskRequest is a unit of work awaiting placement. It is read-only for
// the duration of a round.
type TaskRequest struct {
	Id                  string
	GroupName           string
	Resources           resource.Vector
	HardConstraints     []HardConstraint
	SoftConstraints     []SoftConstraint
	CustomNamedResources map[string]string
}

// ConstraintResult carries the pass/fail outcome of evaluating a single
// constraint, plus the reason when it failed.
type ConstraintResult struct {
	Name   string
	Passed bool
	Reason string
}

// HardConstraint disqualifies a host outright when it fails. The engine
// treats constraint implementations as opaque plugins.
type HardConstraint interface {
	Name() string
	Evaluate(task *TaskRequest, hostname string, snapshot TrackerSnapshot) ConstraintResult
}

// SoftConstraint contributes a weighted score toward fitness but never
// disqualifies a host.
type SoftConstraint interface {
	Name() string
	Score(task *TaskRequest, hostname string, snapshot TrackerSnapshot) float64
}

// FitnessCalculator scores a (task, host) pair in [0,1]; higher is
// better. Supplied by the host framework; the engine never interprets
// its internals.
type FitnessCalculator func(task *TaskRequest, hostname string, snapshot TrackerSnapshot) float64

// IsGoodEnough decides whether a fitness value is sufficient to
// short-circuit the Assignment Evaluator's search.
type IsGoodEnough func(fitness float64) bool

// TrackerSnapshot is the read-only view of currently running and
// tentatively assigned tasks handed to constraint and fitness plugins.
// Implemented by tracker.Tracker; declared here to avoid an import
// cycle between sched and tracker.
type TrackerSnapshot interface {
	TasksOnHost(hostname string) []string
	HostnameForTask(taskId string) (string, bool)
}

// FailureKind names the dimension an AssignmentResult failed on.
type FailureKind string

const (
	FailureResource   FailureKind = "resource"
	FailureConstraint FailureKind = "constraint"
	FailureQuota      FailureKind = "quota"
)

// AssignmentFailure is a structured, non-fatal reason a task could not
// be bound to a particular host. Assignment failures are always
// surfaced inside a SchedulingResult; they are never returned as errors.
type AssignmentFailure struct {
	Kind          FailureKind
	ResourceShort resource.Kind
	ConstraintName string
	Reason        string
}

// AssignmentResult is the outcome of evaluating one task against one
// host. Successful iff every resource requirement is met and every
// hard constraint passes.
type AssignmentResult struct {
	Task       *TaskRequest
	Hostname   string
	Successful bool
	Failures   []AssignmentFailure
	Fitness    float64
}

// VMAssignmentResult groups the tasks bound to a single host during a
// round, for reporting in a SchedulingResult.
type VMAssignmentResult struct {
	Hostname string
	Tasks    []*TaskRequest
}

// SchedulingResult is the outcome of one call to scheduleOnce.
type SchedulingResult struct {
	PerHostAssignments  map[string]*VMAssignmentResult
	PerTaskFailures      map[string][]AssignmentResult
	LeasesAdded          int
	LeasesRejected       int
	NumAllocationTrials  int
	TotalVMs             int
	IdleVMs              int
	RuntimeMillis        int64
}

// NewSchedulingResult returns an empty, initialized result ready to be
// populated by a round.
func NewSchedulingResult() *SchedulingResult {
	return &SchedulingResult{
		PerHostAssignments: map[string]*VMAssignmentResult{},
		PerTaskFailures:    map[string][]AssignmentResult{},
	}
}

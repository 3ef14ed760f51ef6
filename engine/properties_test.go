// +build property_test

package engine

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/taskfleet/clustersched/resource"
	"github.com/taskfleet/clustersched/sched"
)

// TestResourceSumNeverExceedsCapacity exercises the invariant that the
// sum of a host's bound tasks' resource needs never exceeds what that
// host actually offered, across many randomly generated capacities and
// demand sequences.
func TestResourceSumNeverExceedsCapacity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("assigned CPU never exceeds the offered CPU", prop.ForAll(
		func(capacity int, demands []int) bool {
			s := newPropertyScheduler(t)
			offers := []sched.Offer{offer("o1", "h1", resource.Vector{CPU: float64(capacity)})}

			tasks := make([]*sched.TaskRequest, len(demands))
			for i, d := range demands {
				tasks[i] = task(taskIdForIndex(i), "", resource.Vector{CPU: float64(d)})
			}

			result, err := s.ScheduleOnce(tasks, offers)
			if err != nil {
				return false
			}

			var assigned float64
			if va, ok := result.PerHostAssignments["h1"]; ok {
				for _, tr := range va.Tasks {
					assigned += tr.Resources.CPU
				}
			}
			return assigned <= float64(capacity)+1e-9
		},
		gen.IntRange(1, 64),
		gen.SliceOfN(8, gen.IntRange(1, 16)),
	))

	properties.TestingRun(t)
}

func newPropertyScheduler(t *testing.T) *Scheduler {
	cfg, err := NewConfig(WithLeaseRejectCallback(noopReject))
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	return New(cfg, nil)
}

func taskIdForIndex(i int) string {
	const letters = "abcdefgh"
	return "t-" + string(letters[i%len(letters)])
}

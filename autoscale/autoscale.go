// Package autoscale models the engine's autoscaler collaborator: rules
// describing how many idle hosts a group should keep, and the signal
// the Scheduling Round Orchestrator feeds after each round so the
// cluster-manager driver can grow or shrink the fleet. The autoscaler's
// policy engine itself is out of scope; this package only carries the
// contract and rule bookkeeping.
package autoscale

import (
	"fmt"
	"sync"
	"time"

	"github.com/taskfleet/clustersched/resource"
	"github.com/taskfleet/clustersched/sched"
)

// Direction names whether an Action requests more or fewer hosts.
type Direction int

const (
	ScaleUp Direction = iota
	ScaleDown
)

func (d Direction) String() string {
	if d == ScaleUp {
		return "scale-up"
	}
	return "scale-down"
}

// Rule is the per-host-group autoscale configuration. Rules live
// outside the core evaluation loop but the core forwards scaling
// signals according to them.
type Rule struct {
	Group                    string
	MinIdleHostsToKeep       int
	MaxIdleHostsToKeep       int
	CoolDownSeconds          int
	ShortfallTriggerCapacity resource.Vector
}

// Validate enforces the constraints the Mutation API must reject at
// rule-add time: a minimum of at least one idle host, and a maximum
// no smaller than the minimum.
func (r Rule) Validate() error {
	if r.MinIdleHostsToKeep < 1 {
		return fmt.Errorf("minIdleHostsToKeep must be >= 1, got %d", r.MinIdleHostsToKeep)
	}
	if r.MaxIdleHostsToKeep < r.MinIdleHostsToKeep {
		return fmt.Errorf("maxIdleHostsToKeep (%d) must be >= minIdleHostsToKeep (%d)",
			r.MaxIdleHostsToKeep, r.MinIdleHostsToKeep)
	}
	return nil
}

// Action is a scale-up or scale-down request for one group.
type Action struct {
	Group     string
	Direction Direction
	Count     int
	Reason    string
}

// Callback is invoked with a scale action. The default is a no-op;
// hosts that want a working implementation without writing their own
// may use Webhook.
type Callback func(Action)

// Signal is what the orchestrator feeds the autoscaler after each
// round: idle capacity discovered per group, and the tasks that failed
// placement for reasons other than quota (quota failures are never
// autoscale-eligible, since adding hosts cannot satisfy a quota ceiling).
type Signal struct {
	IdleResources            map[string]resource.Vector
	FailedTasksNotDueToQuota []*sched.TaskRequest
}

// Evaluator holds configured rules and applies them to a Signal,
// invoking a Callback for every action it decides on.
type Evaluator struct {
	mu sync.Mutex

	rules    map[string]Rule
	lastScaledAt map[string]time.Time

	byAttributeName string
	disableShortfallEvaluation bool
}

// New returns an Evaluator with no rules configured. autoScaleByAttributeName
// must be set via SetGroupAttributeName before any rule can be added,
// matching the usage-error contract in the error handling design.
func New() *Evaluator {
	return &Evaluator{
		rules:        map[string]Rule{},
		lastScaledAt: map[string]time.Time{},
	}
}

// SetGroupAttributeName records the host attribute naming the scaling
// group. Required before AddOrReplaceRule will accept any rule.
func (e *Evaluator) SetGroupAttributeName(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byAttributeName = name
}

func (e *Evaluator) GroupAttributeName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.byAttributeName
}

// SetDisableShortfallEvaluation toggles skipping the (expensive)
// evaluation of how much to scale up to absorb currently failing tasks.
func (e *Evaluator) SetDisableShortfallEvaluation(disable bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disableShortfallEvaluation = disable
}

// AddOrReplaceRule validates and installs a rule, replacing any
// existing rule for the same group.
func (e *Evaluator) AddOrReplaceRule(r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.byAttributeName == "" {
		return fmt.Errorf("autoScaleByAttributeName must be set before adding a rule for group %q", r.Group)
	}
	e.rules[r.Group] = r
	return nil
}

// RemoveRule deletes the rule configured for a group, if any.
func (e *Evaluator) RemoveRule(group string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rules, group)
}

// Rules returns a copy of every configured rule.
func (e *Evaluator) Rules() map[string]Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]Rule, len(e.rules))
	for k, v := range e.rules {
		out[k] = v
	}
	return out
}

// Evaluate applies every configured rule to the signal and invokes cb
// for each resulting action. Groups in cooldown are skipped. Intended
// to be called off the round's critical path (see engine.Scheduler,
// which dispatches this through the adapted async.AsyncRunner).
func (e *Evaluator) Evaluate(signal Signal, cb Callback) {
	if cb == nil {
		return
	}
	e.mu.Lock()
	rules := make(map[string]Rule, len(e.rules))
	for k, v := range e.rules {
		rules[k] = v
	}
	skipShortfall := e.disableShortfallEvaluation
	e.mu.Unlock()

	now := time.Now()
	for group, rule := range rules {
		if e.inCooldown(group, rule, now) {
			continue
		}
		idle := signal.IdleResources[group]
		if action, ok := scaleDownAction(group, rule, idle); ok {
			e.markScaled(group, now)
			cb(action)
			continue
		}
		if !skipShortfall {
			if action, ok := shortfallAction(group, rule, signal.FailedTasksNotDueToQuota); ok {
				e.markScaled(group, now)
				cb(action)
			}
		}
	}
}

func (e *Evaluator) inCooldown(group string, rule Rule, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	last, ok := e.lastScaledAt[group]
	if !ok {
		return false
	}
	return now.Sub(last) < time.Duration(rule.CoolDownSeconds)*time.Second
}

func (e *Evaluator) markScaled(group string, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastScaledAt[group] = now
}

// scaleDownAction decides whether idle capacity for a group exceeds
// MaxIdleHostsToKeep "host equivalents". A host equivalent is
// approximated from ShortfallTriggerCapacity when non-zero, else one
// unit of idle resource counts as one host.
func scaleDownAction(group string, rule Rule, idle resource.Vector) (Action, bool) {
	idleHosts := hostEquivalents(idle, rule.ShortfallTriggerCapacity)
	if idleHosts > rule.MaxIdleHostsToKeep {
		return Action{
			Group:     group,
			Direction: ScaleDown,
			Count:     idleHosts - rule.MaxIdleHostsToKeep,
			Reason:    fmt.Sprintf("idle hosts %d exceed max %d", idleHosts, rule.MaxIdleHostsToKeep),
		}, true
	}
	return Action{}, false
}

// shortfallAction estimates how many additional hosts would absorb
// the tasks that failed placement for non-quota reasons.
func shortfallAction(group string, rule Rule, failed []*sched.TaskRequest) (Action, bool) {
	var needed resource.Vector
	count := 0
	for _, t := range failed {
		if t.GroupName != group {
			continue
		}
		needed = needed.Add(t.Resources)
		count++
	}
	if count == 0 {
		return Action{}, false
	}
	hosts := hostEquivalents(needed, rule.ShortfallTriggerCapacity)
	if hosts < 1 {
		hosts = 1
	}
	return Action{
		Group:     group,
		Direction: ScaleUp,
		Count:     hosts,
		Reason:    fmt.Sprintf("%d tasks failed placement, need ~%d hosts", count, hosts),
	}, true
}

func hostEquivalents(v resource.Vector, perHost resource.Vector) int {
	if perHost.CPU <= 0 {
		if v.CPU <= 0 {
			return 0
		}
		return int(v.CPU)
	}
	n := v.CPU / perHost.CPU
	if n <= 0 {
		return 0
	}
	return int(n + 0.999999) // ceil without importing math for one call site
}

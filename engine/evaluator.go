package engine

import (
	"runtime"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/taskfleet/clustersched/common"
	"github.com/taskfleet/clustersched/host"
	"github.com/taskfleet/clustersched/sched"
)

// workerCount sizes the assignment evaluator's worker pool: roughly
// one worker per 30 candidates, capped at the machine's CPU count so
// a huge candidate set never oversubscribes the scheduler.
func workerCount(numCandidates int) int {
	if numCandidates == 0 {
		return 0
	}
	want := (numCandidates + common.DefaultHostsPerEvaluatorWorker - 1) / common.DefaultHostsPerEvaluatorWorker
	if want < 1 {
		want = 1
	}
	if n := runtime.NumCPU(); want > n {
		want = n
	}
	return want
}

func batchHosts(candidates []*host.Host, size int) [][]*host.Host {
	var batches [][]*host.Host
	for i := 0; i < len(candidates); i += size {
		end := i + size
		if end > len(candidates) {
			end = len(candidates)
		}
		batches = append(batches, candidates[i:end])
	}
	return batches
}

// evaluation accumulates one task's results across the worker pool.
type evaluation struct {
	winnerMu sync.Mutex
	winner   *sched.AssignmentResult

	failuresMu sync.Mutex
	failures   []sched.AssignmentResult

	trials     int32
	goodEnough int32

	signalLimiter *rate.Limiter
}

func (e *evaluation) recordSuccess(result sched.AssignmentResult, isGoodEnough sched.IsGoodEnough) {
	e.winnerMu.Lock()
	if e.winner == nil || result.Fitness >= e.winner.Fitness {
		r := result
		e.winner = &r
	}
	e.winnerMu.Unlock()

	if isGoodEnough(result.Fitness) && atomic.CompareAndSwapInt32(&e.goodEnough, 0, 1) {
		if e.signalLimiter.Allow() {
			log.WithFields(log.Fields{
				"hostname": result.Hostname,
				"fitness":  result.Fitness,
			}).Debug("good-enough fit found, draining remaining candidate batches")
		}
	}
}

func (e *evaluation) recordFailures(failures []sched.AssignmentResult) {
	if len(failures) == 0 {
		return
	}
	e.failuresMu.Lock()
	e.failures = append(e.failures, failures...)
	e.failuresMu.Unlock()
}

func (e *evaluation) draining() bool {
	return atomic.LoadInt32(&e.goodEnough) == 1
}

// evaluateTask fans a task out across candidates using a bounded
// worker pool, draining unstarted batches once a good-enough fit is
// found. Workers never block each other; a panic inside a plugin
// (hard constraint, soft constraint, or fitness calculator) is caught
// per batch, logged, and that batch's remaining results are dropped,
// but the worker keeps pulling new batches off the queue.
func evaluateTask(task *sched.TaskRequest, candidates []*host.Host, cfg *Config, snapshot sched.TrackerSnapshot) (*sched.AssignmentResult, []sched.AssignmentResult, int) {
	if len(candidates) == 0 {
		return nil, nil, 0
	}

	eval := &evaluation{signalLimiter: rate.NewLimiter(rate.Limit(5), 1)}
	batches := batchHosts(candidates, common.DefaultHostsPerEvaluatorBatch)
	queue := make(chan []*host.Host, len(batches))
	for _, b := range batches {
		queue <- b
	}
	close(queue)

	numWorkers := workerCount(len(candidates))
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range queue {
				evaluateBatch(task, batch, cfg, snapshot, eval)
			}
		}()
	}
	wg.Wait()

	return eval.winner, eval.failures, int(atomic.LoadInt32(&eval.trials))
}

func evaluateBatch(task *sched.TaskRequest, batch []*host.Host, cfg *Config, snapshot sched.TrackerSnapshot, eval *evaluation) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"task":  task.Id,
				"panic": r,
			}).Error("plugin panicked; dropping this batch's results")
		}
	}()

	if eval.draining() {
		return
	}

	var batchFailures []sched.AssignmentResult
	for _, h := range batch {
		if eval.draining() {
			break
		}
		atomic.AddInt32(&eval.trials, 1)
		result := h.TryTask(task, cfg.FitnessCalculator, snapshot)
		if result.Successful {
			eval.recordSuccess(result, cfg.IsFitnessGoodEnough)
		} else {
			batchFailures = append(batchFailures, result)
		}
	}
	eval.recordFailures(batchFailures)
}

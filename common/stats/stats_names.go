package stats

/*
This file defines all the metrics being collected.   As new metrics are added please follow this pattern.
*/

const (
	/****************************** Round metrics **********************************************/
	/*
		Amount of time it takes the round orchestrator to complete a full scheduleOnce
	*/
	RoundLatency_ms = "roundLatency_ms"

	/*
		the number of candidate-host trials the assignment evaluator ran during a round,
		summed across every task considered
	*/
	RoundAllocationTrialsCounter = "roundAllocationTrialsCounter"

	/*
		the number of tasks successfully bound to a host during a round
	*/
	RoundTasksAssignedCounter = "roundTasksAssignedCounter"

	/*
		the number of tasks that failed placement during a round, for any reason
	*/
	RoundTasksFailedCounter = "roundTasksFailedCounter"

	/*
		the number of offers ingested during a round
	*/
	RoundLeasesAddedCounter = "roundLeasesAddedCounter"

	/*
		the number of offers rejected during a round because they expired or their host was idle
	*/
	RoundLeasesRejectedCounter = "roundLeasesRejectedCounter"

	/*
		the number of hosts known to the registry at the end of a round
	*/
	RoundTotalVMsGauge = "roundTotalVMsGauge"

	/*
		the number of hosts with no tentative or running task at the end of a round
	*/
	RoundIdleVMsGauge = "roundIdleVMsGauge"

	/*
		the number of times a task was rejected purely because its group had exhausted quota
	*/
	RoundQuotaExceededCounter = "roundQuotaExceededCounter"

	/*
		the number of times the state guard turned away a concurrent ScheduleOnce call
	*/
	RoundConcurrentEntryRejectedCounter = "roundConcurrentEntryRejectedCounter"

	/****************************** Evaluator metrics ******************************************/
	/*
		the size of the worker pool the assignment evaluator spun up for a single task
	*/
	EvaluatorWorkerPoolGauge = "evaluatorWorkerPoolGauge"

	/*
		the number of times a worker's plugin call panicked and had its batch dropped
	*/
	EvaluatorPluginPanicCounter = "evaluatorPluginPanicCounter"

	/*
		the number of times the evaluator found a good-enough fit and drained remaining batches
	*/
	EvaluatorGoodEnoughDrainCounter = "evaluatorGoodEnoughDrainCounter"

	/*
		the amount of time spent evaluating a single task across all candidate hosts
	*/
	EvaluatorTaskLatency_ms = "evaluatorTaskLatency_ms"

	/****************************** Autoscale metrics ******************************************/
	/*
		the number of scale-up actions dispatched to the autoscaler callback
	*/
	AutoscaleScaleUpCounter = "autoscaleScaleUpCounter"

	/*
		the number of scale-down actions dispatched to the autoscaler callback
	*/
	AutoscaleScaleDownCounter = "autoscaleScaleDownCounter"

	/*
		the number of times an autoscale action's delivery to the callback failed
	*/
	AutoscaleCallbackErrCounter = "autoscaleCallbackErrCounter"

	/****************************** Registry metrics *******************************************/
	/*
		the number of hosts reclaimed by the periodic idle-host sweep
	*/
	RegistrySweptHostsCounter = "registrySweptHostsCounter"

	/*
		the number of hosts currently disabled
	*/
	RegistryDisabledHostsGauge = "registryDisabledHostsGauge"
)

package config

type WorkerKeyStruct struct {
	PersistResultsQueue     string
	RetryDailyAttemptsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistResultsQueue:     "persist_results_queue",
	RetryDailyAttemptsQueue: "retry_daily_attempts_queue",
}

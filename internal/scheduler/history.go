package scheduler

import "time"

// HistoryRecorder persists one row per completed job run. Implementations:
// internal/database.JobHistoryRepo.
type HistoryRecorder interface {
	RecordRun(jobName string, started, finished time.Time, runErr error) error
}

// historyJob wraps a Job so every run is recorded via recorder, in
// addition to running normally. A history-write failure is logged-by-the-
// caller's Runner like any other job error would be, never masking the
// wrapped job's own result.
type historyJob struct {
	inner    Job
	recorder HistoryRecorder
}

// WithHistory wraps job so every Run is recorded by recorder.
func WithHistory(job Job, recorder HistoryRecorder) Job {
	if recorder == nil {
		return job
	}
	return &historyJob{inner: job, recorder: recorder}
}

func (h *historyJob) Name() string { return h.inner.Name() }

func (h *historyJob) Run() error {
	start := time.Now()
	err := h.inner.Run()
	if recErr := h.recorder.RecordRun(h.inner.Name(), start, time.Now(), err); recErr != nil && err == nil {
		return recErr
	}
	return err
}

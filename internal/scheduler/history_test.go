package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRun struct {
	jobName string
	runErr  error
}

type fakeRecorder struct {
	runs []recordedRun
}

func (f *fakeRecorder) RecordRun(jobName string, started, finished time.Time, runErr error) error {
	f.runs = append(f.runs, recordedRun{jobName: jobName, runErr: runErr})
	return nil
}

func TestWithHistory_RecordsSuccessAndFailure(t *testing.T) {
	rec := &fakeRecorder{}
	ok := WithHistory(&countingJob{name: "ok"}, rec)
	require.NoError(t, ok.Run())

	bad := WithHistory(failingJob{}, rec)
	require.Error(t, bad.Run())

	require.Len(t, rec.runs, 2)
	assert.Equal(t, "ok", rec.runs[0].jobName)
	assert.NoError(t, rec.runs[0].runErr)
	assert.Equal(t, "fails", rec.runs[1].jobName)
	assert.Error(t, rec.runs[1].runErr)
}

func TestWithHistory_NilRecorderIsNoop(t *testing.T) {
	job := &countingJob{name: "passthrough"}
	wrapped := WithHistory(job, nil)
	assert.Same(t, Job(job), wrapped)
}

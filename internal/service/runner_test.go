package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okarhu/pipewatch/internal/engine"
	"github.com/okarhu/pipewatch/internal/executor"
	"github.com/okarhu/pipewatch/internal/pipeline"
	"github.com/okarhu/pipewatch/internal/store"
	"github.com/okarhu/pipewatch/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockRunStore struct {
	mock.Mock
}

func (m *MockRunStore) CreateRun(ctx context.Context, repository, ref string) (*store.Run, error) {
	args := m.Called(ctx, repository, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Run), args.Error(1)
}

func (m *MockRunStore) ReadRunByID(ctx context.Context, id int64) (*store.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Run), args.Error(1)
}

func (m *MockRunStore) UpdateRunStartedOn(
	ctx context.Context,
	id int64,
	commitID string,
	status store.RunStatus,
	startedOn *time.Time,
) error {
	args := m.Called(ctx, id, commitID, status, startedOn)
	return args.Error(0)
}

func (m *MockRunStore) UpdateRunEndedOn(
	ctx context.Context,
	id int64,
	status store.RunStatus,
	artifacts *string,
	endedOn *time.Time,
) error {
	args := m.Called(ctx, id, status, artifacts, endedOn)
	return args.Error(0)
}

func (m *MockRunStore) AppendRunOutput(ctx context.Context, id int64, out string) error {
	args := m.Called(ctx, id, out)
	return args.Error(0)
}

func (m *MockRunStore) InsertStageResults(
	ctx context.Context,
	runID int64,
	results []store.StageResult,
) error {
	args := m.Called(ctx, runID, results)
	return args.Error(0)
}

func (m *MockRunStore) ListRunStageResults(
	ctx context.Context,
	runID int64,
) ([]store.StageResult, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).([]store.StageResult), args.Error(1)
}

func (m *MockRunStore) ListRepositoryRuns(
	ctx context.Context,
	repository string,
	limit int64,
) ([]store.Run, error) {
	args := m.Called(ctx, repository, limit)
	return args.Get(0).([]store.Run), args.Error(1)
}

func (m *MockRunStore) DeleteRun(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockSyncer struct {
	mock.Mock
	locks *workspace.LockMap[string]
}

func NewMockSyncer() *MockSyncer {
	return &MockSyncer{locks: workspace.NewLockMap[string]()}
}

func (m *MockSyncer) Sync(repository, ref string) (*workspace.Workspace, error) {
	args := m.Called(repository, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*workspace.Workspace), args.Error(1)
}

func (m *MockSyncer) Lock(repository string) *sync.Mutex {
	return m.locks.Get(repository)
}

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Run(
	ctx context.Context,
	script, dir string,
	timeout time.Duration,
) (executor.Result, error) {
	args := m.Called(ctx, script, dir, timeout)
	return args.Get(0).(executor.Result), args.Error(1)
}

func writePipelineFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "pipewatch.yml")
	assert.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

const passingPipeline = `stages:
  - stage: Build
    steps:
      - step: compile
        script: echo build
  - stage: Deploy
    steps:
      - step: release
        script: echo deploy
`

func TestRunner_Process(t *testing.T) {
	t.Run("success - run persisted through its lifecycle", func(t *testing.T) {
		// arrange
		run := &store.Run{RunID: 7, Repository: "https://github.com/okarhu/sample-app", Ref: "main"}
		ws := &workspace.Workspace{Path: "/tmp/ws", Commit: "abc123"}
		mockStore := new(MockRunStore)
		mockSyncer := NewMockSyncer()
		mockExec := new(MockExecutor)
		mockSyncer.On("Sync", run.Repository, "main").Return(ws, nil).Once()
		mockStore.On("UpdateRunStartedOn",
			mock.Anything, run.RunID, "abc123", store.StatusRunning, mock.Anything).
			Return(nil).Once()
		mockStore.On("AppendRunOutput", mock.Anything, run.RunID, mock.Anything).Return(nil)
		mockExec.On("Run", mock.Anything, mock.Anything, "/tmp/ws", mock.Anything).
			Return(executor.Result{ExitCode: 0, Output: "ok\n"}, nil).Twice()
		mockStore.On("InsertStageResults", mock.Anything, run.RunID,
			mock.MatchedBy(func(results []store.StageResult) bool {
				return len(results) == 2 &&
					results[0].Status == store.StagePassed &&
					results[1].Status == store.StagePassed
			})).Return(nil).Once()
		mockStore.On("UpdateRunEndedOn",
			mock.Anything, run.RunID, store.StatusPassed, (*string)(nil), mock.Anything).
			Return(nil).Once()
		runner := NewRunner(mockStore, mockSyncer, mockExec, time.Minute)

		// act
		result, err := runner.Process(context.Background(), &RunRequest{
			Run:          run,
			PipelinePath: writePipelineFile(t, passingPipeline),
		})

		// assert
		assert.NoError(t, err)
		assert.Equal(t, engine.OutcomePassed, result.Outcome)
		mockStore.AssertExpectations(t)
		mockSyncer.AssertExpectations(t)
	})
	t.Run("success - failed stage ends the run as failed", func(t *testing.T) {
		// arrange
		run := &store.Run{RunID: 8, Repository: "https://github.com/okarhu/sample-app", Ref: "main"}
		ws := &workspace.Workspace{Path: "/tmp/ws", Commit: "abc123"}
		mockStore := new(MockRunStore)
		mockSyncer := NewMockSyncer()
		mockExec := new(MockExecutor)
		mockSyncer.On("Sync", mock.Anything, mock.Anything).Return(ws, nil)
		mockStore.On("UpdateRunStartedOn",
			mock.Anything, run.RunID, mock.Anything, store.StatusRunning, mock.Anything).
			Return(nil)
		mockStore.On("AppendRunOutput", mock.Anything, run.RunID, mock.Anything).Return(nil)
		mockExec.On("Run", mock.Anything, "echo build", mock.Anything, mock.Anything).
			Return(executor.Result{ExitCode: 1}, nil).Once()
		mockStore.On("InsertStageResults", mock.Anything, run.RunID,
			mock.MatchedBy(func(results []store.StageResult) bool {
				return len(results) == 2 &&
					results[0].Status == store.StageFailed &&
					results[1].Status == store.StageSkipped
			})).Return(nil).Once()
		mockStore.On("UpdateRunEndedOn",
			mock.Anything, run.RunID, store.StatusFailed, (*string)(nil), mock.Anything).
			Return(nil).Once()
		runner := NewRunner(mockStore, mockSyncer, mockExec, time.Minute)

		// act
		result, err := runner.Process(context.Background(), &RunRequest{
			Run:          run,
			PipelinePath: writePipelineFile(t, passingPipeline),
		})

		// assert
		assert.NoError(t, err)
		assert.Equal(t, engine.OutcomeFailed, result.Outcome)
		mockStore.AssertExpectations(t)
	})
	t.Run("failure - malformed script never syncs the workspace", func(t *testing.T) {
		// arrange
		mockStore := new(MockRunStore)
		mockSyncer := NewMockSyncer()
		runner := NewRunner(mockStore, mockSyncer, new(MockExecutor), time.Minute)

		// act
		result, err := runner.Process(context.Background(), &RunRequest{
			Run:          &store.Run{RunID: 9, Repository: "repo", Ref: "main"},
			PipelinePath: writePipelineFile(t, "stages: []\n"),
		})

		// assert
		assert.Error(t, err)
		assert.Nil(t, result)
		var defErr *pipeline.DefinitionError
		assert.True(t, errors.As(err, &defErr))
		mockSyncer.AssertNotCalled(t, "Sync", mock.Anything, mock.Anything)
	})
	t.Run("failure - sync error propagates before any run update", func(t *testing.T) {
		// arrange
		mockStore := new(MockRunStore)
		mockSyncer := NewMockSyncer()
		mockSyncer.On("Sync", mock.Anything, mock.Anything).Return(nil, assert.AnError)
		runner := NewRunner(mockStore, mockSyncer, new(MockExecutor), time.Minute)

		// act
		result, err := runner.Process(context.Background(), &RunRequest{
			Run:          &store.Run{RunID: 10, Repository: "repo", Ref: "main"},
			PipelinePath: writePipelineFile(t, passingPipeline),
		})

		// assert
		assert.Error(t, err)
		assert.Nil(t, result)
		mockStore.AssertNotCalled(t, "UpdateRunStartedOn",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRunQueue(t *testing.T) {
	t.Run("failure - full queue rejects the run", func(t *testing.T) {
		// arrange
		rq := NewRunQueue(NewRunner(new(MockRunStore), NewMockSyncer(), new(MockExecutor), time.Minute), 1)
		req := &RunRequest{Run: &store.Run{RunID: 1, Repository: "repo", Ref: "main"}}

		// act
		err1 := rq.Enqueue(req)
		err2 := rq.Enqueue(req)

		// assert
		assert.NoError(t, err1)
		assert.Error(t, err2)
		var fullErr *ErrRunQueueFull
		assert.True(t, errors.As(err2, &fullErr))
	})
	t.Run("success - queued run is processed", func(t *testing.T) {
		// arrange
		run := &store.Run{RunID: 11, Repository: "https://github.com/okarhu/sample-app", Ref: "main"}
		ws := &workspace.Workspace{Path: "/tmp/ws", Commit: "abc123"}
		mockStore := new(MockRunStore)
		mockSyncer := NewMockSyncer()
		mockExec := new(MockExecutor)
		mockSyncer.On("Sync", mock.Anything, mock.Anything).Return(ws, nil)
		mockStore.On("UpdateRunStartedOn",
			mock.Anything, run.RunID, mock.Anything, store.StatusRunning, mock.Anything).
			Return(nil)
		mockStore.On("AppendRunOutput", mock.Anything, run.RunID, mock.Anything).Return(nil)
		mockExec.On("Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(executor.Result{ExitCode: 0}, nil)
		mockStore.On("InsertStageResults", mock.Anything, run.RunID, mock.Anything).Return(nil)
		processed := make(chan struct{})
		mockStore.On("UpdateRunEndedOn",
			mock.Anything, run.RunID, store.StatusPassed, (*string)(nil), mock.Anything).
			Run(func(mock.Arguments) { close(processed) }).
			Return(nil).Once()
		rq := NewRunQueue(NewRunner(mockStore, mockSyncer, mockExec, time.Minute), 1)
		go rq.Run()
		defer rq.Shutdown()

		// act
		err := rq.Enqueue(&RunRequest{
			Run:          run,
			PipelinePath: writePipelineFile(t, passingPipeline),
		})

		// assert
		assert.NoError(t, err)
		select {
		case <-processed:
		case <-time.After(5 * time.Second):
			t.Fatal("queued run was not processed")
		}
	})
}

func TestLocalCollector_Collect(t *testing.T) {
	t.Run("success - declared artifacts archived", func(t *testing.T) {
		// arrange
		wsDir := t.TempDir()
		assert.NoError(t, os.MkdirAll(filepath.Join(wsDir, "dist"), 0o750))
		assert.NoError(t, os.WriteFile(
			filepath.Join(wsDir, "dist", "app.bin"), []byte("binary"), 0o600))
		ps := &pipeline.Script{
			Stages: []pipeline.Stage{
				{Stage: "Build", Steps: []pipeline.Step{{Script: "make"}}, Artifacts: "dist"},
			},
		}
		root := t.TempDir()
		collector := NewLocalCollector(root)

		// act
		archive, err := collector.Collect(ps, &workspace.Workspace{Path: wsDir}, 42)

		// assert
		assert.NoError(t, err)
		assert.NotNil(t, archive)
		info, statErr := os.Stat(*archive)
		assert.NoError(t, statErr)
		assert.True(t, info.Size() > 0)
	})
	t.Run("success - no declared artifacts collects nothing", func(t *testing.T) {
		// arrange
		ps := &pipeline.Script{
			Stages: []pipeline.Stage{
				{Stage: "Build", Steps: []pipeline.Step{{Script: "make"}}},
			},
		}
		collector := NewLocalCollector(t.TempDir())

		// act
		archive, err := collector.Collect(ps, &workspace.Workspace{Path: t.TempDir()}, 43)

		// assert
		assert.NoError(t, err)
		assert.Nil(t, archive)
	})
}

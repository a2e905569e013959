package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/okarhu/pipewatch/internal"
)

type RunSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewRunSQLiteStore(rdb, rwdb *sql.DB) *RunSQLiteStore {
	return &RunSQLiteStore{rdb, rwdb}
}

func (store *RunSQLiteStore) CreateRun(
	ctx context.Context,
	repository, ref string,
) (*Run, error) {
	r := &Run{
		Repository: repository,
		Ref:        ref,
		Status:     StatusQueued,
	}
	query := `insert into runs (
		repository,
		ref,
		status
	)
	values ($1, $2, $3)
	returning run_id, created_on`
	if err := sqlscan.Get(ctx, store.rwdb, r, query, r.Repository, r.Ref, r.Status); err != nil {
		return nil, err
	}
	return r, nil
}

func (store *RunSQLiteStore) ReadRunByID(ctx context.Context, id int64) (*Run, error) {
	r := &Run{RunID: id}
	query := "select * from runs where run_id = $1"
	if err := sqlscan.Get(ctx, store.rdb, r, query, r.RunID); err != nil {
		return nil, err
	}
	return r, nil
}

func (store *RunSQLiteStore) UpdateRunStartedOn(
	ctx context.Context,
	id int64,
	commitID string,
	status RunStatus,
	startedOn *time.Time,
) error {
	query := `update runs
	set commit_id = $1,
		status = $2,
		started_on = $3
	where run_id = $4`
	_, err := store.rwdb.ExecContext(
		ctx, query,
		commitID,
		status,
		startedOn.Format(internal.DBTimestampLayout),
		id,
	)
	return err
}

func (store *RunSQLiteStore) UpdateRunEndedOn(
	ctx context.Context,
	id int64,
	status RunStatus,
	artifacts *string,
	endedOn *time.Time,
) error {
	query := `update runs
	set status = $1,
		artifacts = $2,
		ended_on = $3
	where run_id = $4`
	_, err := store.rwdb.ExecContext(
		ctx, query,
		status,
		artifacts,
		endedOn.Format(internal.DBTimestampLayout),
		id,
	)
	return err
}

func (store *RunSQLiteStore) AppendRunOutput(ctx context.Context, id int64, out string) error {
	tx, err := store.rwdb.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r := &Run{RunID: id}
	readQuery := `select * from runs where run_id = $1`
	err = sqlscan.Get(ctx, tx, r, readQuery, r.RunID)
	if err != nil {
		return err
	}

	var existingOutput string
	if r.Output != nil {
		existingOutput = *r.Output
	}
	updateQuery := `update runs
	set output = $1
	where run_id = $2`
	_, err = tx.ExecContext(ctx, updateQuery, existingOutput+out, r.RunID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (store *RunSQLiteStore) InsertStageResults(
	ctx context.Context,
	runID int64,
	results []StageResult,
) error {
	tx, err := store.rwdb.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `insert into stage_results (
		result_run_id,
		position,
		stage,
		status,
		exit_code,
		output
	)
	values ($1, $2, $3, $4, $5, $6)`
	for i, sr := range results {
		_, err = tx.ExecContext(
			ctx, query,
			runID,
			i,
			sr.Stage,
			sr.Status,
			sr.ExitCode,
			sr.Output,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (store *RunSQLiteStore) ListRunStageResults(
	ctx context.Context,
	runID int64,
) ([]StageResult, error) {
	query := `select * from stage_results
	where result_run_id = $1
	order by position`
	results := make([]StageResult, 0)
	err := sqlscan.Select(ctx, store.rdb, &results, query, runID)
	return results, err
}

func (store *RunSQLiteStore) ListRepositoryRuns(
	ctx context.Context,
	repository string,
	limit int64,
) ([]Run, error) {
	query := `select * from runs
	where repository = $1
	order by created_on desc limit $2`
	runs := make([]Run, 0)
	err := sqlscan.Select(ctx, store.rdb, &runs, query, repository, limit)
	return runs, err
}

func (store *RunSQLiteStore) DeleteRun(ctx context.Context, id int64) error {
	query := "delete from runs where run_id = $1"
	_, err := store.rwdb.ExecContext(ctx, query, id)
	return err
}

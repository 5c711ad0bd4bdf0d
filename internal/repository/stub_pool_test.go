package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubPool struct {
	execSQL   []string
	execArgs  [][]any
	execTag   pgconn.CommandTag
	execErr   error
	queryArgs []any
	queryErr  error
	rowsData  [][]any
	rowValue  []any
	rowErr    error

	batchResults *stubBatchResults
	queuedBatch  *pgx.Batch
}

func (s *stubPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.execSQL = append(s.execSQL, sql)
	s.execArgs = append(s.execArgs, args)
	return s.execTag, s.execErr
}

func (s *stubPool) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	s.queuedBatch = b
	if s.batchResults == nil {
		s.batchResults = &stubBatchResults{}
	}
	return s.batchResults
}

func (s *stubPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	s.queryArgs = args
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return &stubRows{data: s.rowsData}, nil
}

func (s *stubPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	s.queryArgs = args
	return &stubRow{values: s.rowValue, err: s.rowErr}
}

type stubBatchResults struct {
	execCalls int
	execErr   error
}

func (s *stubBatchResults) Exec() (pgconn.CommandTag, error) {
	s.execCalls++
	return pgconn.CommandTag{}, s.execErr
}

func (s *stubBatchResults) Query() (pgx.Rows, error) { return &stubRows{}, nil }

func (s *stubBatchResults) QueryRow() pgx.Row { return &stubRow{} }

func (s *stubBatchResults) Close() error { return nil }

type stubRows struct {
	data [][]any
	idx  int
}

func (r *stubRows) Close() {}

func (r *stubRows) Err() error { return nil }

func (r *stubRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *stubRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.data) {
		return fmt.Errorf("invalid scan index")
	}
	return assign(r.data[r.idx-1], dest)
}

func (r *stubRows) Values() ([]any, error) { return nil, nil }

func (r *stubRows) RawValues() [][]byte { return nil }

func (r *stubRows) Conn() *pgx.Conn { return nil }

type stubRow struct {
	values []any
	err    error
}

func (r *stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.values, dest)
}

func assign(row []any, dest []any) error {
	if len(row) < len(dest) {
		return fmt.Errorf("row has %d values, want %d", len(row), len(dest))
	}
	for i, d := range dest {
		switch ptr := d.(type) {
		case *string:
			*ptr = row[i].(string)
		case *int64:
			*ptr = row[i].(int64)
		case *bool:
			*ptr = row[i].(bool)
		case *time.Time:
			*ptr = row[i].(time.Time)
		case *[]string:
			*ptr = row[i].([]string)
		default:
			return fmt.Errorf("unsupported dest type %T", d)
		}
	}
	return nil
}

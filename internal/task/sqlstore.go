package task

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"time"

	sq "github.com/huandu/go-sqlbuilder"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/wudi/readease/internal/sql"
)

var taskColumns = []string{"id", "type", "status", "file_path", "model_size", "options", "result", "error", "created_at", "updated_at"}

// SQLStore keeps tasks in sqlite3 or postgres.
type SQLStore struct {
	log zerolog.Logger
	sdb *sql.DB
}

func NewSQLStore(ctx context.Context, log zerolog.Logger, sdb *sql.DB) (*SQLStore, error) {
	s := &SQLStore{log: log, sdb: sdb}
	if err := s.setup(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return s, nil
}

func (s *SQLStore) Flavor() sq.Flavor {
	switch s.sdb.Type() {
	case sql.Postgres:
		return sq.PostgreSQL
	case sql.Sqlite3:
		return sq.SQLite
	}

	return sq.PostgreSQL
}

func (s *SQLStore) exec(tx *sql.Tx, rq sq.Builder) (stdsql.Result, error) {
	q, args := rq.BuildWithFlavor(s.Flavor())

	r, err := tx.Exec(q, args...)
	return r, errors.WithStack(err)
}

func (s *SQLStore) query(tx *sql.Tx, rq sq.Builder) (*stdsql.Rows, error) {
	q, args := rq.BuildWithFlavor(s.Flavor())

	r, err := tx.Query(q, args...)
	return r, errors.WithStack(err)
}

func (s *SQLStore) setup(ctx context.Context) error {
	ct := sq.NewCreateTableBuilder()
	ct.CreateTable(tableTask).IfNotExists().
		Define("id", "varchar", "NOT NULL", "PRIMARY KEY").
		Define("type", "varchar", "NOT NULL").
		Define("status", "varchar", "NOT NULL").
		Define("file_path", "varchar", "NOT NULL").
		Define("model_size", "varchar", "NOT NULL").
		Define("options", "text", "NOT NULL").
		Define("result", "text").
		Define("error", "text").
		Define("created_at", "timestamp", "NOT NULL").
		Define("updated_at", "timestamp", "NOT NULL")

	q, _ := ct.BuildWithFlavor(s.Flavor())
	err := s.sdb.Do(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(q); err != nil {
			return errors.Wrapf(err, "failed to create %s table", tableTask)
		}
		if _, err := tx.Exec("create index if not exists task_status_idx on task (status)"); err != nil {
			return errors.Wrapf(err, "failed to create %s status index", tableTask)
		}
		return nil
	})
	return errors.WithStack(err)
}

func marshalColumns(t *Task) (string, stdsql.NullString, error) {
	opts, err := json.Marshal(t.Options)
	if err != nil {
		return "", stdsql.NullString{}, errors.WithStack(err)
	}
	var res stdsql.NullString
	if t.Result != nil {
		data, err := json.Marshal(t.Result)
		if err != nil {
			return "", stdsql.NullString{}, errors.WithStack(err)
		}
		res = stdsql.NullString{String: string(data), Valid: true}
	}
	return string(opts), res, nil
}

func (s *SQLStore) Create(ctx context.Context, t *Task) error {
	opts, res, err := marshalColumns(t)
	if err != nil {
		return err
	}
	q := sq.NewInsertBuilder()
	q.InsertInto(tableTask).Cols(taskColumns...).
		Values(t.ID, string(t.Type), string(t.Status), t.FilePath, t.ModelSize, opts, res, t.Error, t.CreatedAt, t.UpdatedAt)

	err = s.sdb.Do(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(tx, q); err != nil {
			return errors.Wrapf(err, "failed to insert task %q", t.ID)
		}
		return nil
	})
	return errors.WithStack(err)
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Task, error) {
	var t *Task
	err := s.sdb.Do(ctx, func(tx *sql.Tx) error {
		q := sq.NewSelectBuilder()
		q.Select(taskColumns...).From(tableTask).Where(q.E("id", id))

		tasks, err := s.fetchTasks(tx, q)
		if err != nil {
			return errors.WithStack(err)
		}
		if len(tasks) > 1 {
			return errors.Errorf("too many rows returned")
		}
		if len(tasks) == 1 {
			t = tasks[0]
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if t == nil {
		return nil, errors.WithStack(ErrNotExist)
	}
	return t, nil
}

func (s *SQLStore) Update(ctx context.Context, t *Task) error {
	opts, res, err := marshalColumns(t)
	if err != nil {
		return err
	}
	q := sq.NewUpdateBuilder()
	q.Update(tableTask).Set(
		q.Assign("status", string(t.Status)),
		q.Assign("options", opts),
		q.Assign("result", res),
		q.Assign("error", t.Error),
		q.Assign("updated_at", t.UpdatedAt),
	).Where(q.E("id", t.ID))

	err = s.sdb.Do(ctx, func(tx *sql.Tx) error {
		r, err := s.exec(tx, q)
		if err != nil {
			return errors.Wrapf(err, "failed to update task %q", t.ID)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return errors.WithStack(err)
		}
		if n == 0 {
			return errors.WithStack(ErrNotExist)
		}
		return nil
	})
	return errors.WithStack(err)
}

func (s *SQLStore) FailInterrupted(ctx context.Context, msg string) (int, error) {
	q := sq.NewUpdateBuilder()
	q.Update(tableTask).Set(
		q.Assign("status", string(StatusFailed)),
		q.Assign("error", msg),
		q.Assign("updated_at", time.Now()),
	).Where(q.E("status", string(StatusProcessing)))

	var n int64
	err := s.sdb.Do(ctx, func(tx *sql.Tx) error {
		r, err := s.exec(tx, q)
		if err != nil {
			return errors.Wrapf(err, "failed to fail interrupted tasks")
		}
		n, err = r.RowsAffected()
		return errors.WithStack(err)
	})
	return int(n), errors.WithStack(err)
}

func (s *SQLStore) Close() error {
	return s.sdb.Close()
}

func (s *SQLStore) fetchTasks(tx *sql.Tx, q sq.Builder) ([]*Task, error) {
	rows, err := s.query(tx, q)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		var (
			t       Task
			typ     string
			status  string
			opts    string
			res     stdsql.NullString
			taskErr stdsql.NullString
		)
		if err := rows.Scan(&t.ID, &typ, &status, &t.FilePath, &t.ModelSize, &opts, &res, &taskErr, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan rows")
		}
		t.Type = Type(typ)
		t.Status = Status(status)
		t.Error = taskErr.String
		if err := json.Unmarshal([]byte(opts), &t.Options); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal options of task %q", t.ID)
		}
		if res.Valid {
			if err := json.Unmarshal([]byte(res.String), &t.Result); err != nil {
				return nil, errors.Wrapf(err, "failed to unmarshal result of task %q", t.ID)
			}
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	return tasks, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dotcommander/asanasense/internal/sensor"
)

// timeLayout keeps a fixed width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Cycle is one journaled update cycle.
type Cycle struct {
	RunID      string          `json:"run_id"`
	SensorName string          `json:"sensor_name"`
	Status     sensor.Status   `json:"status"`
	TaskCount  int             `json:"task_count"`
	State      json.RawMessage `json:"state,omitempty"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Journal appends cycle outcomes to SQLite. It is write-mostly: the sensor
// never reads it back, so restarts always begin from an empty snapshot.
type Journal struct {
	db *sql.DB
}

// NewJournal wraps a database opened by InitDBWithPath.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// SchemaVersion reports the applied migration version of the journal.
func (j *Journal) SchemaVersion() (int64, error) {
	return SchemaVersion(j.db)
}

// Record implements sensor.Recorder.
func (j *Journal) Record(ctx context.Context, o sensor.Outcome, snap sensor.Snapshot) error {
	state, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	attrs, err := json.Marshal(snap.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}

	var errMsg sql.NullString
	if msg := o.ErrorMessage(); msg != "" {
		errMsg = sql.NullString{String: msg, Valid: true}
	}

	return Transact(ctx, j.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cycles (run_id, sensor_name, status, task_count, state, attributes, error, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, o.RunID, snap.Name, string(o.Status), o.TaskCount, string(state), string(attrs), errMsg,
			o.StartedAt.UTC().Format(timeLayout), o.FinishedAt.UTC().Format(timeLayout))
		if err != nil {
			return fmt.Errorf("failed to insert cycle: %w", err)
		}
		return nil
	})
}

type ListCyclesParams struct {
	SensorName string
	Status     sensor.Status
	Limit      int
}

// ListCycles returns the most recent cycles first.
func (j *Journal) ListCycles(ctx context.Context, p ListCyclesParams) ([]*Cycle, error) {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 1000 {
		p.Limit = 1000
	}

	where := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if p.SensorName != "" {
		where = append(where, "sensor_name = ?")
		args = append(args, p.SensorName)
	}
	if p.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(p.Status))
	}

	query := `
		SELECT run_id, sensor_name, status, task_count, state, attributes, error, started_at, finished_at
		FROM cycles
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, rowid DESC LIMIT ?"
	args = append(args, p.Limit)

	var out []*Cycle
	err := RetryWithBackoff(ctx, func() error {
		rows, err := j.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to list cycles: %w", err)
		}
		defer func() { _ = rows.Close() }()

		out = make([]*Cycle, 0)
		for rows.Next() {
			c, err := scanCycle(rows)
			if err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountCycles returns the number of journaled cycles per status.
func (j *Journal) CountCycles(ctx context.Context) (map[sensor.Status]int, error) {
	counts := map[sensor.Status]int{}
	err := RetryWithBackoff(ctx, func() error {
		rows, err := j.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM cycles GROUP BY status`)
		if err != nil {
			return fmt.Errorf("failed to count cycles: %w", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				return fmt.Errorf("failed to scan cycle count: %w", err)
			}
			counts[sensor.Status(status)] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func scanCycle(rows *sql.Rows) (*Cycle, error) {
	var (
		c                    Cycle
		status               string
		state, attrs, errMsg sql.NullString
		started, finished    string
	)
	if err := rows.Scan(&c.RunID, &c.SensorName, &status, &c.TaskCount, &state, &attrs, &errMsg, &started, &finished); err != nil {
		return nil, fmt.Errorf("failed to scan cycle: %w", err)
	}
	c.Status = sensor.Status(status)
	if state.Valid {
		c.State = json.RawMessage(state.String)
	}
	if attrs.Valid {
		c.Attributes = json.RawMessage(attrs.String)
	}
	c.Error = errMsg.String

	var err error
	if c.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if c.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	return &c, nil
}

package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/JaimeStill/pairwise/pkg/repository"
)

const (
	selectState = `SELECT state FROM checkpoints WHERE run_id = $1`

	upsertState = `INSERT INTO checkpoints (run_id, phase, iteration, done, state, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (run_id) DO UPDATE SET
	phase = EXCLUDED.phase,
	iteration = EXCLUDED.iteration,
	done = EXCLUDED.done,
	state = EXCLUDED.state,
	updated_at = EXCLUDED.updated_at`

	insertTransition = `INSERT INTO checkpoint_history (run_id, iteration, phase, done, saved_at)
VALUES ($1, $2, $3, $4, $5)`

	selectTransitions = `SELECT iteration, phase, done, saved_at
FROM checkpoint_history
WHERE run_id = $1
ORDER BY saved_at, iteration`
)

// Transition records one persisted state of a run.
type Transition struct {
	Iteration int       `json:"iteration"`
	Phase     Phase     `json:"phase"`
	Done      bool      `json:"done"`
	SavedAt   time.Time `json:"saved_at"`
}

// PostgresStore keeps states in the checkpoints table created by
// cmd/migrate. Each Save upserts the state and appends a history row in
// one transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore returns a Store over an open pool owned by the caller.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Load(ctx context.Context, runID string) (*State, error) {
	data, err := repository.QueryOne(ctx, p.db, selectState, []any{runID}, scanState)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", runID, repository.MapError(err, ErrNotFound, nil))
	}
	return Decode(data)
}

func (p *PostgresStore) Save(ctx context.Context, s *State) error {
	s.UpdatedAt = time.Now().UTC()
	data, err := Encode(s)
	if err != nil {
		return err
	}

	err = repository.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		if err := repository.ExecExpectOne(ctx, tx, upsertState,
			s.RunID,
			string(s.Phase),
			s.Iteration,
			s.Done,
			data,
			s.UpdatedAt,
		); err != nil {
			return err
		}
		return repository.ExecExpectOne(ctx, tx, insertTransition,
			s.RunID,
			s.Iteration,
			string(s.Phase),
			s.Done,
			s.UpdatedAt,
		)
	})
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", s.RunID, repository.MapError(err, nil, nil))
	}
	return nil
}

// History returns the persisted transitions of a run, oldest first.
func (p *PostgresStore) History(ctx context.Context, runID string) ([]Transition, error) {
	out, err := repository.QueryMany(ctx, p.db, selectTransitions, []any{runID}, scanTransition)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", runID, repository.MapError(err, nil, nil))
	}
	return out, nil
}

func scanState(s repository.Scanner) ([]byte, error) {
	var data []byte
	if err := s.Scan(&data); err != nil {
		return nil, err
	}
	return data, nil
}

func scanTransition(s repository.Scanner) (Transition, error) {
	var (
		t     Transition
		phase string
	)
	if err := s.Scan(&t.Iteration, &phase, &t.Done, &t.SavedAt); err != nil {
		return Transition{}, err
	}
	t.Phase = Phase(phase)
	return t, nil
}

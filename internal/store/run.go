package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TrainingRun records one completed training session.
type TrainingRun struct {
	ID          string
	Samples     int
	Classes     int
	Epochs      int
	ValAccuracy float64
	ModelDir    string
	CreatedAt   time.Time
}

// RunRepository provides operations for training run records.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the training run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

// Create inserts a new training run record. The ID is generated when empty.
func (r *RunRepository) Create(run *TrainingRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.CreatedAt = time.Now()

	_, err := r.db.Exec(
		`INSERT INTO training_runs (id, samples, classes, epochs, val_accuracy, model_dir, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Samples, run.Classes, run.Epochs, run.ValAccuracy, run.ModelDir, run.CreatedAt,
	)
	return err
}

// GetByID retrieves a training run by its ID.
func (r *RunRepository) GetByID(id string) (*TrainingRun, error) {
	run := &TrainingRun{}
	err := r.db.QueryRow(
		`SELECT id, samples, classes, epochs, val_accuracy, model_dir, created_at
		 FROM training_runs WHERE id = ?`,
		id,
	).Scan(&run.ID, &run.Samples, &run.Classes, &run.Epochs, &run.ValAccuracy,
		&run.ModelDir, &run.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List returns all training runs, most recent first.
func (r *RunRepository) List() ([]*TrainingRun, error) {
	rows, err := r.db.Query(
		`SELECT id, samples, classes, epochs, val_accuracy, model_dir, created_at
		 FROM training_runs ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*TrainingRun
	for rows.Next() {
		run := &TrainingRun{}
		if err := rows.Scan(&run.ID, &run.Samples, &run.Classes, &run.Epochs,
			&run.ValAccuracy, &run.ModelDir, &run.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

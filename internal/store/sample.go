package store

import (
	"database/sql"
	"time"
)

// Sample records one persisted sequence file.
type Sample struct {
	ID        int64
	SignID    string
	Index     int
	Path      string
	Frames    int
	Features  int
	CreatedAt time.Time
}

// SampleRepository provides operations for sample records.
type SampleRepository struct {
	db *sql.DB
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// Create inserts a new sample record.
func (r *SampleRepository) Create(sample *Sample) error {
	sample.CreatedAt = time.Now()

	result, err := r.db.Exec(
		`INSERT INTO samples (sign_id, sample_index, path, frames, features, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sample.SignID, sample.Index, sample.Path, sample.Frames, sample.Features, sample.CreatedAt,
	)
	if err != nil {
		return err
	}

	sample.ID, err = result.LastInsertId()
	return err
}

// ListBySign returns a sign's sample records ordered by sample index.
func (r *SampleRepository) ListBySign(signID string) ([]*Sample, error) {
	rows, err := r.db.Query(
		`SELECT id, sign_id, sample_index, path, frames, features, created_at
		 FROM samples WHERE sign_id = ? ORDER BY sample_index`,
		signID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []*Sample
	for rows.Next() {
		sample := &Sample{}
		if err := rows.Scan(&sample.ID, &sample.SignID, &sample.Index, &sample.Path,
			&sample.Frames, &sample.Features, &sample.CreatedAt); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// CountBySign returns the number of recorded samples per sign name.
func (r *SampleRepository) CountBySign() (map[string]int, error) {
	rows, err := r.db.Query(
		`SELECT signs.name, COUNT(samples.id)
		 FROM signs LEFT JOIN samples ON samples.sign_id = signs.id
		 GROUP BY signs.id ORDER BY signs.name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		counts[name] = count
	}
	return counts, rows.Err()
}

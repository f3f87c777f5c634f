package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sign is a collected label stored in the catalog.
type Sign struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SignRepository provides CRUD operations for signs.
type SignRepository struct {
	db *sql.DB
}

// Signs returns the sign repository for this store.
func (s *Store) Signs() *SignRepository {
	return &SignRepository{db: s.db}
}

// Create inserts a new sign. The ID is generated when empty.
func (r *SignRepository) Create(sign *Sign) error {
	if sign.ID == "" {
		sign.ID = uuid.NewString()
	}
	now := time.Now()
	sign.CreatedAt = now
	sign.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO signs (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		sign.ID, sign.Name, sign.CreatedAt, sign.UpdatedAt,
	)
	return err
}

// GetByName retrieves a sign by its label name.
func (r *SignRepository) GetByName(name string) (*Sign, error) {
	sign := &Sign{}
	err := r.db.QueryRow(
		`SELECT id, name, created_at, updated_at FROM signs WHERE name = ?`,
		name,
	).Scan(&sign.ID, &sign.Name, &sign.CreatedAt, &sign.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sign, nil
}

// GetOrCreate returns the sign with the given name, creating it on first use.
func (r *SignRepository) GetOrCreate(name string) (*Sign, error) {
	sign, err := r.GetByName(name)
	if err == nil {
		return sign, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	sign = &Sign{Name: name}
	if err := r.Create(sign); err != nil {
		return nil, err
	}
	return sign, nil
}

// List returns all signs ordered by name.
func (r *SignRepository) List() ([]*Sign, error) {
	rows, err := r.db.Query(
		`SELECT id, name, created_at, updated_at FROM signs ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signs []*Sign
	for rows.Next() {
		sign := &Sign{}
		if err := rows.Scan(&sign.ID, &sign.Name, &sign.CreatedAt, &sign.UpdatedAt); err != nil {
			return nil, err
		}
		signs = append(signs, sign)
	}
	return signs, rows.Err()
}

// Delete removes a sign and, through foreign keys, its sample records.
func (r *SignRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM signs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

package store

import (
	"context"

	"parking/internal/models"
)

type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	var row models.User
	err := s.db.GetContext(ctx, &row, `
		SELECT id, email, role, preferred_currency, has_used_free_booking, created_at
		FROM users
		WHERE id = $1
	`, userID)
	if err != nil {
		return models.User{}, err
	}
	return row, nil
}

func (s *UserStore) Exists(ctx context.Context, tx Getter, userID string) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID)
	return exists, err
}

// ConsumeFreeBooking flips the free-booking flag only if it is still unset.
// One affected row means the caller won the claim.
func (s *UserStore) ConsumeFreeBooking(ctx context.Context, tx Execer, userID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE users
		SET has_used_free_booking = TRUE
		WHERE id = $1 AND has_used_free_booking = FALSE
	`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

package store

import (
	"context"

	"parking/internal/models"
)

const (
	SystemRevenue = "parking_revenue"
	SystemFunding = "funding"
)

type AccountStore struct {
	db DB
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, tx Execer, id, userID, currency string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, currency, balance, is_system)
		VALUES ($1, $2, $3, 0, FALSE)
		ON CONFLICT (user_id, currency) WHERE user_id IS NOT NULL DO NOTHING
	`, id, userID, currency)
	return err
}

func (s *AccountStore) ListByUser(ctx context.Context, userID string) ([]models.Account, error) {
	var rows []models.Account
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, currency, balance, is_system, system_key
		FROM accounts
		WHERE user_id = $1
		ORDER BY currency
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AccountStore) GetByUserAndCurrency(ctx context.Context, userID, currency string) (models.Account, error) {
	var row models.Account
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, currency, balance, is_system, system_key
		FROM accounts
		WHERE user_id = $1 AND currency = $2
	`, userID, currency)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, userID, currency string) (models.Account, error) {
	var row models.Account
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, currency, balance, is_system, system_key
		FROM accounts
		WHERE user_id = $1 AND currency = $2
		FOR UPDATE
	`, userID, currency)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

// AdjustBalance applies delta and returns the new balance. User accounts are
// guarded against going negative: the guard failing yields sql.ErrNoRows.
func (s *AccountStore) AdjustBalance(ctx context.Context, tx Getter, accountID string, delta int64) (int64, error) {
	var balance int64
	err := tx.GetContext(ctx, &balance, `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2 AND (is_system OR balance + $1 >= 0)
		RETURNING balance
	`, delta, accountID)
	return balance, err
}

func (s *AccountStore) GetSystemAccount(ctx context.Context, tx Getter, key, currency string) (string, error) {
	var id string
	err := tx.GetContext(ctx, &id, `
		SELECT id
		FROM accounts
		WHERE is_system = TRUE AND system_key = $1 AND currency = $2
	`, key, currency)
	return id, err
}

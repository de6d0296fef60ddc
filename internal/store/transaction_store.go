package store

import (
	"context"
	"fmt"

	"parking/internal/models"
)

type TransactionStore struct {
	db DB
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

const transactionColumns = `id, user_id, type, status, amount, currency, description, related_booking_id, created_at`

func (s *TransactionStore) Create(ctx context.Context, tx Execer, input TransactionInput) error {
	query := `
		INSERT INTO transactions (id, user_id, type, status, amount, currency, description, related_booking_id, client_request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.UserID, input.Type, input.Status, input.Amount, input.Currency,
		input.Description, input.RelatedBookingID, input.ClientRequestID,
	)
	return err
}

func (s *TransactionStore) GetByID(ctx context.Context, transactionID string) (models.Transaction, error) {
	var row models.Transaction
	err := s.db.GetContext(ctx, &row, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, transactionID)
	if err != nil {
		return models.Transaction{}, err
	}
	return row, nil
}

func (s *TransactionStore) GetByClientRequestID(ctx context.Context, tx Getter, userID, clientRequestID string) (models.Transaction, error) {
	var row models.Transaction
	err := tx.GetContext(ctx, &row, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1 AND client_request_id = $2
	`, userID, clientRequestID)
	if err != nil {
		return models.Transaction{}, err
	}
	return row, nil
}

func (s *TransactionStore) UpdateStatus(ctx context.Context, tx Execer, transactionID, status string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE transactions SET status = $1 WHERE id = $2`, status, transactionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TransactionStore) ListByUser(ctx context.Context, userID, txType string, limit, offset int) ([]models.Transaction, error) {
	var rows []models.Transaction
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
	`
	args := []any{userID}
	param := 2
	if txType != "" {
		query += " AND type = $2"
		args = append(args, txType)
		param = 3
	}
	query += " ORDER BY created_at DESC LIMIT $" + itoa(param) + " OFFSET $" + itoa(param+1)
	args = append(args, limit, offset)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

type TransactionInput struct {
	ID               string
	UserID           string
	Type             string
	Status           string
	Amount           int64
	Currency         string
	Description      string
	RelatedBookingID *string
	ClientRequestID  *string
}

func itoa(value int) string {
	return fmt.Sprintf("%d", value)
}

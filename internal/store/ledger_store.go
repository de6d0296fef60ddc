package store

import (
	"context"
	"errors"
)

type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

type LedgerEntryInput struct {
	ID            string
	TransactionID string
	AccountID     string
	Amount        int64
	Currency      string
	Description   string
}

// InsertEntries writes all legs of a posting in one statement so a posting
// is never half-written even outside a transaction.
func (s *LedgerStore) InsertEntries(ctx context.Context, tx Execer, entries []LedgerEntryInput) error {
	if len(entries) == 0 {
		return errors.New("no ledger entries")
	}
	insert := psql.Insert("ledger_entries").
		Columns("id", "transaction_id", "account_id", "amount", "currency", "description")
	for _, entry := range entries {
		insert = insert.Values(entry.ID, entry.TransactionID, entry.AccountID, entry.Amount, entry.Currency, entry.Description)
	}
	query, args, err := insert.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

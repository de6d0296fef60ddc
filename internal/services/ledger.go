package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"parking/internal/db"
	"parking/internal/models"
	"parking/internal/money"
	"parking/internal/rates"
	"parking/internal/store"
	"parking/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type AccountStore interface {
	Create(ctx context.Context, tx store.Execer, id, userID, currency string) error
	ListByUser(ctx context.Context, userID string) ([]models.Account, error)
	GetByUserAndCurrency(ctx context.Context, userID, currency string) (models.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, userID, currency string) (models.Account, error)
	AdjustBalance(ctx context.Context, tx store.Getter, accountID string, delta int64) (int64, error)
	GetSystemAccount(ctx context.Context, tx store.Getter, key, currency string) (string, error)
}

type LedgerStore interface {
	InsertEntries(ctx context.Context, tx store.Execer, entries []store.LedgerEntryInput) error
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error
	GetByClientRequestID(ctx context.Context, tx store.Getter, userID, clientRequestID string) (models.Transaction, error)
	UpdateStatus(ctx context.Context, tx store.Execer, transactionID, status string) (int64, error)
	ListByUser(ctx context.Context, userID, txType string, limit, offset int) ([]models.Transaction, error)
}

type UserStore interface {
	GetByID(ctx context.Context, userID string) (models.User, error)
	Exists(ctx context.Context, tx store.Getter, userID string) (bool, error)
	ConsumeFreeBooking(ctx context.Context, tx store.Execer, userID string) (int64, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
	BroadcastBooking(userID string, update websocket.BookingUpdate)
}

// Ledger owns user balances. Every mutation moves money between a user
// account and a system account and records one transaction row with a
// balanced pair of ledger entries, all in the caller's transaction.
type Ledger struct {
	txRunner     db.TxRunner
	users        UserStore
	accounts     AccountStore
	entries      LedgerStore
	transactions TransactionStore
	audit        AuditStore
	rates        rates.Source
	hub          BalanceHub
	logger       logrus.FieldLogger
}

func NewLedger(txRunner db.TxRunner, users UserStore, accounts AccountStore, entries LedgerStore, transactions TransactionStore, audit AuditStore, rateSource rates.Source, hub BalanceHub, logger logrus.FieldLogger) *Ledger {
	if hub == nil {
		hub = noopHub{}
	}
	return &Ledger{
		txRunner:     txRunner,
		users:        users,
		accounts:     accounts,
		entries:      entries,
		transactions: transactions,
		audit:        audit,
		rates:        rateSource,
		hub:          hub,
		logger:       logger,
	}
}

type LedgerRequest struct {
	UserID           string
	Currency         string
	AmountMinor      int64
	Type             string
	Description      string
	RelatedBookingID *string
	ClientRequestID  *string
}

// Posting is the outcome of one ledger mutation.
type Posting struct {
	TransactionID string
	AccountID     string
	Currency      string
	BalanceMinor  int64
}

// Debit charges the user for a booking. The balance guard runs in the same
// UPDATE that applies the change, so concurrent debits cannot overdraw.
func (l *Ledger) Debit(ctx context.Context, tx store.Tx, req LedgerRequest) (Posting, error) {
	currency, err := validateLedgerRequest(req)
	if err != nil {
		return Posting{}, err
	}
	account, err := l.accounts.GetForUpdate(ctx, tx, req.UserID, currency)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Posting{}, fmt.Errorf("%w: no %s balance", ErrInsufficientFunds, currency)
		}
		return Posting{}, err
	}
	balance, err := l.accounts.AdjustBalance(ctx, tx, account.ID, -req.AmountMinor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Posting{}, fmt.Errorf("%w: %s balance below %s", ErrInsufficientFunds, currency, money.FormatMinor(req.AmountMinor))
		}
		return Posting{}, err
	}
	req.Type = models.TransactionPayment
	transactionID, err := l.post(ctx, tx, req, currency, account.ID, store.SystemRevenue, -req.AmountMinor)
	if err != nil {
		return Posting{}, err
	}
	return Posting{TransactionID: transactionID, AccountID: account.ID, Currency: currency, BalanceMinor: balance}, nil
}

// Credit adds funds for a refund or a deposit. The user's account in that
// currency is opened on first credit.
func (l *Ledger) Credit(ctx context.Context, tx store.Tx, req LedgerRequest) (Posting, error) {
	currency, err := validateLedgerRequest(req)
	if err != nil {
		return Posting{}, err
	}
	counterparty := store.SystemRevenue
	switch req.Type {
	case "", models.TransactionRefund:
		req.Type = models.TransactionRefund
	case models.TransactionDeposit:
		counterparty = store.SystemFunding
	default:
		return Posting{}, invalidInput("credit type %q", req.Type)
	}
	exists, err := l.users.Exists(ctx, tx, req.UserID)
	if err != nil {
		return Posting{}, err
	}
	if !exists {
		return Posting{}, fmt.Errorf("%w: user", ErrNotFound)
	}
	account, err := l.accounts.GetForUpdate(ctx, tx, req.UserID, currency)
	if errors.Is(err, sql.ErrNoRows) {
		if err := l.accounts.Create(ctx, tx, uuid.NewString(), req.UserID, currency); err != nil {
			return Posting{}, err
		}
		account, err = l.accounts.GetForUpdate(ctx, tx, req.UserID, currency)
	}
	if err != nil {
		return Posting{}, err
	}
	balance, err := l.accounts.AdjustBalance(ctx, tx, account.ID, req.AmountMinor)
	if err != nil {
		return Posting{}, err
	}
	transactionID, err := l.post(ctx, tx, req, currency, account.ID, counterparty, req.AmountMinor)
	if err != nil {
		return Posting{}, err
	}
	return Posting{TransactionID: transactionID, AccountID: account.ID, Currency: currency, BalanceMinor: balance}, nil
}

// post moves the opposite of userDelta onto the system account and appends
// the transaction record with its two ledger lines.
func (l *Ledger) post(ctx context.Context, tx store.Tx, req LedgerRequest, currency, accountID, systemKey string, userDelta int64) (string, error) {
	systemID, err := l.accounts.GetSystemAccount(ctx, tx, systemKey, currency)
	if err != nil {
		return "", fmt.Errorf("system account %s/%s: %w", systemKey, currency, err)
	}
	if _, err := l.accounts.AdjustBalance(ctx, tx, systemID, -userDelta); err != nil {
		return "", err
	}
	transactionID := uuid.NewString()
	if err := l.transactions.Create(ctx, tx, store.TransactionInput{
		ID:               transactionID,
		UserID:           req.UserID,
		Type:             req.Type,
		Status:           models.TransactionCompleted,
		Amount:           req.AmountMinor,
		Currency:         currency,
		Description:      req.Description,
		RelatedBookingID: req.RelatedBookingID,
		ClientRequestID:  req.ClientRequestID,
	}); err != nil {
		return "", err
	}
	entries := []store.LedgerEntryInput{
		{
			ID:            uuid.NewString(),
			TransactionID: transactionID,
			AccountID:     accountID,
			Amount:        userDelta,
			Currency:      currency,
			Description:   req.Description,
		},
		{
			ID:            uuid.NewString(),
			TransactionID: transactionID,
			AccountID:     systemID,
			Amount:        -userDelta,
			Currency:      currency,
			Description:   req.Description,
		},
	}
	if err := ensureBalanced(entries); err != nil {
		return "", err
	}
	if err := l.entries.InsertEntries(ctx, tx, entries); err != nil {
		return "", err
	}
	return transactionID, nil
}

// ConsumeFreeBooking claims the user's one free booking. Exactly one of any
// number of concurrent callers sees true.
func (l *Ledger) ConsumeFreeBooking(ctx context.Context, tx store.Tx, userID string) (bool, error) {
	rows, err := l.users.ConsumeFreeBooking(ctx, tx, userID)
	if err != nil {
		return false, err
	}
	if rows == 1 {
		return true, nil
	}
	exists, err := l.users.Exists(ctx, tx, userID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, fmt.Errorf("%w: user", ErrNotFound)
	}
	return false, nil
}

// Balance reads one currency balance. A user without an account in that
// currency has a zero balance.
func (l *Ledger) Balance(ctx context.Context, userID, currency string) (int64, error) {
	normalized, err := money.NormalizeCurrency(currency)
	if err != nil {
		return 0, invalidInput("currency %q", currency)
	}
	account, err := l.accounts.GetByUserAndCurrency(ctx, userID, normalized)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return account.Balance, nil
}

type AccountBalance struct {
	AccountID    string `json:"accountId"`
	Currency     string `json:"currency"`
	BalanceMinor int64  `json:"-"`
	Balance      string `json:"balance"`
}

type BalanceSummary struct {
	PreferredCurrency string           `json:"preferredCurrency"`
	Balances          []AccountBalance `json:"balances"`
	TotalMinor        int64            `json:"-"`
	Total             string           `json:"total"`
}

// Balances lists every balance and their sum in the preferred currency.
func (l *Ledger) Balances(ctx context.Context, userID string) (BalanceSummary, error) {
	user, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return BalanceSummary{}, notFound("user", err)
	}
	accounts, err := l.accounts.ListByUser(ctx, userID)
	if err != nil {
		return BalanceSummary{}, err
	}
	summary := BalanceSummary{PreferredCurrency: user.PreferredCurrency, Balances: make([]AccountBalance, 0, len(accounts))}
	for _, account := range accounts {
		summary.Balances = append(summary.Balances, AccountBalance{
			AccountID:    account.ID,
			Currency:     account.Currency,
			BalanceMinor: account.Balance,
			Balance:      money.FormatMinor(account.Balance),
		})
		converted := account.Balance
		if account.Currency != user.PreferredCurrency {
			quoted, err := l.rates.GetRates(ctx, account.Currency)
			if err != nil {
				return BalanceSummary{}, fmt.Errorf("rates for %s: %w", account.Currency, err)
			}
			converted, err = rates.Convert(account.Balance, account.Currency, user.PreferredCurrency, quoted)
			if err != nil {
				return BalanceSummary{}, err
			}
		}
		summary.TotalMinor += converted
	}
	summary.Total = money.FormatMinor(summary.TotalMinor)
	return summary, nil
}

type DepositRequest struct {
	UserID          string
	Currency        string
	AmountMinor     int64
	ClientRequestID *string
}

type DepositResult struct {
	TransactionID string
	AccountID     string
	Currency      string
	BalanceMinor  int64
	Replayed      bool
}

// Deposit tops up a balance. A repeated clientRequestId returns the original
// transaction without crediting again.
func (l *Ledger) Deposit(ctx context.Context, req DepositRequest) (DepositResult, error) {
	var result DepositResult
	err := l.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result = DepositResult{}
		if req.ClientRequestID != nil {
			existing, err := l.transactions.GetByClientRequestID(ctx, tx, req.UserID, *req.ClientRequestID)
			if err == nil {
				result = DepositResult{TransactionID: existing.ID, Currency: existing.Currency, Replayed: true}
				return nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}
		posting, err := l.Credit(ctx, tx, LedgerRequest{
			UserID:          req.UserID,
			Currency:        req.Currency,
			AmountMinor:     req.AmountMinor,
			Type:            models.TransactionDeposit,
			Description:     "Balance top-up",
			ClientRequestID: req.ClientRequestID,
		})
		if err != nil {
			return err
		}
		result = DepositResult{TransactionID: posting.TransactionID, AccountID: posting.AccountID, Currency: posting.Currency, BalanceMinor: posting.BalanceMinor}
		data, _ := json.Marshal(map[string]string{"transaction_id": posting.TransactionID, "amount": money.FormatMinor(req.AmountMinor), "currency": posting.Currency})
		return l.audit.Log(ctx, tx, req.UserID, "deposit", "transaction", posting.TransactionID, string(data))
	})
	if err != nil {
		return DepositResult{}, err
	}
	if result.Replayed {
		balance, err := l.Balance(ctx, req.UserID, result.Currency)
		if err != nil {
			return DepositResult{}, err
		}
		result.BalanceMinor = balance
		return result, nil
	}
	l.notifyBalance(req.UserID, result.AccountID, result.Currency, result.BalanceMinor)
	return result, nil
}

var transactionStatuses = map[string]bool{
	models.TransactionPending:   true,
	models.TransactionCompleted: true,
	models.TransactionFailed:    true,
	models.TransactionCancelled: true,
}

// UpdateTransactionStatus is the admin override. It changes the record only;
// balances are corrected through new postings, never by rewriting history.
func (l *Ledger) UpdateTransactionStatus(ctx context.Context, actorID, transactionID, status string) error {
	if !transactionStatuses[status] {
		return invalidInput("transaction status %q", status)
	}
	err := l.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := l.transactions.UpdateStatus(ctx, tx, transactionID, status)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: transaction", ErrNotFound)
		}
		data, _ := json.Marshal(map[string]string{"status": status})
		return l.audit.Log(ctx, tx, actorID, "transaction_status_override", "transaction", transactionID, string(data))
	})
	if err != nil {
		return err
	}
	// Balances are not touched; a corrected amount needs a compensating posting.
	l.logger.WithFields(logrus.Fields{
		"actor_id":       actorID,
		"transaction_id": transactionID,
		"status":         status,
	}).Info("transaction status overridden")
	return nil
}

func (l *Ledger) ListTransactions(ctx context.Context, userID, txType string, limit, offset int) ([]models.Transaction, error) {
	return l.transactions.ListByUser(ctx, userID, txType, limit, offset)
}

func (l *Ledger) notifyBalance(userID, accountID, currency string, balance int64) {
	l.hub.BroadcastBalance(userID, websocket.BalanceUpdate{
		AccountID: accountID,
		Currency:  currency,
		Balance:   money.FormatMinor(balance),
	})
}

func validateLedgerRequest(req LedgerRequest) (string, error) {
	if req.AmountMinor <= 0 {
		return "", invalidInput("amount must be positive")
	}
	if req.UserID == "" {
		return "", invalidInput("user is required")
	}
	currency, err := money.NormalizeCurrency(req.Currency)
	if err != nil {
		return "", invalidInput("currency %q", req.Currency)
	}
	return currency, nil
}

func ensureBalanced(entries []store.LedgerEntryInput) error {
	sums := map[string]int64{}
	for _, entry := range entries {
		sums[entry.Currency] += entry.Amount
	}
	for _, sum := range sums {
		if sum != 0 {
			return errors.New("ledger entries are not balanced per currency")
		}
	}
	return nil
}

type noopHub struct{}

func (noopHub) BroadcastBalance(string, websocket.BalanceUpdate) {}
func (noopHub) BroadcastBooking(string, websocket.BookingUpdate) {}

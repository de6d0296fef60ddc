package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"parking/internal/models"
)

func TestAccountStoreCreate(t *testing.T) {
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO accounts") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 3 || args[0] != "acc-1" || args[1] != "user-1" || args[2] != "EUR" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	if err := NewAccountStore(stubDB{}).Create(context.Background(), execer, "acc-1", "user-1", "EUR"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAccountStoreGetForUpdate(t *testing.T) {
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FOR UPDATE") {
				t.Fatalf("expected row lock, got: %s", query)
			}
			if len(args) != 2 || args[0] != "user-1" || args[1] != "MDL" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*models.Account) = models.Account{ID: "acc-1", Currency: "MDL", Balance: 2000}
			return nil
		},
	}
	account, err := NewAccountStore(stubDB{}).GetForUpdate(context.Background(), getter, "user-1", "MDL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.ID != "acc-1" || account.Balance != 2000 {
		t.Fatalf("unexpected account: %#v", account)
	}
}

func TestAccountStoreAdjustBalanceIsGuarded(t *testing.T) {
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "balance + $1 >= 0") || !strings.Contains(query, "RETURNING balance") {
				t.Fatalf("expected guarded update, got: %s", query)
			}
			if len(args) != 2 || args[0] != int64(-1000) || args[1] != "acc-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*int64) = 1000
			return nil
		},
	}
	balance, err := NewAccountStore(stubDB{}).AdjustBalance(context.Background(), getter, "acc-1", -1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 1000 {
		t.Fatalf("unexpected balance: %d", balance)
	}
}

func TestAccountStoreAdjustBalanceGuardFails(t *testing.T) {
	getter := stubGetter{
		getFn: func(context.Context, any, string, ...any) error {
			return sql.ErrNoRows
		},
	}
	_, err := NewAccountStore(stubDB{}).AdjustBalance(context.Background(), getter, "acc-1", -5000)
	if err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestAccountStoreGetSystemAccount(t *testing.T) {
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "is_system = TRUE") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 2 || args[0] != SystemRevenue || args[1] != "USD" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*string) = "sys-revenue-usd"
			return nil
		},
	}
	id, err := NewAccountStore(stubDB{}).GetSystemAccount(context.Background(), getter, SystemRevenue, "USD")
	if err != nil || id != "sys-revenue-usd" {
		t.Fatalf("unexpected result %q %v", id, err)
	}
}

func TestAccountStoreListByUser(t *testing.T) {
	store := NewAccountStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "WHERE user_id = $1") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*[]models.Account) = []models.Account{{ID: "a1", Currency: "EUR"}, {ID: "a2", Currency: "MDL"}}
			return nil
		},
	})
	rows, err := store.ListByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

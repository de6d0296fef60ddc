package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"parking/internal/events"
	"parking/internal/models"
	"parking/internal/money"
	"parking/internal/rates"
	"parking/internal/store"
	"parking/internal/websocket"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

const (
	testUser     = "user-1"
	otherUser    = "user-2"
	testFacility = "facility-1"
	hourlyTariff = "tariff-hourly"
	euroTariff   = "tariff-eur"
)

var testStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.BookingEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event events.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

type recordingHub struct {
	mu       sync.Mutex
	balances []websocket.BalanceUpdate
	bookings []websocket.BookingUpdate
}

func (h *recordingHub) BroadcastBalance(_ string, update websocket.BalanceUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.balances = append(h.balances, update)
}

func (h *recordingHub) BroadcastBooking(_ string, update websocket.BookingUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bookings = append(h.bookings, update)
}

type fakeLocker struct {
	mu       sync.Mutex
	acquired int
	released int
	err      error
}

func (l *fakeLocker) AcquireSlotLock(context.Context, string, string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", l.err
	}
	l.acquired++
	return "token", nil
}

func (l *fakeLocker) ReleaseSlotLock(_ context.Context, _, _, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if token != "token" {
		return errors.New("unexpected token")
	}
	l.released++
	return nil
}

type fixture struct {
	db        *memDB
	ledger    *Ledger
	inventory *Inventory
	bookings  *BookingService
	publisher *recordingPublisher
	hub       *recordingHub
	logs      *test.Hook
}

type fixtureConfig struct {
	autoCreate bool
	totalSlots int
	opts       []BookingOption
}

type fixtureOption func(*fixtureConfig)

func withoutAutoCreate() fixtureOption {
	return func(c *fixtureConfig) { c.autoCreate = false }
}

func withTotalSlots(n int) fixtureOption {
	return func(c *fixtureConfig) { c.totalSlots = n }
}

func withBookingOptions(opts ...BookingOption) fixtureOption {
	return func(c *fixtureConfig) { c.opts = append(c.opts, opts...) }
}

// newFixture seeds one facility with a single A-1 slot, an hourly tariff of
// 10.00 MDL and two users holding 20.00 MDL each.
func newFixture(t *testing.T, options ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{autoCreate: true, totalSlots: 1}
	for _, option := range options {
		option(&cfg)
	}

	mem := newMemDB()
	state := mem.state
	for _, key := range []string{store.SystemRevenue, store.SystemFunding} {
		for _, currency := range money.Currencies {
			systemKey := key
			id := key + "-" + currency
			state.accounts[id] = models.Account{ID: id, Currency: currency, IsSystem: true, SystemKey: &systemKey}
		}
	}
	for _, userID := range []string{testUser, otherUser} {
		owner := userID
		state.users[userID] = models.User{ID: userID, Role: "user", PreferredCurrency: money.MDL}
		state.accounts["acc-"+userID] = models.Account{ID: "acc-" + userID, UserID: &owner, Currency: money.MDL, Balance: 2000}
	}
	state.facilities[testFacility] = models.Facility{
		ID:             testFacility,
		Name:           "Central",
		TotalSlots:     cfg.totalSlots,
		AvailableSlots: cfg.totalSlots,
		PricePerHour:   1000,
		Currency:       money.MDL,
		IsActive:       true,
	}
	state.slots["slot-a1"] = models.Slot{ID: "slot-a1", FacilityID: testFacility, Label: "A-1", Zone: "A", Type: models.SlotTypeStandard, Status: models.SlotAvailable}
	facility := testFacility
	state.tariffs[hourlyTariff] = models.Tariff{ID: hourlyTariff, Name: "Hourly", Type: models.TariffHourly, Price: 1000, Currency: money.MDL, DurationMinutes: 60, IsActive: true, FacilityID: &facility}
	state.tariffs[euroTariff] = models.Tariff{ID: euroTariff, Name: "Daily EUR", Type: models.TariffDaily, Price: 500, Currency: money.EUR, DurationMinutes: 24 * 60, IsActive: true}

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	hub := &recordingHub{}
	publisher := &recordingPublisher{}
	audit := memAudit{db: mem}
	ledger := NewLedger(mem, memUsers{db: mem}, memAccounts{db: mem}, memLedger{db: mem}, memTransactions{db: mem}, audit, rates.DefaultTable(), hub, logger)
	inventory := NewInventory(mem, memFacilities{db: mem}, memSlots{db: mem}, memTariffs{db: mem}, memBookings{db: mem}, audit, cfg.autoCreate, logger)
	opts := append([]BookingOption{
		WithHub(hub),
		WithPublisher(publisher),
		WithLogger(logger),
		WithClock(func() time.Time { return testStart }),
	}, cfg.opts...)
	service := NewBookingService(mem, memBookings{db: mem}, inventory, ledger, audit, opts...)

	return &fixture{db: mem, ledger: ledger, inventory: inventory, bookings: service, publisher: publisher, hub: hub, logs: hook}
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	balance, err := f.ledger.Balance(context.Background(), userID, money.MDL)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func (f *fixture) available(t *testing.T) int {
	t.Helper()
	facility, err := f.inventory.GetFacility(context.Background(), testFacility)
	if err != nil {
		t.Fatalf("facility: %v", err)
	}
	return facility.AvailableSlots
}

func (f *fixture) transactions(txType string) []models.Transaction {
	var out []models.Transaction
	f.db.read(func(s *memState) {
		for _, tx := range s.transactions {
			if tx.Type == txType {
				out = append(out, tx.Transaction)
			}
		}
	})
	return out
}

func (f *fixture) user(userID string) models.User {
	var user models.User
	f.db.read(func(s *memState) { user = s.users[userID] })
	return user
}

func (f *fixture) book(userID, spot string, start time.Time, free bool) (BookingResult, error) {
	return f.bookings.CreateBooking(context.Background(), CreateBookingRequest{
		UserID:         userID,
		FacilityID:     testFacility,
		SpotNumber:     spot,
		TariffID:       hourlyTariff,
		StartTime:      start,
		UseFreeBooking: free,
	})
}

// assertInvariants checks the counter bounds, non-negative user balances,
// per-currency ledger balance and pairwise disjoint active bookings.
func (f *fixture) assertInvariants(t *testing.T) {
	t.Helper()
	f.db.read(func(s *memState) {
		for _, facility := range s.facilities {
			if facility.AvailableSlots < 0 || facility.AvailableSlots > facility.TotalSlots {
				t.Fatalf("facility %s available %d outside [0, %d]", facility.ID, facility.AvailableSlots, facility.TotalSlots)
			}
		}
		for _, account := range s.accounts {
			if !account.IsSystem && account.Balance < 0 {
				t.Fatalf("account %s has negative balance %d", account.ID, account.Balance)
			}
		}
		sums := map[string]int64{}
		for _, entry := range s.entries {
			sums[entry.Currency] += entry.Amount
		}
		for currency, sum := range sums {
			if sum != 0 {
				t.Fatalf("ledger for %s sums to %d", currency, sum)
			}
		}
		var active []models.Booking
		for _, booking := range s.bookings {
			if booking.Status == models.BookingActive {
				active = append(active, booking)
			}
		}
		for i := range active {
			for j := i + 1; j < len(active); j++ {
				a, b := active[i], active[j]
				if a.SlotID == b.SlotID && models.Overlaps(a.StartTime, a.EndTime, b.StartTime, b.EndTime) {
					t.Fatalf("active bookings %s and %s overlap", a.ID, b.ID)
				}
			}
		}
	})
}

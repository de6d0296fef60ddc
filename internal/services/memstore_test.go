package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"parking/internal/models"
	"parking/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// memState is an in-memory model of the parking schema. It enforces the
// same constraints the migration declares so tests observe the behaviour
// of the real database.
type memState struct {
	users        map[string]models.User
	accounts     map[string]models.Account
	transactions map[string]memTransaction
	entries      []store.LedgerEntryInput
	facilities   map[string]models.Facility
	slots        map[string]models.Slot
	tariffs      map[string]models.Tariff
	bookings     map[string]models.Booking
	audit        []string
}

type memTransaction struct {
	models.Transaction
	clientRequestID *string
}

func newMemState() *memState {
	return &memState{
		users:        map[string]models.User{},
		accounts:     map[string]models.Account{},
		transactions: map[string]memTransaction{},
		facilities:   map[string]models.Facility{},
		slots:        map[string]models.Slot{},
		tariffs:      map[string]models.Tariff{},
		bookings:     map[string]models.Booking{},
	}
}

func (s *memState) clone() *memState {
	out := newMemState()
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.transactions {
		out.transactions[k] = v
	}
	out.entries = append([]store.LedgerEntryInput(nil), s.entries...)
	for k, v := range s.facilities {
		out.facilities[k] = v
	}
	for k, v := range s.slots {
		out.slots[k] = v
	}
	for k, v := range s.tariffs {
		out.tariffs[k] = v
	}
	for k, v := range s.bookings {
		out.bookings[k] = v
	}
	out.audit = append([]string(nil), s.audit...)
	return out
}

// memDB runs one transaction at a time and restores a snapshot when the
// callback fails, which is what a serializable database looks like from the
// outside.
type memDB struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	state *memState

	skipOverlapCheck bool
	txCount          int
}

func newMemDB() *memDB {
	return &memDB{state: newMemState()}
}

func (d *memDB) WithTx(_ context.Context, fn func(*sqlx.Tx) error) error {
	d.txMu.Lock()
	defer d.txMu.Unlock()
	d.mu.Lock()
	snapshot := d.state.clone()
	d.txCount++
	d.mu.Unlock()
	if err := fn(nil); err != nil {
		d.mu.Lock()
		d.state = snapshot
		d.mu.Unlock()
		return err
	}
	return nil
}

// nilTx adapts a callback written against store.Tx for memDB, whose
// transactions carry no handle.
func nilTx(fn func(store.Tx) error) func(*sqlx.Tx) error {
	return func(tx *sqlx.Tx) error { return fn(tx) }
}

func (d *memDB) read(fn func(s *memState)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.state)
}

type memUsers struct{ db *memDB }

func (m memUsers) GetByID(_ context.Context, userID string) (models.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	user, ok := m.db.state.users[userID]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m memUsers) Exists(_ context.Context, _ store.Getter, userID string) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	_, ok := m.db.state.users[userID]
	return ok, nil
}

func (m memUsers) ConsumeFreeBooking(_ context.Context, _ store.Execer, userID string) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	user, ok := m.db.state.users[userID]
	if !ok || user.HasUsedFreeBooking {
		return 0, nil
	}
	user.HasUsedFreeBooking = true
	m.db.state.users[userID] = user
	return 1, nil
}

type memAccounts struct{ db *memDB }

func (m memAccounts) Create(_ context.Context, _ store.Execer, id, userID, currency string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, account := range m.db.state.accounts {
		if account.UserID != nil && *account.UserID == userID && account.Currency == currency {
			return nil
		}
	}
	owner := userID
	m.db.state.accounts[id] = models.Account{ID: id, UserID: &owner, Currency: currency}
	return nil
}

func (m memAccounts) ListByUser(_ context.Context, userID string) ([]models.Account, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var rows []models.Account
	for _, account := range m.db.state.accounts {
		if account.UserID != nil && *account.UserID == userID {
			rows = append(rows, account)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Currency < rows[j].Currency })
	return rows, nil
}

func (m memAccounts) GetByUserAndCurrency(_ context.Context, userID, currency string) (models.Account, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.db.state.userAccount(userID, currency)
}

func (m memAccounts) GetForUpdate(_ context.Context, _ store.Getter, userID, currency string) (models.Account, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.db.state.userAccount(userID, currency)
}

func (m memAccounts) AdjustBalance(_ context.Context, _ store.Getter, accountID string, delta int64) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	account, ok := m.db.state.accounts[accountID]
	if !ok || (!account.IsSystem && account.Balance+delta < 0) {
		return 0, sql.ErrNoRows
	}
	account.Balance += delta
	m.db.state.accounts[accountID] = account
	return account.Balance, nil
}

func (m memAccounts) GetSystemAccount(_ context.Context, _ store.Getter, key, currency string) (string, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, account := range m.db.state.accounts {
		if account.IsSystem && account.SystemKey != nil && *account.SystemKey == key && account.Currency == currency {
			return account.ID, nil
		}
	}
	return "", sql.ErrNoRows
}

func (s *memState) userAccount(userID, currency string) (models.Account, error) {
	for _, account := range s.accounts {
		if account.UserID != nil && *account.UserID == userID && account.Currency == currency {
			return account, nil
		}
	}
	return models.Account{}, sql.ErrNoRows
}

type memLedger struct{ db *memDB }

func (m memLedger) InsertEntries(_ context.Context, _ store.Execer, entries []store.LedgerEntryInput) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.state.entries = append(m.db.state.entries, entries...)
	return nil
}

type memTransactions struct{ db *memDB }

func (m memTransactions) Create(_ context.Context, _ store.Execer, input store.TransactionInput) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if input.ClientRequestID != nil {
		for _, existing := range m.db.state.transactions {
			if existing.UserID == input.UserID && existing.clientRequestID != nil && *existing.clientRequestID == *input.ClientRequestID {
				return &pq.Error{Code: "23505"}
			}
		}
	}
	m.db.state.transactions[input.ID] = memTransaction{
		Transaction: models.Transaction{
			ID:               input.ID,
			UserID:           input.UserID,
			Type:             input.Type,
			Status:           input.Status,
			Amount:           input.Amount,
			Currency:         input.Currency,
			Description:      input.Description,
			RelatedBookingID: input.RelatedBookingID,
			CreatedAt:        time.Now(),
		},
		clientRequestID: input.ClientRequestID,
	}
	return nil
}

func (m memTransactions) GetByClientRequestID(_ context.Context, _ store.Getter, userID, clientRequestID string) (models.Transaction, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, existing := range m.db.state.transactions {
		if existing.UserID == userID && existing.clientRequestID != nil && *existing.clientRequestID == clientRequestID {
			return existing.Transaction, nil
		}
	}
	return models.Transaction{}, sql.ErrNoRows
}

func (m memTransactions) UpdateStatus(_ context.Context, _ store.Execer, transactionID, status string) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	existing, ok := m.db.state.transactions[transactionID]
	if !ok {
		return 0, nil
	}
	existing.Status = status
	m.db.state.transactions[transactionID] = existing
	return 1, nil
}

func (m memTransactions) ListByUser(_ context.Context, userID, txType string, limit, offset int) ([]models.Transaction, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var rows []models.Transaction
	for _, existing := range m.db.state.transactions {
		if existing.UserID == userID && (txType == "" || existing.Type == txType) {
			rows = append(rows, existing.Transaction)
		}
	}
	return page(rows, limit, offset), nil
}

type memAudit struct{ db *memDB }

func (m memAudit) Log(_ context.Context, _ store.Execer, _, action, _, entityID, _ string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.state.audit = append(m.db.state.audit, action+":"+entityID)
	return nil
}

type memFacilities struct{ db *memDB }

func (m memFacilities) Create(_ context.Context, _ store.Execer, input store.FacilityInput) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.state.facilities[input.ID] = models.Facility{
		ID:             input.ID,
		Name:           input.Name,
		Address:        input.Address,
		Latitude:       input.Latitude,
		Longitude:      input.Longitude,
		TotalSlots:     input.TotalSlots,
		AvailableSlots: input.TotalSlots,
		PricePerHour:   input.PricePerHour,
		Currency:       input.Currency,
		IsActive:       true,
	}
	return nil
}

func (m memFacilities) GetByID(_ context.Context, facilityID string) (models.Facility, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	facility, ok := m.db.state.facilities[facilityID]
	if !ok {
		return models.Facility{}, sql.ErrNoRows
	}
	return facility, nil
}

func (m memFacilities) DecrementAvailable(_ context.Context, _ store.Execer, facilityID string) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	facility, ok := m.db.state.facilities[facilityID]
	if !ok || facility.AvailableSlots <= 0 {
		return 0, nil
	}
	facility.AvailableSlots--
	m.db.state.facilities[facilityID] = facility
	return 1, nil
}

func (m memFacilities) IncrementAvailable(_ context.Context, _ store.Execer, facilityID string) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	facility, ok := m.db.state.facilities[facilityID]
	if !ok || facility.AvailableSlots >= facility.TotalSlots {
		return 0, nil
	}
	facility.AvailableSlots++
	m.db.state.facilities[facilityID] = facility
	return 1, nil
}

type memSlots struct{ db *memDB }

func (m memSlots) GetByID(_ context.Context, slotID string) (models.Slot, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	slot, ok := m.db.state.slots[slotID]
	if !ok {
		return models.Slot{}, sql.ErrNoRows
	}
	return slot, nil
}

func (m memSlots) GetByLabel(_ context.Context, facilityID, label string) (models.Slot, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, slot := range m.db.state.slots {
		if slot.FacilityID == facilityID && slot.Label == label {
			return slot, nil
		}
	}
	return models.Slot{}, sql.ErrNoRows
}

func (m memSlots) CreateIfMissing(_ context.Context, _ store.Execer, input store.SlotInput) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, slot := range m.db.state.slots {
		if slot.FacilityID == input.FacilityID && slot.Label == input.Label {
			return 0, nil
		}
	}
	m.db.state.slots[input.ID] = models.Slot{
		ID:         input.ID,
		FacilityID: input.FacilityID,
		Label:      input.Label,
		Floor:      input.Floor,
		Zone:       input.Zone,
		Type:       input.Type,
		Status:     models.SlotAvailable,
	}
	return 1, nil
}

func (m memSlots) LockForUpdate(ctx context.Context, _ store.Getter, slotID string) (models.Slot, error) {
	return m.GetByID(ctx, slotID)
}

func (m memSlots) UpdateSensor(_ context.Context, _ store.Execer, slotID string, occupied bool, sensorID *string) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	slot, ok := m.db.state.slots[slotID]
	if !ok {
		return 0, nil
	}
	slot.IsOccupied = occupied
	if sensorID != nil {
		slot.SensorID = sensorID
	}
	if slot.Status != models.SlotMaintenance {
		switch {
		case occupied:
			slot.Status = models.SlotOccupied
		case slot.IsReserved:
			slot.Status = models.SlotReserved
		default:
			slot.Status = models.SlotAvailable
		}
	}
	m.db.state.slots[slotID] = slot
	return 1, nil
}

type memTariffs struct{ db *memDB }

func (m memTariffs) Create(_ context.Context, _ store.Execer, input store.TariffInput) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.state.tariffs[input.ID] = models.Tariff{
		ID:              input.ID,
		Name:            input.Name,
		Type:            input.Type,
		Price:           input.Price,
		Currency:        input.Currency,
		DurationMinutes: input.DurationMinutes,
		IsActive:        true,
		FacilityID:      input.FacilityID,
	}
	return nil
}

func (m memTariffs) GetByID(_ context.Context, tariffID string) (models.Tariff, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	tariff, ok := m.db.state.tariffs[tariffID]
	if !ok {
		return models.Tariff{}, sql.ErrNoRows
	}
	return tariff, nil
}

type memBookings struct{ db *memDB }

func (m memBookings) Create(_ context.Context, _ store.Execer, input store.BookingInput) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, existing := range m.db.state.bookings {
		if existing.Status == models.BookingActive && existing.SlotID == input.SlotID &&
			models.Overlaps(existing.StartTime, existing.EndTime, input.StartTime, input.EndTime) {
			return &pq.Error{Code: "23P01", Constraint: "bookings_no_overlap"}
		}
		if input.IdempotencyKey != nil && existing.IdempotencyKey != nil &&
			existing.UserID == input.UserID && *existing.IdempotencyKey == *input.IdempotencyKey {
			return &pq.Error{Code: "23505"}
		}
	}
	now := time.Now().UTC()
	m.db.state.bookings[input.ID] = models.Booking{
		ID:                   input.ID,
		UserID:               input.UserID,
		FacilityID:           input.FacilityID,
		SlotID:               input.SlotID,
		TariffID:             input.TariffID,
		StartTime:            input.StartTime,
		EndTime:              input.EndTime,
		Status:               models.BookingActive,
		TotalPrice:           input.TotalPrice,
		Currency:             input.Currency,
		PaymentStatus:        input.PaymentStatus,
		IsFree:               input.IsFree,
		PaymentTransactionID: input.PaymentTransactionID,
		IdempotencyKey:       input.IdempotencyKey,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	return nil
}

func (m memBookings) withLabel(booking models.Booking) models.Booking {
	booking.SlotLabel = m.db.state.slots[booking.SlotID].Label
	return booking
}

func (m memBookings) GetByID(_ context.Context, bookingID string) (models.Booking, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	booking, ok := m.db.state.bookings[bookingID]
	if !ok {
		return models.Booking{}, sql.ErrNoRows
	}
	return m.withLabel(booking), nil
}

func (m memBookings) GetForUpdate(ctx context.Context, _ store.Getter, bookingID string) (models.Booking, error) {
	return m.GetByID(ctx, bookingID)
}

func (m memBookings) GetByIdempotencyKey(_ context.Context, _ store.Getter, userID, key string) (models.Booking, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, booking := range m.db.state.bookings {
		if booking.UserID == userID && booking.IdempotencyKey != nil && *booking.IdempotencyKey == key {
			return m.withLabel(booking), nil
		}
	}
	return models.Booking{}, sql.ErrNoRows
}

func (m memBookings) HasOverlap(_ context.Context, _ store.Getter, facilityID, slotID string, start, end time.Time) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.skipOverlapCheck {
		return false, nil
	}
	for _, booking := range m.db.state.bookings {
		if booking.FacilityID == facilityID && booking.SlotID == slotID && booking.Status == models.BookingActive &&
			models.Overlaps(booking.StartTime, booking.EndTime, start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (m memBookings) UpdateStatus(_ context.Context, _ store.Execer, bookingID string, status models.BookingStatus, payment models.PaymentStatus) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	booking, ok := m.db.state.bookings[bookingID]
	if !ok || booking.Status != models.BookingActive {
		return 0, nil
	}
	booking.Status = status
	booking.PaymentStatus = payment
	booking.UpdatedAt = time.Now().UTC()
	m.db.state.bookings[bookingID] = booking
	return 1, nil
}

func (m memBookings) List(_ context.Context, filter store.BookingFilter) ([]models.Booking, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var rows []models.Booking
	for _, booking := range m.db.state.bookings {
		if filter.UserID != "" && booking.UserID != filter.UserID {
			continue
		}
		if filter.FacilityID != "" && booking.FacilityID != filter.FacilityID {
			continue
		}
		if filter.Status != "" && string(booking.Status) != filter.Status {
			continue
		}
		rows = append(rows, m.withLabel(booking))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StartTime.After(rows[j].StartTime) })
	return page(rows, int(filter.Limit), int(filter.Offset)), nil
}

func (m memBookings) ListOccupiedLabels(_ context.Context, facilityID string, asOf time.Time) ([]string, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	seen := map[string]bool{}
	var labels []string
	for _, booking := range m.db.state.bookings {
		if booking.FacilityID != facilityID || booking.Status != models.BookingActive {
			continue
		}
		if booking.StartTime.After(asOf) || !booking.EndTime.After(asOf) {
			continue
		}
		label := m.db.state.slots[booking.SlotID].Label
		if !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels, nil
}

func (m memBookings) ListExpiredActive(_ context.Context, before time.Time, limit int) ([]string, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var expired []models.Booking
	for _, booking := range m.db.state.bookings {
		if booking.Status == models.BookingActive && !booking.EndTime.After(before) {
			expired = append(expired, booking)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].EndTime.Before(expired[j].EndTime) })
	var ids []string
	for _, booking := range expired {
		if len(ids) == limit {
			break
		}
		ids = append(ids, booking.ID)
	}
	return ids, nil
}

func page[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"parking/internal/auth"
	"parking/internal/cache"
	"parking/internal/db"
	"parking/internal/events"
	"parking/internal/models"
	"parking/internal/money"
	"parking/internal/store"
	"parking/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type BookingStore interface {
	Create(ctx context.Context, tx store.Execer, input store.BookingInput) error
	GetByID(ctx context.Context, bookingID string) (models.Booking, error)
	GetForUpdate(ctx context.Context, tx store.Getter, bookingID string) (models.Booking, error)
	GetByIdempotencyKey(ctx context.Context, tx store.Getter, userID, key string) (models.Booking, error)
	HasOverlap(ctx context.Context, tx store.Getter, facilityID, slotID string, start, end time.Time) (bool, error)
	UpdateStatus(ctx context.Context, tx store.Execer, bookingID string, status models.BookingStatus, payment models.PaymentStatus) (int64, error)
	List(ctx context.Context, filter store.BookingFilter) ([]models.Booking, error)
	ListExpiredActive(ctx context.Context, before time.Time, limit int) ([]string, error)
}

type SlotLocker interface {
	AcquireSlotLock(ctx context.Context, facilityID, slotID string) (string, error)
	ReleaseSlotLock(ctx context.Context, facilityID, slotID, token string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.BookingEvent) error
}

type QRGenerator interface {
	Generate(booking models.Booking) (string, error)
}

type Recorder interface {
	ObserveBooking(operation, result string)
	ObserveFreeBooking()
	ObserveRefund(currency string, amountMinor int64)
}

const (
	defaultFreeDuration = 60 * time.Minute
	defaultTxTimeout    = 15 * time.Second
	publishTimeout      = 5 * time.Second
)

type BookingService struct {
	txRunner  db.TxRunner
	bookings  BookingStore
	inventory *Inventory
	ledger    *Ledger
	audit     AuditStore

	locker       SlotLocker
	publisher    EventPublisher
	qr           QRGenerator
	hub          BalanceHub
	metrics      Recorder
	logger       logrus.FieldLogger
	now          func() time.Time
	freeDuration time.Duration
	txTimeout    time.Duration
}

type BookingOption func(*BookingService)

func WithSlotLocker(locker SlotLocker) BookingOption {
	return func(s *BookingService) {
		s.locker = locker
	}
}

func WithPublisher(publisher EventPublisher) BookingOption {
	return func(s *BookingService) {
		s.publisher = publisher
	}
}

func WithQRGenerator(qr QRGenerator) BookingOption {
	return func(s *BookingService) {
		s.qr = qr
	}
}

func WithHub(hub BalanceHub) BookingOption {
	return func(s *BookingService) {
		s.hub = hub
	}
}

func WithMetrics(metrics Recorder) BookingOption {
	return func(s *BookingService) {
		s.metrics = metrics
	}
}

func WithLogger(logger logrus.FieldLogger) BookingOption {
	return func(s *BookingService) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) BookingOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func WithFreeDuration(d time.Duration) BookingOption {
	return func(s *BookingService) {
		if d > 0 {
			s.freeDuration = d
		}
	}
}

// WithTxTimeout bounds the mutation phase, which runs detached from the
// caller's cancellation.
func WithTxTimeout(d time.Duration) BookingOption {
	return func(s *BookingService) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

func NewBookingService(txRunner db.TxRunner, bookings BookingStore, inventory *Inventory, ledger *Ledger, audit AuditStore, opts ...BookingOption) *BookingService {
	service := &BookingService{
		txRunner:     txRunner,
		bookings:     bookings,
		inventory:    inventory,
		ledger:       ledger,
		audit:        audit,
		hub:          noopHub{},
		metrics:      noopRecorder{},
		logger:       logrus.StandardLogger(),
		now:          time.Now,
		freeDuration: defaultFreeDuration,
		txTimeout:    defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

type CreateBookingRequest struct {
	UserID         string
	FacilityID     string
	SlotID         string
	SpotNumber     string
	TariffID       string
	StartTime      time.Time
	UseFreeBooking bool
	IdempotencyKey string
}

type BookingResult struct {
	Booking  models.Booking
	QRCode   string
	IsFree   bool
	Message  string
	Replayed bool
}

// CreateBooking reserves a slot for the tariff's duration starting at
// StartTime. The overlap check, debit, booking insert and counter update
// commit together or not at all; a free claim made earlier in the same
// transaction is rolled back with them.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (result BookingResult, err error) {
	defer func() { s.metrics.ObserveBooking("create", Code(err)) }()
	if req.UserID == "" || req.FacilityID == "" || req.TariffID == "" {
		return BookingResult{}, invalidInput("parkingId and tariffId are required")
	}
	if req.StartTime.IsZero() {
		return BookingResult{}, invalidInput("startTime is required")
	}
	start := req.StartTime.UTC()

	slot, err := s.inventory.ResolveSlot(ctx, req.FacilityID, req.SlotID, req.SpotNumber)
	if err != nil {
		return BookingResult{}, err
	}
	tariff, err := s.inventory.ActiveTariff(ctx, req.TariffID, req.FacilityID)
	if err != nil {
		return BookingResult{}, err
	}
	release, err := s.lockSlot(ctx, req.FacilityID, slot.ID)
	if err != nil {
		return BookingResult{}, err
	}
	defer release()

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.txTimeout)
	defer cancel()

	var (
		booking  models.Booking
		payment  *Posting
		replayed bool
	)
	err = s.txRunner.WithTx(txCtx, func(tx *sqlx.Tx) error {
		booking, payment, replayed = models.Booking{}, nil, false
		if req.IdempotencyKey != "" {
			existing, err := s.bookings.GetByIdempotencyKey(txCtx, tx, req.UserID, req.IdempotencyKey)
			if err == nil {
				booking, replayed = existing, true
				return nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}

		locked, err := s.inventory.LockSlot(txCtx, tx, slot.ID)
		if err != nil {
			return err
		}
		if locked.Status == models.SlotMaintenance {
			return fmt.Errorf("%w: slot %s is under maintenance", ErrSlotUnavailable, locked.Label)
		}

		isFree := false
		duration := time.Duration(tariff.DurationMinutes) * time.Minute
		price := tariff.Price
		if req.UseFreeBooking {
			eligible, err := s.ledger.ConsumeFreeBooking(txCtx, tx, req.UserID)
			if err != nil {
				return err
			}
			if eligible {
				isFree, duration, price = true, s.freeDuration, 0
			}
		}
		end := start.Add(duration)

		overlap, err := s.bookings.HasOverlap(txCtx, tx, req.FacilityID, slot.ID, start, end)
		if err != nil {
			return err
		}
		if overlap {
			return fmt.Errorf("%w: spot %s is already booked for this time", ErrSlotUnavailable, slot.Label)
		}

		bookingID := uuid.NewString()
		var paymentID *string
		if price > 0 {
			posting, err := s.ledger.Debit(txCtx, tx, LedgerRequest{
				UserID:           req.UserID,
				Currency:         tariff.Currency,
				AmountMinor:      price,
				Description:      fmt.Sprintf("Parking spot %s, %s", slot.Label, tariff.Name),
				RelatedBookingID: &bookingID,
			})
			if err != nil {
				return err
			}
			payment, paymentID = &posting, &posting.TransactionID
		}

		var idempotencyKey *string
		if req.IdempotencyKey != "" {
			idempotencyKey = &req.IdempotencyKey
		}
		if err := s.bookings.Create(txCtx, tx, store.BookingInput{
			ID:                   bookingID,
			UserID:               req.UserID,
			FacilityID:           req.FacilityID,
			SlotID:               slot.ID,
			TariffID:             tariff.ID,
			StartTime:            start,
			EndTime:              end,
			TotalPrice:           price,
			Currency:             tariff.Currency,
			PaymentStatus:        models.PaymentPaid,
			IsFree:               isFree,
			PaymentTransactionID: paymentID,
			IdempotencyKey:       idempotencyKey,
		}); err != nil {
			switch {
			case db.IsExclusionViolation(err):
				return fmt.Errorf("%w: spot %s is already booked for this time", ErrSlotUnavailable, slot.Label)
			case db.IsUniqueViolation(err) && idempotencyKey != nil:
				return fmt.Errorf("%w: request with this idempotency key is already being processed", ErrInvalidState)
			}
			return err
		}
		if err := s.inventory.DecrementAvailable(txCtx, tx, req.FacilityID); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{
			"slot":    slot.Label,
			"price":   money.FormatMinor(price),
			"free":    isFree,
			"start":   start,
			"end":     end,
			"payment": paymentID,
		})
		if err := s.audit.Log(txCtx, tx, req.UserID, "booking_created", "booking", bookingID, string(data)); err != nil {
			return err
		}

		now := s.now().UTC()
		booking = models.Booking{
			ID:                   bookingID,
			UserID:               req.UserID,
			FacilityID:           req.FacilityID,
			SlotID:               slot.ID,
			SlotLabel:            slot.Label,
			TariffID:             tariff.ID,
			StartTime:            start,
			EndTime:              end,
			Status:               models.BookingActive,
			TotalPrice:           price,
			Currency:             tariff.Currency,
			PaymentStatus:        models.PaymentPaid,
			IsFree:               isFree,
			PaymentTransactionID: paymentID,
			IdempotencyKey:       idempotencyKey,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		return nil
	})
	if err != nil {
		return BookingResult{}, err
	}

	result = BookingResult{
		Booking:  booking,
		QRCode:   s.qrCode(booking),
		IsFree:   booking.IsFree,
		Replayed: replayed,
	}
	if replayed {
		result.Message = "Booking already created for this request"
		return result, nil
	}
	result.Message = "Booking created successfully"
	if booking.IsFree {
		result.Message = "Free booking created successfully"
		s.metrics.ObserveFreeBooking()
	}
	if payment != nil {
		s.notifyBalance(req.UserID, *payment)
	}
	s.hub.BroadcastBooking(req.UserID, websocket.BookingUpdate{BookingID: booking.ID, Status: string(booking.Status)})
	s.publish(ctx, events.BookingCreated, booking, false)
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"user_id":    booking.UserID,
		"slot":       booking.SlotLabel,
		"free":       booking.IsFree,
	}).Info("booking created")
	return result, nil
}

type CancelBookingRequest struct {
	BookingID     string
	RequesterID   string
	RequesterRole string
	Reason        string
}

// CancelBooking ends an active booking and returns the slot. A paid booking
// is refunded in full, in the currency it was charged in.
func (s *BookingService) CancelBooking(ctx context.Context, req CancelBookingRequest) (booking models.Booking, err error) {
	defer func() { s.metrics.ObserveBooking("cancel", Code(err)) }()
	current, err := s.loadForTransition(ctx, req.BookingID, req.RequesterID, req.RequesterRole, false)
	if err != nil {
		return models.Booking{}, err
	}

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.txTimeout)
	defer cancel()

	var refund *Posting
	err = s.txRunner.WithTx(txCtx, func(tx *sqlx.Tx) error {
		refund = nil
		locked, err := s.bookings.GetForUpdate(txCtx, tx, current.ID)
		if err != nil {
			return notFound("booking", err)
		}
		if locked.Status != models.BookingActive {
			return fmt.Errorf("%w: booking is %s", ErrInvalidState, locked.Status)
		}
		paymentStatus := locked.PaymentStatus
		if locked.TotalPrice > 0 && locked.PaymentStatus == models.PaymentPaid {
			posting, err := s.ledger.Credit(txCtx, tx, LedgerRequest{
				UserID:           locked.UserID,
				Currency:         locked.Currency,
				AmountMinor:      locked.TotalPrice,
				Type:             models.TransactionRefund,
				Description:      fmt.Sprintf("Refund for cancelled booking, spot %s", locked.SlotLabel),
				RelatedBookingID: &locked.ID,
			})
			if err != nil {
				return err
			}
			refund = &posting
			paymentStatus = models.PaymentRefunded
		}
		if err := s.finish(txCtx, tx, &locked, models.BookingCancelled, paymentStatus); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{
			"reason":   req.Reason,
			"refunded": refund != nil,
			"amount":   money.FormatMinor(locked.TotalPrice),
			"currency": locked.Currency,
		})
		if err := s.audit.Log(txCtx, tx, req.RequesterID, "booking_cancelled", "booking", locked.ID, string(data)); err != nil {
			return err
		}
		booking = locked
		return nil
	})
	if err != nil {
		return models.Booking{}, err
	}

	if refund != nil {
		s.notifyBalance(booking.UserID, *refund)
		s.metrics.ObserveRefund(booking.Currency, booking.TotalPrice)
	}
	s.hub.BroadcastBooking(booking.UserID, websocket.BookingUpdate{BookingID: booking.ID, Status: string(booking.Status)})
	s.publish(ctx, events.BookingCancelled, booking, refund != nil)
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"by":         req.RequesterID,
		"refunded":   refund != nil,
	}).Info("booking cancelled")
	return booking, nil
}

type CompleteBookingRequest struct {
	BookingID     string
	RequesterID   string
	RequesterRole string
}

// CompleteBooking finalizes an active booking without a refund. An empty
// requester is the expiry sweeper.
func (s *BookingService) CompleteBooking(ctx context.Context, req CompleteBookingRequest) (booking models.Booking, err error) {
	defer func() { s.metrics.ObserveBooking("complete", Code(err)) }()
	current, err := s.loadForTransition(ctx, req.BookingID, req.RequesterID, req.RequesterRole, true)
	if err != nil {
		return models.Booking{}, err
	}

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.txTimeout)
	defer cancel()

	err = s.txRunner.WithTx(txCtx, func(tx *sqlx.Tx) error {
		locked, err := s.bookings.GetForUpdate(txCtx, tx, current.ID)
		if err != nil {
			return notFound("booking", err)
		}
		if locked.Status != models.BookingActive {
			return fmt.Errorf("%w: booking is %s", ErrInvalidState, locked.Status)
		}
		if err := s.finish(txCtx, tx, &locked, models.BookingCompleted, locked.PaymentStatus); err != nil {
			return err
		}
		if err := s.audit.Log(txCtx, tx, req.RequesterID, "booking_completed", "booking", locked.ID, "{}"); err != nil {
			return err
		}
		booking = locked
		return nil
	})
	if err != nil {
		return models.Booking{}, err
	}

	s.hub.BroadcastBooking(booking.UserID, websocket.BookingUpdate{BookingID: booking.ID, Status: string(booking.Status)})
	s.publish(ctx, events.BookingCompleted, booking, false)
	return booking, nil
}

// finish moves the locked booking to a terminal status and returns its slot
// to the facility counter.
func (s *BookingService) finish(ctx context.Context, tx store.Tx, booking *models.Booking, status models.BookingStatus, payment models.PaymentStatus) error {
	rows, err := s.bookings.UpdateStatus(ctx, tx, booking.ID, status, payment)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: booking is no longer active", ErrInvalidState)
	}
	if err := s.inventory.IncrementAvailable(ctx, tx, booking.FacilityID); err != nil {
		return err
	}
	booking.Status = status
	booking.PaymentStatus = payment
	booking.UpdatedAt = s.now().UTC()
	return nil
}

func (s *BookingService) loadForTransition(ctx context.Context, bookingID, requesterID, role string, allowSystem bool) (models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return models.Booking{}, notFound("booking", err)
	}
	if !(allowSystem && requesterID == "") && !canAccess(booking, requesterID, role) {
		return models.Booking{}, fmt.Errorf("%w: booking belongs to another user", ErrForbidden)
	}
	if booking.Status != models.BookingActive {
		return models.Booking{}, fmt.Errorf("%w: booking is %s", ErrInvalidState, booking.Status)
	}
	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, bookingID, requesterID, role string) (BookingResult, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return BookingResult{}, notFound("booking", err)
	}
	if !canAccess(booking, requesterID, role) {
		return BookingResult{}, fmt.Errorf("%w: booking belongs to another user", ErrForbidden)
	}
	result := BookingResult{Booking: booking, IsFree: booking.IsFree}
	if booking.Status == models.BookingActive {
		result.QRCode = s.qrCode(booking)
	}
	return result, nil
}

func (s *BookingService) ListBookings(ctx context.Context, filter store.BookingFilter) ([]models.Booking, error) {
	if filter.Status != "" {
		switch models.BookingStatus(filter.Status) {
		case models.BookingActive, models.BookingCompleted, models.BookingCancelled:
		default:
			return nil, invalidInput("status %q", filter.Status)
		}
	}
	if filter.Limit == 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	bookings, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	return bookings, nil
}

// CompleteExpired completes up to limit active bookings whose window ended
// at or before now. Bookings finished concurrently by their owner are
// skipped.
func (s *BookingService) CompleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	ids, err := s.bookings.ListExpiredActive(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	completed := 0
	var failures []error
	for _, id := range ids {
		if ctx.Err() != nil {
			failures = append(failures, ctx.Err())
			break
		}
		_, err := s.CompleteBooking(ctx, CompleteBookingRequest{BookingID: id})
		switch {
		case err == nil:
			completed++
		case errors.Is(err, ErrInvalidState), errors.Is(err, ErrNotFound):
		default:
			s.logger.WithError(err).WithField("booking_id", id).Warn("failed to complete expired booking")
			failures = append(failures, err)
		}
	}
	return completed, errors.Join(failures...)
}

// lockSlot takes the distributed slot lock when one is configured. Redis
// being unreachable is not fatal: the row lock and the exclusion constraint
// still serialize the slot.
func (s *BookingService) lockSlot(ctx context.Context, facilityID, slotID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	token, err := s.locker.AcquireSlotLock(ctx, facilityID, slotID)
	if err != nil {
		if errors.Is(err, cache.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: spot is being booked by another request", ErrSlotUnavailable)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.WithError(err).WithField("slot_id", slotID).Warn("slot lock unavailable, relying on database locking")
		return func() {}, nil
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := s.locker.ReleaseSlotLock(releaseCtx, facilityID, slotID, token); err != nil {
			s.logger.WithError(err).WithField("slot_id", slotID).Warn("failed to release slot lock")
		}
	}, nil
}

func (s *BookingService) qrCode(booking models.Booking) string {
	if s.qr == nil {
		return ""
	}
	code, err := s.qr.Generate(booking)
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("failed to generate booking code")
		return ""
	}
	return code
}

func (s *BookingService) notifyBalance(userID string, posting Posting) {
	s.hub.BroadcastBalance(userID, websocket.BalanceUpdate{
		AccountID: posting.AccountID,
		Currency:  posting.Currency,
		Balance:   money.FormatMinor(posting.BalanceMinor),
	})
}

// publish is fire and forget; the booking is already committed.
func (s *BookingService) publish(ctx context.Context, eventType string, booking models.Booking, refunded bool) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	event := events.BookingEvent{
		Type:       eventType,
		BookingID:  booking.ID,
		UserID:     booking.UserID,
		FacilityID: booking.FacilityID,
		SlotLabel:  booking.SlotLabel,
		Status:     string(booking.Status),
		StartTime:  booking.StartTime,
		EndTime:    booking.EndTime,
		Amount:     money.FormatMinor(booking.TotalPrice),
		Currency:   booking.Currency,
		IsFree:     booking.IsFree,
		Refunded:   refunded,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(pubCtx, event); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"type":       eventType,
		}).Warn("failed to publish booking event")
	}
}

func canAccess(booking models.Booking, requesterID, role string) bool {
	return role == auth.RoleAdmin || (requesterID != "" && requesterID == booking.UserID)
}

type noopRecorder struct{}

func (noopRecorder) ObserveBooking(string, string) {}
func (noopRecorder) ObserveFreeBooking()           {}
func (noopRecorder) ObserveRefund(string, int64)   {}

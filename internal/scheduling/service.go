package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/booking"
	"github.com/hackgods/clinic-slot-scheduling/internal/events"
	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
	"github.com/hackgods/clinic-slot-scheduling/internal/metrics"
	"github.com/hackgods/clinic-slot-scheduling/internal/patient"
	"github.com/hackgods/clinic-slot-scheduling/internal/policy"
	"github.com/hackgods/clinic-slot-scheduling/internal/rules"
	"github.com/hackgods/clinic-slot-scheduling/internal/slot"
)

const (
	DurationFromRule   = "rule"
	DurationFromPolicy = "policy"
)

const publishTimeout = 2 * time.Second

// Deps are the collaborators of the service. Directory, Translator,
// Publisher, Metrics and Logger are optional.
type Deps struct {
	Catalog    slot.Catalog
	Ledger     booking.Ledger
	Rules      rules.Store
	Directory  patient.Directory
	Translator rules.Translator
	Publisher  events.Publisher
	Metrics    *metrics.SchedulingMetrics
	Logger     *zap.Logger
}

type Options struct {
	// MaxOfferedSlots truncates offers. Zero means no limit.
	MaxOfferedSlots int
}

type Service struct {
	catalog    slot.Catalog
	ledger     booking.Ledger
	rules      rules.Store
	directory  patient.Directory
	translator rules.Translator
	publisher  events.Publisher
	metrics    *metrics.SchedulingMetrics
	log        *zap.Logger
	policy     policy.Table
	opts       Options
}

func NewService(d Deps, pol policy.Table, opts Options) *Service {
	pub := d.Publisher
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		catalog:    d.Catalog,
		ledger:     d.Ledger,
		rules:      d.Rules,
		directory:  d.Directory,
		translator: d.Translator,
		publisher:  pub,
		metrics:    d.Metrics,
		log:        logging.OrNop(d.Logger),
		policy:     pol,
		opts:       opts,
	}
}

type SlotQuery struct {
	Profile patient.Profile `json:"profile"`
	Date    string          `json:"date,omitempty"`
}

type Offer struct {
	Slots          []slot.Slot `json:"slots"`
	Duration       int         `json:"duration"`
	DurationSource string      `json:"duration_source"`
	MatchedRules   []int       `json:"matched_rules,omitempty"`
	// Total is the number of slots before truncation.
	Total int `json:"total"`
}

type BookingRequest struct {
	Profile  patient.Profile `json:"profile"`
	Date     string          `json:"date"`
	Time     string          `json:"time"`
	Doctor   string          `json:"doctor"`
	Duration *int            `json:"duration,omitempty"`
}

// ListAvailableSlots returns the catalog slots nobody holds, filtered and
// ordered by the rules that match the profile. If occupancy cannot be read
// no offer is made.
func (s *Service) ListAvailableSlots(ctx context.Context, q SlotQuery) (*Offer, error) {
	if err := q.Profile.Validate(); err != nil {
		return nil, err
	}
	date, err := normalizeDate(q.Date)
	if err != nil {
		return nil, err
	}

	candidates, err := s.freeSlots(ctx, date)
	if err != nil {
		return nil, err
	}

	ruleList, err := s.ruleSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	res := rules.EvaluateTrace(q.Profile, candidates, ruleList)

	offer := &Offer{
		Slots:        res.Slots,
		MatchedRules: res.Matched,
		Total:        len(res.Slots),
	}
	offer.Duration, offer.DurationSource = s.resolveDuration(q.Profile, res.Duration)

	if limit := s.opts.MaxOfferedSlots; limit > 0 && len(offer.Slots) > limit {
		offer.Slots = offer.Slots[:limit]
	}
	if offer.Slots == nil {
		offer.Slots = []slot.Slot{}
	}

	s.metrics.ObserveOffer(len(offer.Slots))
	s.log.Debug("slots offered",
		zap.String("patient_type", q.Profile.Type()),
		zap.String("date", date),
		zap.Int("offered", len(offer.Slots)),
		zap.Int("total", offer.Total),
		zap.Int("duration", offer.Duration),
		zap.Ints("matched_rules", res.Matched),
	)
	return offer, nil
}

// freeSlots is catalog availability minus live bookings.
func (s *Service) freeSlots(ctx context.Context, date string) ([]slot.Slot, error) {
	available, err := s.catalog.ListAvailable(ctx, slot.Filter{Date: date})
	if err != nil {
		return nil, fmt.Errorf("list catalog slots: %w", err)
	}
	occupied, err := s.ledger.Occupied(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("read slot occupancy: %w", err)
	}

	free := make([]slot.Slot, 0, len(available))
	for _, sl := range available {
		if occupied[sl.Key()] {
			continue
		}
		free = append(free, sl)
	}
	return free, nil
}

func (s *Service) ruleSnapshot(ctx context.Context) ([]rules.Rule, error) {
	if s.rules == nil {
		return nil, nil
	}
	entries, err := s.rules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return rules.Rules(entries), nil
}

func (s *Service) resolveDuration(p patient.Profile, override *int) (int, string) {
	if override != nil {
		return *override, DurationFromRule
	}
	return s.policy.DurationFor(p.IsNew), DurationFromPolicy
}

// EffectiveDuration is the visit length the profile would get with the
// current rules, and where it came from.
func (s *Service) EffectiveDuration(ctx context.Context, p patient.Profile) (int, string, error) {
	ruleList, err := s.ruleSnapshot(ctx)
	if err != nil {
		return 0, "", err
	}
	_, override := rules.Evaluate(p, nil, ruleList)
	d, src := s.resolveDuration(p, override)
	return d, src, nil
}

// BookSlot commits the requested slot for the patient. A slot that is gone,
// blocked, excluded by the rules for this profile or already held yields
// ErrSlotUnavailable.
func (s *Service) BookSlot(ctx context.Context, req BookingRequest) (*booking.Record, error) {
	start := time.Now()

	rec, err := s.bookSlot(ctx, req)

	outcome := "booked"
	switch KindOf(err) {
	case KindNone:
	case KindSlotUnavailable:
		outcome = "unavailable"
	case KindValidation:
		outcome = "invalid"
	default:
		outcome = "error"
	}
	s.metrics.ObserveBooking(outcome, time.Since(start).Seconds())

	return rec, err
}

func (s *Service) bookSlot(ctx context.Context, req BookingRequest) (*booking.Record, error) {
	if err := req.Profile.Validate(); err != nil {
		return nil, err
	}
	key, err := slot.Key{Date: req.Date, Time: req.Time, Doctor: req.Doctor}.Normalize()
	if err != nil {
		return nil, err
	}

	if req.Duration != nil && *req.Duration <= 0 {
		return nil, &patient.ValidationError{Fields: map[string]string{"duration": "must be a positive number of minutes"}}
	}

	sl, err := s.catalog.Get(ctx, key)
	if err != nil {
		if errors.Is(err, slot.ErrSlotNotFound) {
			return nil, fmt.Errorf("%w: %s is not in the schedule", ErrSlotUnavailable, key)
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if !sl.Available {
		return nil, fmt.Errorf("%w: %s is blocked", ErrSlotUnavailable, key)
	}

	// The rules that shaped the offer also decide whether this slot may be taken.
	ruleList, err := s.ruleSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	allowed, override := rules.Evaluate(req.Profile, []slot.Slot{*sl}, ruleList)
	if len(allowed) == 0 {
		return nil, fmt.Errorf("%w: %s is excluded by scheduling rules", ErrSlotUnavailable, key)
	}

	duration, _ := s.resolveDuration(req.Profile, override)
	if req.Duration != nil {
		duration = *req.Duration
	}

	rec := &booking.Record{
		Patient:  req.Profile,
		Slot:     key,
		Duration: duration,
	}
	ok, err := s.ledger.TryBook(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("commit booking: %w", err)
	}
	if !ok {
		s.log.Info("slot taken", zap.String("slot", key.String()))
		return nil, ErrSlotUnavailable
	}

	s.log.Info("slot booked",
		zap.String("booking_id", rec.ID.String()),
		zap.String("slot", key.String()),
		zap.String("patient_type", req.Profile.Type()),
		zap.Int("duration", duration),
	)

	s.rememberPatient(ctx, req.Profile)
	s.publish(ctx, events.TypeBookingCreated, rec)

	return rec, nil
}

func (s *Service) rememberPatient(ctx context.Context, p patient.Profile) {
	if s.directory == nil {
		return
	}
	if _, err := s.directory.Register(ctx, p); err != nil {
		s.log.Warn("failed to register patient",
			zap.String("patient", p.FullName()),
			zap.Error(err),
		)
	}
}

// ResolveProfile looks the patient up by name and date of birth. A known
// patient is marked returning and missing contact details are filled in.
func (s *Service) ResolveProfile(ctx context.Context, p patient.Profile) (patient.Profile, error) {
	if err := p.Validate(); err != nil {
		return p, err
	}
	if s.directory == nil {
		return p, nil
	}

	found, err := s.directory.Find(ctx, p.FirstName, p.LastName, p.DateOfBirth)
	if errors.Is(err, patient.ErrPatientNotFound) {
		p.IsNew = true
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("lookup patient: %w", err)
	}

	p.IsNew = false
	if p.Email == "" {
		p.Email = found.Profile.Email
	}
	if p.Phone == "" {
		p.Phone = found.Profile.Phone
	}
	return p, nil
}

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*booking.Record, error) {
	rec, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return rec, nil
}

func (s *Service) ListBookings(ctx context.Context, f booking.ListFilter) ([]booking.Record, error) {
	recs, err := s.ledger.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return recs, nil
}

func (s *Service) ConfirmBooking(ctx context.Context, id uuid.UUID) (*booking.Record, error) {
	rec, err := s.ledger.Confirm(ctx, id)
	return s.afterTransition(ctx, booking.StatusConfirmed, events.TypeBookingConfirmed, rec, err)
}

// CancelBooking frees the slot. An empty reason is stored as "No reason".
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID, reason string) (*booking.Record, error) {
	rec, err := s.ledger.Cancel(ctx, id, reason)
	return s.afterTransition(ctx, booking.StatusCancelled, events.TypeBookingCancelled, rec, err)
}

func (s *Service) MarkFormFilled(ctx context.Context, id uuid.UUID) (*booking.Record, error) {
	rec, err := s.ledger.MarkFormFilled(ctx, id)
	return s.afterTransition(ctx, booking.StatusFormSubmitted, events.TypeBookingFormFilled, rec, err)
}

func (s *Service) afterTransition(ctx context.Context, to booking.Status, eventType string, rec *booking.Record, err error) (*booking.Record, error) {
	s.metrics.ObserveTransition(string(to), err)
	if err != nil {
		return nil, fmt.Errorf("%s booking: %w", to, err)
	}
	s.log.Info("booking status changed",
		zap.String("booking_id", rec.ID.String()),
		zap.String("status", string(rec.Status)),
	)
	s.publish(ctx, eventType, rec)
	return rec, nil
}

// publish is best-effort: a failure is logged and never undoes the booking.
func (s *Service) publish(ctx context.Context, eventType string, rec *booking.Record) {
	id := rec.ID
	ev, err := events.New(eventType, &id, events.BookingPayload{
		PatientName: rec.Patient.FullName(),
		Email:       rec.Patient.Email,
		Phone:       rec.Patient.Phone,
		IsNew:       rec.Patient.IsNew,
		Date:        rec.Slot.Date,
		Time:        rec.Slot.Time,
		Doctor:      rec.Slot.Doctor,
		Duration:    rec.Duration,
		Status:      string(rec.Status),
		Reason:      rec.CancelReason,
	})
	if err != nil {
		s.log.Warn("failed to build event", zap.String("type", eventType), zap.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, ev); err != nil {
		s.log.Warn("failed to publish event",
			zap.String("type", eventType),
			zap.String("booking_id", id.String()),
			zap.Error(err),
		)
	}
}

func normalizeDate(date string) (string, error) {
	if date == "" {
		return "", nil
	}
	d, err := time.Parse(slot.DateLayout, date)
	if err != nil {
		return "", &slot.KeyError{Fields: map[string]string{"date": fmt.Sprintf("%q is not a YYYY-MM-DD date", date)}}
	}
	return d.Format(slot.DateLayout), nil
}

package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/events"
	"github.com/hackgods/clinic-slot-scheduling/internal/rules"
	"github.com/hackgods/clinic-slot-scheduling/internal/slot"
)

var errNoRuleStore = errors.New("rule store not configured")

func (s *Service) ListRules(ctx context.Context) ([]rules.Entry, error) {
	if s.rules == nil {
		return nil, errNoRuleStore
	}
	entries, err := s.rules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return entries, nil
}

// AddRule appends a structured rule. It takes effect on the next offer.
func (s *Service) AddRule(ctx context.Context, r rules.Rule) (rules.Entry, error) {
	if s.rules == nil {
		return rules.Entry{}, errNoRuleStore
	}
	if err := r.Validate(); err != nil {
		return rules.Entry{}, &ruleError{err: err}
	}

	e, err := s.rules.Append(ctx, r)
	if err != nil {
		return rules.Entry{}, fmt.Errorf("store rule: %w", err)
	}

	s.log.Info("rule added", zap.Int("index", e.Index), zap.String("rule", e.Rule.String()))
	s.publishRule(ctx, events.TypeRuleAdded, e)
	return e, nil
}

// AddRuleFromText translates an admin sentence and stores the result.
// Nothing is stored when translation fails.
func (s *Service) AddRuleFromText(ctx context.Context, text string) (rules.Entry, error) {
	if s.translator == nil {
		return rules.Entry{}, fmt.Errorf("%w: no translator configured", rules.ErrTranslation)
	}

	r, err := s.translator.Translate(ctx, text)
	s.metrics.ObserveTranslation(err == nil)
	if err != nil {
		return rules.Entry{}, err
	}
	if r.RawText == "" {
		r.RawText = strings.TrimSpace(text)
	}
	return s.AddRule(ctx, r)
}

func (s *Service) DeleteRule(ctx context.Context, index int) error {
	if s.rules == nil {
		return errNoRuleStore
	}
	if err := s.rules.Delete(ctx, index); err != nil {
		return fmt.Errorf("delete rule %d: %w", index, err)
	}
	s.log.Info("rule deleted", zap.Int("index", index))
	s.publishRule(ctx, events.TypeRuleDeleted, rules.Entry{Index: index})
	return nil
}

func (s *Service) publishRule(ctx context.Context, eventType string, e rules.Entry) {
	ev, err := events.New(eventType, nil, e)
	if err != nil {
		s.log.Warn("failed to build event", zap.String("type", eventType), zap.Error(err))
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, ev); err != nil {
		s.log.Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}

// GenerateSlots seeds the catalog grid. Existing slots keep their flag.
func (s *Service) GenerateSlots(ctx context.Context, g slot.Grid) (int, error) {
	n, err := s.catalog.Generate(ctx, g)
	if err != nil {
		return 0, fmt.Errorf("generate slots: %w", err)
	}
	s.log.Info("slot grid generated", zap.Int("created", n), zap.Int("days", g.Days), zap.Strings("doctors", g.Doctors))
	return n, nil
}

// SetSlotAvailability blocks or reopens a catalog slot. Bookings already
// made for the slot are not touched.
func (s *Service) SetSlotAvailability(ctx context.Context, k slot.Key, available bool) error {
	key, err := k.Normalize()
	if err != nil {
		return err
	}
	if err := s.catalog.SetAvailability(ctx, key, available); err != nil {
		return fmt.Errorf("set slot availability: %w", err)
	}
	s.log.Info("slot availability changed", zap.String("slot", key.String()), zap.Bool("available", available))
	return nil
}

// ruleError marks a structurally invalid rule as a validation problem.
type ruleError struct{ err error }

func (e *ruleError) Error() string { return "invalid rule: " + e.err.Error() }
func (e *ruleError) Unwrap() error { return e.err }

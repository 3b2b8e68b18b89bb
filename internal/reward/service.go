package reward

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/backend-b2b/internal/common"
	"github.com/noah-isme/backend-b2b/internal/events"
	"github.com/noah-isme/backend-b2b/internal/obs"
)

// Store captures the persistence operations required by the reward service.
type Store interface {
	ListTiers(ctx context.Context, f TierFilter) ([]Tier, error)
	GetTier(ctx context.Context, id uuid.UUID) (Tier, error)
	CreateTier(ctx context.Context, t Tier) (Tier, error)
	UpdateTier(ctx context.Context, t Tier) (Tier, error)
	CartonTotals(ctx context.Context, p Period) ([]CartonTotal, error)
	UpsertPending(ctx context.Context, c Calculation) (CustomerReward, UpsertOutcome, error)
	GetReward(ctx context.Context, id uuid.UUID) (CustomerReward, error)
	ListRewards(ctx context.Context, p ListParams) ([]CustomerReward, int, error)
	ListProcessable(ctx context.Context, p Period, now time.Time) ([]CustomerReward, error)
	ClaimForProcessing(ctx context.Context, id uuid.UUID, now, leaseUntil time.Time) (CustomerReward, bool, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, lease time.Time, paymentID string, at time.Time) (CustomerReward, bool, error)
	ReleaseClaim(ctx context.Context, id uuid.UUID, lease time.Time) error
	SetAdjustment(ctx context.Context, id uuid.UUID, amount decimal.Decimal, notes *string) (CustomerReward, bool, error)
	Cancel(ctx context.Context, id uuid.UUID) (CustomerReward, bool, error)
	CreditRewardBalance(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) error
	InTx(ctx context.Context, fn func(Store) error) error
}

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.Event, error)
}

// TierInput is the payload for creating or replacing a tier.
type TierInput struct {
	Quarter           int             `json:"quarter" validate:"required,min=1,max=4"`
	Year              int             `json:"year" validate:"required,min=2000,max=9999"`
	MinCartons        int             `json:"minCartons" validate:"min=0"`
	MaxCartons        *int            `json:"maxCartons" validate:"omitempty,min=0"`
	CashbackPerCarton decimal.Decimal `json:"cashbackPerCarton"`
	IsActive          *bool           `json:"isActive"`
}

func (in TierInput) tier(id uuid.UUID) Tier {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return Tier{
		ID:                id,
		Quarter:           in.Quarter,
		Year:              in.Year,
		MinCartons:        in.MinCartons,
		MaxCartons:        in.MaxCartons,
		CashbackPerCarton: in.CashbackPerCarton,
		IsActive:          active,
	}
}

const (
	defaultLockTTL     = 2 * time.Minute
	defaultLease       = 5 * time.Minute
	defaultConcurrency = 4
)

// Service calculates and pays quarterly carton rewards.
type Service struct {
	Store       Store
	Lock        Locker
	Events      Emitter
	Logger      zerolog.Logger
	Now         func() time.Time
	LockTTL     time.Duration
	Lease       time.Duration
	Concurrency int
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("reward service not configured")
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) lease() time.Duration {
	if s.Lease > 0 {
		return s.Lease
	}
	return defaultLease
}

func (s *Service) concurrency() int {
	if s.Concurrency > 0 {
		return s.Concurrency
	}
	return defaultConcurrency
}

// ListTiers returns reward tiers matching the filter.
func (s *Service) ListTiers(ctx context.Context, f TierFilter) ([]Tier, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.Store.ListTiers(ctx, f)
}

// CreateTier adds a tier after checking it against the period's other tiers.
func (s *Service) CreateTier(ctx context.Context, in TierInput) (Tier, error) {
	if err := s.ready(); err != nil {
		return Tier{}, err
	}
	if err := common.ValidateStruct(in); err != nil {
		return Tier{}, err
	}
	candidate := in.tier(uuid.Nil)
	var created Tier
	err := s.Store.InTx(ctx, func(tx Store) error {
		existing, err := tx.ListTiers(ctx, TierFilter{Quarter: candidate.Quarter, Year: candidate.Year})
		if err != nil {
			return err
		}
		if err := ValidateTiers(append(existing, candidate)); err != nil {
			return err
		}
		created, err = tx.CreateTier(ctx, candidate)
		return err
	})
	return created, err
}

// UpdateTier replaces a tier after checking it against its period's other tiers.
func (s *Service) UpdateTier(ctx context.Context, id uuid.UUID, in TierInput) (Tier, error) {
	if err := s.ready(); err != nil {
		return Tier{}, err
	}
	if err := common.ValidateStruct(in); err != nil {
		return Tier{}, err
	}
	candidate := in.tier(id)
	var updated Tier
	err := s.Store.InTx(ctx, func(tx Store) error {
		if _, err := tx.GetTier(ctx, id); err != nil {
			return err
		}
		existing, err := tx.ListTiers(ctx, TierFilter{Quarter: candidate.Quarter, Year: candidate.Year})
		if err != nil {
			return err
		}
		others := existing[:0]
		for _, t := range existing {
			if t.ID != id {
				others = append(others, t)
			}
		}
		if err := ValidateTiers(append(others, candidate)); err != nil {
			return err
		}
		updated, err = tx.UpdateTier(ctx, candidate)
		return err
	})
	return updated, err
}

// List returns reward records matching the filter.
func (s *Service) List(ctx context.Context, p ListParams) ([]View, int, error) {
	if err := s.ready(); err != nil {
		return nil, 0, err
	}
	if p.Status != "" && !p.Status.Valid() {
		return nil, 0, common.Detailed(common.ErrValidation, "unknown reward status", map[string]string{"status": string(p.Status)})
	}
	rows, total, err := s.Store.ListRewards(ctx, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]View, 0, len(rows))
	for _, r := range rows {
		out = append(out, NewView(r))
	}
	return out, total, nil
}

// Calculate recomputes the rewards of every customer with delivered orders
// in the period. Only pending records are rewritten. Runs for the same period
// are serialised through the lock.
func (s *Service) Calculate(ctx context.Context, p Period) (CalculationResult, error) {
	if err := s.ready(); err != nil {
		return CalculationResult{}, err
	}
	if err := p.Validate(); err != nil {
		return CalculationResult{}, err
	}
	if s.Lock == nil {
		return s.calculate(ctx, p)
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	var res CalculationResult
	err := s.Lock.WithLock(ctx, "reward:calculate:"+p.String(), ttl, func(ctx context.Context) error {
		var err error
		res, err = s.calculate(ctx, p)
		return err
	})
	return res, err
}

func (s *Service) calculate(ctx context.Context, p Period) (CalculationResult, error) {
	tiers, err := s.Store.ListTiers(ctx, TierFilter{Quarter: p.Quarter, Year: p.Year, ActiveOnly: true})
	if err != nil {
		return CalculationResult{}, err
	}
	totals, err := s.Store.CartonTotals(ctx, p)
	if err != nil {
		return CalculationResult{}, err
	}
	res := CalculationResult{Period: p, Customers: len(totals), Records: []View{}}
	for _, ct := range totals {
		amount, tier := CalculateReward(ct.Cartons, tiers)
		calc := Calculation{CustomerID: ct.CustomerID, Period: p, Cartons: ct.Cartons, CalculatedReward: amount}
		if tier != nil {
			id := tier.ID
			calc.EligibleTierID = &id
		}
		rec, outcome, err := s.Store.UpsertPending(ctx, calc)
		if err != nil {
			return res, fmt.Errorf("calculate reward for customer %s: %w", ct.CustomerID, err)
		}
		switch outcome {
		case UpsertSkipped:
			res.Untouched++
			continue
		case UpsertCapped:
			res.Capped++
			s.Logger.Warn().
				Str("reward_id", rec.ID.String()).
				Str("customer_id", rec.CustomerID.String()).
				Str("calculated_reward", rec.CalculatedReward.StringFixed(2)).
				Str("manual_adjustment", rec.ManualAdjustment.StringFixed(2)).
				Msg("manual adjustment capped at recalculated reward")
		}
		res.Updated++
		res.Records = append(res.Records, NewView(rec))
	}
	s.Logger.Info().
		Str("period", p.String()).
		Int("customers", res.Customers).
		Int("updated", res.Updated).
		Int("untouched", res.Untouched).
		Int("capped", res.Capped).
		Msg("reward calculation finished")
	return res, nil
}

// SetAdjustment sets the manual adjustment of a pending record. The final
// reward may not become negative.
func (s *Service) SetAdjustment(ctx context.Context, id uuid.UUID, amount decimal.Decimal, notes *string) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	current, err := s.Store.GetReward(ctx, id)
	if err != nil {
		return View{}, err
	}
	if current.Status != StatusPending {
		return View{}, notPending(current.Status)
	}
	amount = amount.Round(2)
	if final := current.CalculatedReward.Add(amount); final.IsNegative() {
		return View{}, common.Detailed(common.ErrValidation, "adjustment would make the final reward negative",
			map[string]string{
				"calculatedReward": current.CalculatedReward.StringFixed(2),
				"manualAdjustment": amount.StringFixed(2),
			})
	}
	updated, ok, err := s.Store.SetAdjustment(ctx, id, amount, notes)
	if err != nil {
		return View{}, err
	}
	if !ok {
		latest, err := s.Store.GetReward(ctx, id)
		if err != nil {
			return View{}, err
		}
		if latest.Status == StatusPending {
			return View{}, common.Detailed(common.ErrValidation, "adjustment would make the final reward negative",
				map[string]string{
					"calculatedReward": latest.CalculatedReward.StringFixed(2),
					"manualAdjustment": amount.StringFixed(2),
				})
		}
		return View{}, notPending(latest.Status)
	}
	return NewView(updated), nil
}

// Cancel withdraws a pending record.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	cancelled, ok, err := s.Store.Cancel(ctx, id)
	if err != nil {
		return View{}, err
	}
	if !ok {
		current, err := s.Store.GetReward(ctx, id)
		if err != nil {
			return View{}, err
		}
		return View{}, invalidTransition(current.Status, StatusCancelled)
	}
	return NewView(cancelled), nil
}

// Process pays every pending reward of the period. Each record is claimed,
// credited and finalised on its own so a failure leaves the others intact,
// and records already processed are skipped.
func (s *Service) Process(ctx context.Context, p Period) (BatchResult, error) {
	if err := s.ready(); err != nil {
		return BatchResult{}, err
	}
	if err := p.Validate(); err != nil {
		return BatchResult{}, err
	}
	started := time.Now()
	records, err := s.Store.ListProcessable(ctx, p, s.now())
	if err != nil {
		return BatchResult{}, err
	}
	res := BatchResult{Period: p, Results: make([]RecordResult, len(records))}
	var g errgroup.Group
	g.SetLimit(s.concurrency())
	for i, rec := range records {
		g.Go(func() error {
			res.Results[i] = s.processOne(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()
	res.tally()
	obs.ObserveRewardBatch(float64(time.Since(started).Milliseconds()))
	s.Logger.Info().
		Str("period", p.String()).
		Int("processed", res.Processed).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("reward batch finished")
	return res, nil
}

func (s *Service) processOne(ctx context.Context, rec CustomerReward) RecordResult {
	result := RecordResult{RewardID: rec.ID, CustomerID: rec.CustomerID}
	now := s.now()
	lease := now.Add(s.lease()).Truncate(time.Microsecond)
	claimed, ok, err := s.Store.ClaimForProcessing(ctx, rec.ID, now, lease)
	if err != nil {
		return s.failed(result, err)
	}
	if !ok {
		result.Outcome = OutcomeSkipped
		obs.IncRewardRecord(string(OutcomeSkipped))
		return result
	}
	if claimed.LeaseExpiresAt != nil {
		lease = *claimed.LeaseExpiresAt
	}
	amount := claimed.FinalReward()
	result.Amount = amount
	if amount.IsNegative() {
		s.release(ctx, claimed.ID, lease)
		return s.failed(result, common.Detailed(common.ErrValidation, "final reward is negative", nil))
	}
	paymentID := newPaymentID(claimed.Period())
	var done CustomerReward
	err = s.Store.InTx(ctx, func(tx Store) error {
		if amount.IsPositive() {
			if err := tx.CreditRewardBalance(ctx, claimed.CustomerID, amount); err != nil {
				return err
			}
		}
		updated, ok, err := tx.MarkProcessed(ctx, claimed.ID, lease, paymentID, now)
		if err != nil {
			return err
		}
		if !ok {
			return common.Detailed(common.ErrConflict, "reward lease lost to another run", nil)
		}
		done = updated
		return nil
	})
	if err != nil {
		if !errors.Is(err, common.ErrConflict) {
			s.release(ctx, claimed.ID, lease)
		}
		return s.failed(result, err)
	}
	result.Outcome = OutcomeProcessed
	result.PaymentID = paymentID
	obs.IncRewardRecord(string(OutcomeProcessed))
	s.emit(ctx, done, amount)
	return result
}

func (s *Service) release(ctx context.Context, id uuid.UUID, lease time.Time) {
	if err := s.Store.ReleaseClaim(context.WithoutCancel(ctx), id, lease); err != nil {
		s.Logger.Warn().Err(err).Str("reward_id", id.String()).Msg("release reward claim")
	}
}

func (s *Service) failed(result RecordResult, err error) RecordResult {
	result.Outcome = OutcomeFailed
	result.Error = err.Error()
	obs.IncRewardRecord(string(OutcomeFailed))
	s.Logger.Warn().Err(err).
		Str("reward_id", result.RewardID.String()).
		Str("customer_id", result.CustomerID.String()).
		Msg("reward processing failed")
	return result
}

func (s *Service) emit(ctx context.Context, r CustomerReward, amount decimal.Decimal) {
	if s.Events == nil {
		return
	}
	payload := map[string]any{
		"customerId": r.CustomerID,
		"quarter":    r.Quarter,
		"year":       r.Year,
		"amount":     amount.StringFixed(2),
		"paymentId":  r.PaymentID,
	}
	if _, err := s.Events.Emit(ctx, events.TopicRewardProcessed, r.ID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("reward_id", r.ID.String()).Msg("emit reward event")
	}
}

func newPaymentID(p Period) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("RWD-%dQ%d-%s", p.Year, p.Quarter, suffix)
}

func notPending(status Status) error {
	return common.Detailed(common.ErrInvalidStatusTransition, "only pending rewards can be adjusted",
		map[string]string{"status": string(status)})
}

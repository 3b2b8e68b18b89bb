package reward

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-b2b/internal/common"
)

var (
	// ErrNotFound is returned when a reward record does not exist.
	ErrNotFound = fmt.Errorf("customer reward %w", common.ErrNotFound)
	// ErrTierNotFound is returned when a reward tier does not exist.
	ErrTierNotFound = fmt.Errorf("reward tier %w", common.ErrNotFound)
	// ErrTierOverlap is returned when active tiers of one period share a carton count.
	ErrTierOverlap = fmt.Errorf("reward tiers overlap: %w", common.ErrValidation)
)

// Period identifies a calendar quarter.
type Period struct {
	Quarter int `json:"quarter" validate:"required,min=1,max=4"`
	Year    int `json:"year" validate:"required,min=2000,max=9999"`
}

// Validate checks the quarter and year bounds.
func (p Period) Validate() error {
	if p.Quarter < 1 || p.Quarter > 4 {
		return common.Detailed(common.ErrValidation, "quarter must be between 1 and 4",
			map[string]int{"quarter": p.Quarter})
	}
	if p.Year < 2000 || p.Year > 9999 {
		return common.Detailed(common.ErrValidation, "year is out of range", map[string]int{"year": p.Year})
	}
	return nil
}

// Range returns the half-open UTC window [start, end) covered by the quarter.
func (p Period) Range() (time.Time, time.Time) {
	start := time.Date(p.Year, time.Month((p.Quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 3, 0)
}

func (p Period) String() string {
	return fmt.Sprintf("%d-Q%d", p.Year, p.Quarter)
}

// PeriodOf returns the quarter containing t.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Quarter: (int(t.Month())-1)/3 + 1, Year: t.Year()}
}

// Previous returns the quarter before the one containing now.
func Previous(now time.Time) Period {
	p := PeriodOf(now)
	if p.Quarter == 1 {
		return Period{Quarter: 4, Year: p.Year - 1}
	}
	return Period{Quarter: p.Quarter - 1, Year: p.Year}
}

// Tier is a cashback band for one quarter. A nil MaxCartons is unbounded.
type Tier struct {
	ID                uuid.UUID       `json:"id"`
	Quarter           int             `json:"quarter"`
	Year              int             `json:"year"`
	MinCartons        int             `json:"minCartons"`
	MaxCartons        *int            `json:"maxCartons"`
	CashbackPerCarton decimal.Decimal `json:"cashbackPerCarton"`
	IsActive          bool            `json:"isActive"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// Period returns the quarter the tier belongs to.
func (t Tier) Period() Period {
	return Period{Quarter: t.Quarter, Year: t.Year}
}

// Contains reports whether cartons falls inside the tier's range.
func (t Tier) Contains(cartons int) bool {
	if cartons < t.MinCartons {
		return false
	}
	return t.MaxCartons == nil || cartons <= *t.MaxCartons
}

func (t Tier) overlaps(o Tier) bool {
	// ranges are closed; nil max extends to infinity
	if t.MaxCartons != nil && *t.MaxCartons < o.MinCartons {
		return false
	}
	if o.MaxCartons != nil && *o.MaxCartons < t.MinCartons {
		return false
	}
	return true
}

// Validate checks a single tier's own fields.
func (t Tier) Validate() error {
	if err := t.Period().Validate(); err != nil {
		return err
	}
	if t.MinCartons < 0 {
		return common.Detailed(common.ErrValidation, "minCartons must not be negative", nil)
	}
	if t.MaxCartons != nil && *t.MaxCartons < t.MinCartons {
		return common.Detailed(common.ErrValidation, "maxCartons must be greater than or equal to minCartons",
			map[string]int{"minCartons": t.MinCartons, "maxCartons": *t.MaxCartons})
	}
	if t.CashbackPerCarton.IsNegative() {
		return common.Detailed(common.ErrValidation, "cashbackPerCarton must not be negative", nil)
	}
	return nil
}

// ValidateTiers checks every tier and rejects overlapping active tiers within
// the same period.
func ValidateTiers(tiers []Tier) error {
	for _, t := range tiers {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	for i := range tiers {
		if !tiers[i].IsActive {
			continue
		}
		for j := i + 1; j < len(tiers); j++ {
			a, b := tiers[i], tiers[j]
			if !b.IsActive || a.Period() != b.Period() || !a.overlaps(b) {
				continue
			}
			return common.Detailed(ErrTierOverlap, "reward tier ranges overlap", map[string]string{
				"tier":        a.ID.String(),
				"conflicting": b.ID.String(),
				"period":      a.Period().String(),
			})
		}
	}
	return nil
}

// SelectTier returns the active tier with the highest MinCartons whose range
// contains cartons.
func SelectTier(cartons int, tiers []Tier) (Tier, bool) {
	candidates := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		if t.IsActive && t.Contains(cartons) {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return Tier{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].MinCartons > candidates[j].MinCartons
	})
	return candidates[0], true
}

// CalculateReward returns cartons multiplied by the selected tier's cashback,
// or zero when no tier applies.
func CalculateReward(cartons int, tiers []Tier) (decimal.Decimal, *Tier) {
	t, ok := SelectTier(cartons, tiers)
	if !ok {
		return decimal.Zero, nil
	}
	return t.CashbackPerCarton.Mul(decimal.NewFromInt(int64(cartons))).Round(2), &t
}

// Status is the processing state of a customer reward.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusProcessed, StatusCancelled:
		return true
	}
	return false
}

// CustomerReward is a customer's reward for one quarter.
type CustomerReward struct {
	ID               uuid.UUID       `json:"id"`
	CustomerID       uuid.UUID       `json:"customerId"`
	Quarter          int             `json:"quarter"`
	Year             int             `json:"year"`
	CartonsPurchased int             `json:"totalCartonsPurchased"`
	EligibleTierID   *uuid.UUID      `json:"eligibleTierId"`
	CalculatedReward decimal.Decimal `json:"calculatedReward"`
	ManualAdjustment decimal.Decimal `json:"manualAdjustment"`
	Status           Status          `json:"status"`
	PaymentID        *string         `json:"paymentId"`
	ProcessedAt      *time.Time      `json:"processedAt"`
	LeaseExpiresAt   *time.Time      `json:"-"`
	Notes            *string         `json:"notes"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// FinalReward is the calculated reward plus the manual adjustment.
func (r CustomerReward) FinalReward() decimal.Decimal {
	return r.CalculatedReward.Add(r.ManualAdjustment)
}

// Period returns the quarter the record belongs to.
func (r CustomerReward) Period() Period {
	return Period{Quarter: r.Quarter, Year: r.Year}
}

// View adds the derived final reward to a record.
type View struct {
	CustomerReward
	FinalReward decimal.Decimal `json:"finalReward"`
}

// NewView builds a View.
func NewView(r CustomerReward) View {
	return View{CustomerReward: r, FinalReward: r.FinalReward()}
}

// CartonTotal is the number of cartons one customer bought in a period.
type CartonTotal struct {
	CustomerID uuid.UUID
	Cartons    int
}

// Calculation is the recomputed state written to a pending record.
type Calculation struct {
	CustomerID       uuid.UUID
	Period           Period
	Cartons          int
	EligibleTierID   *uuid.UUID
	CalculatedReward decimal.Decimal
}

// UpsertOutcome reports what writing a calculation did to the stored record.
type UpsertOutcome int

const (
	// UpsertSkipped means the record exists and is no longer pending.
	UpsertSkipped UpsertOutcome = iota
	UpsertWritten
	// UpsertCapped means the record was written and its negative manual
	// adjustment was raised to keep the final reward at zero or above.
	UpsertCapped
)

// CalculationResult summarises a Calculate run. Capped counts updated records
// whose manual adjustment had to be reduced.
type CalculationResult struct {
	Period    Period `json:"period"`
	Customers int    `json:"customers"`
	Updated   int    `json:"updated"`
	Untouched int    `json:"untouched"`
	Capped    int    `json:"capped"`
	Records   []View `json:"records"`
}

// Outcome is the per-record result of a processing run.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// RecordResult reports what happened to one record during Process.
type RecordResult struct {
	RewardID   uuid.UUID       `json:"rewardId"`
	CustomerID uuid.UUID       `json:"customerId"`
	Outcome    Outcome         `json:"outcome"`
	Amount     decimal.Decimal `json:"amount"`
	PaymentID  string          `json:"paymentId,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// BatchResult summarises a Process run.
type BatchResult struct {
	Period    Period         `json:"period"`
	Processed int            `json:"processed"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Results   []RecordResult `json:"results"`
}

func (b *BatchResult) tally() {
	b.Processed, b.Skipped, b.Failed = 0, 0, 0
	for _, r := range b.Results {
		switch r.Outcome {
		case OutcomeProcessed:
			b.Processed++
		case OutcomeSkipped:
			b.Skipped++
		case OutcomeFailed:
			b.Failed++
		}
	}
}

// ListParams filters reward listings. Zero values match everything.
type ListParams struct {
	Quarter    int
	Year       int
	Status     Status
	CustomerID *uuid.UUID
	Limit      int
	Offset     int
}

// TierFilter filters tier listings. Zero values match everything.
type TierFilter struct {
	Quarter    int
	Year       int
	ActiveOnly bool
}

func invalidTransition(from, to Status) error {
	return common.Detailed(common.ErrInvalidStatusTransition, "reward cannot move from "+string(from)+" to "+string(to),
		map[string]string{"from": string(from), "to": string(to)})
}

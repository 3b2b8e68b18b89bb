package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-b2b/internal/common"
	"github.com/noah-isme/backend-b2b/internal/resilience"
)

var (
	// ErrCardDeclined is returned when the issuer refuses the charge.
	ErrCardDeclined = fmt.Errorf("card declined: %w", common.ErrValidation)
	// ErrProcessor is returned when the processor failed to answer.
	ErrProcessor = errors.New("payment processor error")
)

// Authorization is an approved card charge.
type Authorization struct {
	Reference    string          `json:"reference"`
	Amount       decimal.Decimal `json:"amount"`
	Last4        string          `json:"last4"`
	AuthorizedAt time.Time       `json:"authorizedAt"`
}

// Authorizer charges a card for an amount.
type Authorizer interface {
	Authorize(ctx context.Context, card CardInput, amount decimal.Decimal) (Authorization, error)
}

// Test card numbers with fixed outcomes in the simulated processor.
const (
	CardDeclined          = "4000000000000002"
	CardInsufficientFunds = "4000000000009995"
	CardProcessorError    = "4000000000000119"
)

// SimulatedAuthorizer approves every card except the documented test numbers.
type SimulatedAuthorizer struct {
	Now func() time.Time
}

// Authorize implements Authorizer.
func (a SimulatedAuthorizer) Authorize(ctx context.Context, card CardInput, amount decimal.Decimal) (Authorization, error) {
	if err := ctx.Err(); err != nil {
		return Authorization{}, err
	}
	card = card.Normalize()
	switch card.Number {
	case CardDeclined:
		return Authorization{}, declined("do_not_honor")
	case CardInsufficientFunds:
		return Authorization{}, declined("insufficient_funds")
	case CardProcessorError:
		return Authorization{}, ErrProcessor
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	return Authorization{
		Reference:    "AUTH-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12]),
		Amount:       amount,
		Last4:        card.Last4(),
		AuthorizedAt: now().UTC(),
	}, nil
}

func declined(reason string) error {
	return common.Detailed(ErrCardDeclined, "card was declined", map[string]string{"reason": reason})
}

// GuardedAuthorizer routes authorizations through a circuit breaker. Declines
// are business outcomes and do not trip the breaker.
type GuardedAuthorizer struct {
	Next    Authorizer
	Breaker *resilience.Breaker
}

// Authorize implements Authorizer.
func (g *GuardedAuthorizer) Authorize(ctx context.Context, card CardInput, amount decimal.Decimal) (Authorization, error) {
	ctx, span := otel.Tracer("payment.Authorizer").Start(ctx, "GuardedAuthorizer.Authorize")
	defer span.End()
	span.SetAttributes(attribute.String("payment.amount", amount.StringFixed(2)))

	var auth Authorization
	err := g.Breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		auth, err = g.Next.Authorize(ctx, card, amount)
		return err
	}, func(err error) bool { return !errors.Is(err, ErrCardDeclined) })
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("payment.reference", auth.Reference))
		return auth, nil
	case errors.Is(err, ErrCardDeclined):
		span.SetAttributes(attribute.String("payment.result", "declined"))
		return Authorization{}, err
	case errors.Is(err, resilience.ErrOpenCircuit):
		span.SetStatus(codes.Error, "breaker open")
		return Authorization{}, unavailable(err)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Authorization{}, unavailable(err)
	}
}

func unavailable(err error) error {
	return common.NewAppError("PAYMENT_UNAVAILABLE", "card payments are temporarily unavailable", http.StatusServiceUnavailable, err)
}

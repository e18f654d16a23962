package billing

import (
	"context"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/aisa-it/aipress/internal/aipress/dto"
)

const metadataSubscriptionID = "subscription_id"

// StripeGateway шлюз на Stripe Subscriptions API.
type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(secretKey string, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{api: client.New(secretKey, backends)}
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, sub *dto.Subscription, priceID, customerID string) (string, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
	}
	params.Context = ctx
	params.AddMetadata(metadataSubscriptionID, sub.ID)
	params.SetIdempotencyKey("subscribe-" + sub.ID)

	s, err := g.api.Subscriptions.New(params)
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, externalID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	_, err := g.api.Subscriptions.Cancel(externalID, params)
	return err
}

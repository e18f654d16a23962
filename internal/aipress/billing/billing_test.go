package billing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"github.com/aisa-it/aipress/internal/aipress/apierrors"
	"github.com/aisa-it/aipress/internal/aipress/dto"
)

type fakeGateway struct {
	created  []string
	canceled []string
	err      error
}

func (f *fakeGateway) CreateSubscription(ctx context.Context, sub *dto.Subscription, priceID, customerID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, priceID)
	return "ext-" + sub.ID, nil
}

func (f *fakeGateway) CancelSubscription(ctx context.Context, externalID string) error {
	if f.err != nil {
		return f.err
	}
	f.canceled = append(f.canceled, externalID)
	return nil
}

func subscription() *dto.Subscription {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &dto.Subscription{ID: "s1", UserID: "u1", PublicationID: "p1", Status: "active", StartDate: start, EndDate: start.AddDate(1, 0, 0)}
}

var prices = Prices{TierBasic: "price_basic", TierPro: "price_pro"}

func TestSubscribe(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewService(gw, prices)
	sub := subscription()

	require.NoError(t, svc.Subscribe(context.Background(), sub, TierPro, "cus_1"))
	assert.Equal(t, []string{"price_pro"}, gw.created)
	assert.Equal(t, "pro", sub.Tier)
	assert.Equal(t, "ext-s1", sub.ExternalID)

	require.NoError(t, svc.Cancel(context.Background(), sub))
	assert.Equal(t, []string{"ext-s1"}, gw.canceled)
	assert.Equal(t, dto.SubscriptionCancelled, sub.Status)
}

func TestSubscribeRejects(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewService(gw, prices)

	bad := subscription()
	bad.EndDate = bad.StartDate
	assert.ErrorIs(t, svc.Subscribe(context.Background(), bad, TierBasic, "cus_1"), apierrors.ErrSubscriptionInvalid)
	assert.ErrorIs(t, svc.Subscribe(context.Background(), nil, TierBasic, "cus_1"), apierrors.ErrSubscriptionInvalid)
	assert.ErrorIs(t, svc.Subscribe(context.Background(), subscription(), TierEnterprise, "cus_1"), apierrors.ErrUnknownTier)
	assert.ErrorIs(t, svc.Cancel(context.Background(), subscription()), apierrors.ErrSubscriptionInvalid)
	assert.Empty(t, gw.created)

	gw.err = errors.New("card declined")
	err := svc.Subscribe(context.Background(), subscription(), TierBasic, "cus_1")
	assert.ErrorIs(t, err, apierrors.ErrPaymentGatewayFailed)
	assert.ErrorContains(t, err, "card declined")
}

func TestStripeGateway(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseForm()) {
			return
		}
		form = map[string]string{"path": r.URL.Path, "method": r.Method}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"sub_123","object":"subscription","status":"active"}`))
	}))
	defer srv.Close()

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
	})
	gw := NewStripeGateway("sk_test_123", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	id, err := gw.CreateSubscription(context.Background(), subscription(), "price_pro", "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_123", id)
	assert.Equal(t, "/v1/subscriptions", form["path"])
	assert.Equal(t, "cus_1", form["customer"])
	assert.Equal(t, "price_pro", form["items[0][price]"])
	assert.Equal(t, "s1", form["metadata[subscription_id]"])

	require.NoError(t, gw.CancelSubscription(context.Background(), "sub_123"))
	assert.Equal(t, "/v1/subscriptions/sub_123", form["path"])
	assert.Equal(t, http.MethodDelete, form["method"])
}

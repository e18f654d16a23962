// Пакет billing оформляет платные подписки на публикации через платёжный шлюз.
//
// Основные возможности:
//   - Тарифы basic, pro и enterprise и их цены у платёжного провайдера.
//   - Шлюз Stripe; внутренний идентификатор подписки передаётся в метаданных.
//   - Подписка проверяется до обращения к шлюзу.
package billing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aisa-it/aipress/internal/aipress/apierrors"
	"github.com/aisa-it/aipress/internal/aipress/config"
	"github.com/aisa-it/aipress/internal/aipress/dto"
	"github.com/aisa-it/aipress/internal/aipress/validation"
)

type Tier string

const (
	TierBasic      Tier = "basic"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Prices идентификаторы цен по тарифам.
type Prices map[Tier]string

func PricesFromConfig(cfg *config.Config) Prices {
	return Prices{
		TierBasic:      cfg.StripePriceBasic,
		TierPro:        cfg.StripePricePro,
		TierEnterprise: cfg.StripePriceEnterprise,
	}
}

// PriceID цена тарифа. Тариф без настроенной цены считается неизвестным.
func (p Prices) PriceID(tier Tier) (string, error) {
	id := p[tier]
	if id == "" {
		return "", apierrors.ErrUnknownTier.WithFormattedMessage(string(tier))
	}
	return id, nil
}

// Gateway платёжный провайдер.
type Gateway interface {
	CreateSubscription(ctx context.Context, sub *dto.Subscription, priceID, customerID string) (externalID string, err error)
	CancelSubscription(ctx context.Context, externalID string) error
}

type Service struct {
	gateway Gateway
	prices  Prices
}

func NewService(gateway Gateway, prices Prices) *Service {
	return &Service{gateway: gateway, prices: prices}
}

// Subscribe оформляет подписку sub на тариф tier для клиента customerID.
// При успехе в sub записываются тариф и внешний идентификатор.
func (s *Service) Subscribe(ctx context.Context, sub *dto.Subscription, tier Tier, customerID string) error {
	if !validation.ValidateSubscription(sub) || customerID == "" {
		return apierrors.ErrSubscriptionInvalid
	}
	price, err := s.prices.PriceID(tier)
	if err != nil {
		return err
	}
	ext, err := s.gateway.CreateSubscription(ctx, sub, price, customerID)
	if err != nil {
		slog.Error("Create subscription at gateway", "subscription", sub.ID, "tier", tier, "err", err)
		return errors.Join(apierrors.ErrPaymentGatewayFailed, err)
	}
	sub.Tier = string(tier)
	sub.ExternalID = ext
	slog.Info("Subscription created", "subscription", sub.ID, "tier", tier, "external", ext)
	return nil
}

// Cancel отменяет подписку у провайдера и переводит её в статус cancelled.
func (s *Service) Cancel(ctx context.Context, sub *dto.Subscription) error {
	if !validation.ValidateSubscription(sub) || sub.ExternalID == "" {
		return apierrors.ErrSubscriptionInvalid
	}
	if err := s.gateway.CancelSubscription(ctx, sub.ExternalID); err != nil {
		slog.Error("Cancel subscription at gateway", "subscription", sub.ID, "err", err)
		return errors.Join(apierrors.ErrPaymentGatewayFailed, err)
	}
	sub.Status = dto.SubscriptionCancelled
	return nil
}

package service

import (
	"context"
	"fmt"
	"time"

	"gridbot/internal/bot"
	"gridbot/internal/exchange"
)

// HedgeOps - операции исполнителя над аккаунтом: пакет плеча и
// контроль симметрии хеджа
type HedgeOps interface {
	SetLeverage(ctx context.Context, creds exchange.Credentials, settings []bot.LeverageSetting, delay time.Duration) (*bot.LeverageReport, error)
	InspectHedgeSymmetry(ctx context.Context, creds exchange.Credentials) ([]bot.HedgeImbalance, error)
}

// AccountService - операции уровня аккаунта, не привязанные к одной
// стратегии: пакетное плечо и проверка симметрии хеджа.
type AccountService struct {
	ops   HedgeOps
	creds bot.CredentialProvider
	delay time.Duration // пауза между запросами плеча в синхронном пакете
}

// NewAccountService создаёт сервис аккаунта
func NewAccountService(ops HedgeOps, creds bot.CredentialProvider, delay time.Duration) *AccountService {
	return &AccountService{ops: ops, creds: creds, delay: delay}
}

// SetLeverage применяет пакет настроек плеча на аккаунте
func (s *AccountService) SetLeverage(ctx context.Context, credentialKey string, settings []bot.LeverageSetting) (*bot.LeverageReport, error) {
	creds, err := s.resolve(credentialKey)
	if err != nil {
		return nil, err
	}
	return s.ops.SetLeverage(ctx, creds, settings, s.delay)
}

// HedgeSymmetry возвращает символы аккаунта со сломанным хеджем
func (s *AccountService) HedgeSymmetry(ctx context.Context, credentialKey string) ([]bot.HedgeImbalance, error) {
	creds, err := s.resolve(credentialKey)
	if err != nil {
		return nil, err
	}
	return s.ops.InspectHedgeSymmetry(ctx, creds)
}

func (s *AccountService) resolve(credentialKey string) (exchange.Credentials, error) {
	if credentialKey == "" {
		return exchange.Credentials{}, ErrMissingCredential
	}
	creds, err := s.creds.Credentials(credentialKey)
	if err != nil {
		return exchange.Credentials{}, fmt.Errorf("credentials for %q: %w", credentialKey, err)
	}
	return creds, nil
}

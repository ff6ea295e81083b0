// Package wallet exposes the balance, profile, transaction, and purchase
// operations. Reads go through the revalidating cache; purchases go straight
// to the backend and invalidate the read keys they affect.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"billpoint/client/internal/wallet/domain"
)

// Cached GET paths; the cache keys requests by path.
const (
	PathMe           = "/user/me"
	PathBalance      = "/wallet/balance"
	PathTransactions = "/wallet/transactions"
)

// Poster is the write side of the HTTP client.
type Poster interface {
	Post(ctx context.Context, path string, body, out any) error
}

// ReadCache is the slice of the cache the service reads through.
type ReadCache interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	Invalidate(key string)
}

// Service is the wallet API surface for the UI layer.
type Service struct {
	poster Poster
	cache  ReadCache
	log    *zap.Logger
}

// NewService returns a Service.
func NewService(poster Poster, cache ReadCache, log *zap.Logger) *Service {
	return &Service{poster: poster, cache: cache, log: log}
}

// Me returns the cached extended profile.
func (s *Service) Me(ctx context.Context) (*domain.UserDetails, error) {
	var out domain.UserDetails
	if err := s.fetchInto(ctx, PathMe, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Balance returns the cached wallet balance.
func (s *Service) Balance(ctx context.Context) (*domain.Balance, error) {
	var out domain.Balance
	if err := s.fetchInto(ctx, PathBalance, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transactions returns the cached ledger.
func (s *Service) Transactions(ctx context.Context) ([]domain.Transaction, error) {
	var out []domain.Transaction
	if err := s.fetchInto(ctx, PathTransactions, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Fund starts a wallet top-up.
func (s *Service) Fund(ctx context.Context, req domain.FundRequest) (*domain.Receipt, error) {
	return s.purchase(ctx, "/wallet/fund", req)
}

// PurchaseAirtime buys airtime.
func (s *Service) PurchaseAirtime(ctx context.Context, req domain.AirtimeRequest) (*domain.Receipt, error) {
	return s.purchase(ctx, "/purchases/airtime", req)
}

// PurchaseData buys a data bundle.
func (s *Service) PurchaseData(ctx context.Context, req domain.DataRequest) (*domain.Receipt, error) {
	return s.purchase(ctx, "/purchases/data", req)
}

// PayTV pays a TV subscription.
func (s *Service) PayTV(ctx context.Context, req domain.TVRequest) (*domain.Receipt, error) {
	return s.purchase(ctx, "/purchases/tv", req)
}

// PayElectricity pays an electricity bill.
func (s *Service) PayElectricity(ctx context.Context, req domain.ElectricityRequest) (*domain.Receipt, error) {
	return s.purchase(ctx, "/purchases/electricity", req)
}

// purchase posts req and, on success, drops the cached balance and ledger so
// the next read revalidates. Backend errors propagate untouched.
func (s *Service) purchase(ctx context.Context, path string, req any) (*domain.Receipt, error) {
	var receipt domain.Receipt
	if err := s.poster.Post(ctx, path, req, &receipt); err != nil {
		s.log.Warn("purchase failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	s.cache.Invalidate(PathBalance)
	s.cache.Invalidate(PathTransactions)
	return &receipt, nil
}

func (s *Service) fetchInto(ctx context.Context, path string, out any) error {
	raw, err := s.cache.Fetch(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("wallet: decode %s: %w", path, err)
	}
	return nil
}

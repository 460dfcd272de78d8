// Package ledger charges users for paid generation steps against their ITC
// token balance. A debit happens before work starts; a failed step refunds
// the exact debited amount exactly once.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"inkforge/internal/domain"
)

// Costs holds the fixed token price of each 3D pipeline step.
type Costs struct {
	Concept     int
	Angles      int
	Reconstruct int
}

// DefaultCosts are applied when the environment does not override them.
func DefaultCosts() Costs {
	return Costs{Concept: 10, Angles: 30, Reconstruct: 40}
}

// Service wraps the wallet store with the debit/refund protocol.
type Service struct {
	wallets domain.WalletRepository
	log     zerolog.Logger
}

func New(wallets domain.WalletRepository, log zerolog.Logger) *Service {
	return &Service{wallets: wallets, log: log}
}

// Debit atomically checks and decrements the balance, inserting the matching
// signed transaction. Returns domain.ErrInsufficientBalance without writing
// anything when the balance does not cover the amount.
func (s *Service) Debit(ctx context.Context, userID string, amount int, reference string) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: debit amount must be positive, got %d", amount)
	}
	err := s.wallets.DebitIfSufficient(ctx, userID, amount, reference)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return err
		}
		return fmt.Errorf("ledger: debit %d from %s: %w", amount, userID, err)
	}
	s.log.Info().Str("user_id", userID).Int("amount", amount).Str("reference", reference).Msg("ledger: debited")
	return nil
}

// Refund credits the exact debited amount back, recording a signed credit
// transaction referencing the failure. Callers guarantee at-most-once by
// routing every post-debit failure through a single refund path.
func (s *Service) Refund(ctx context.Context, userID string, amount int, reference string) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: refund amount must be positive, got %d", amount)
	}
	if err := s.wallets.Credit(ctx, userID, amount, reference); err != nil {
		return fmt.Errorf("ledger: refund %d to %s: %w", amount, userID, err)
	}
	s.log.Info().Str("user_id", userID).Int("amount", amount).Str("reference", reference).Msg("ledger: refunded")
	return nil
}

// Balance reads the current token balance.
func (s *Service) Balance(ctx context.Context, userID string) (int, error) {
	return s.wallets.Balance(ctx, userID)
}

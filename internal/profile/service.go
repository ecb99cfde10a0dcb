package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"betledger/internal/address"
	"betledger/internal/cache"
	"betledger/internal/chain"
	"betledger/internal/model"
)

// LedgerReader calls view functions on the ledger node.
type LedgerReader interface {
	View(ctx context.Context, req chain.ViewRequest) ([]json.RawMessage, error)
}

// Service reads account profiles through a shared read-model cache.
type Service struct {
	function string
	ledger   LedgerReader
	cache    *cache.Cache[model.Profile]
	now      func() time.Time
	logger   *zap.Logger
}

// NewService builds a profile reader. The view function must return
// [name, avatar_id, exists] for the queried account.
func NewService(function string, ledger LedgerReader, c *cache.Cache[model.Profile], logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = cache.New[model.Profile](cache.Config{Name: "profile"})
	}
	return &Service{function: function, ledger: ledger, cache: c, now: time.Now, logger: logger}
}

// Get returns the profile for addressText. Malformed addresses and failed
// lookups yield a profile with Exists=false.
func (s *Service) Get(ctx context.Context, addressText string) model.Profile {
	addr, err := address.Parse(addressText)
	if err != nil {
		s.logger.Debug("profile address rejected", zap.String("address", addressText), zap.Error(err))
		return model.Profile{}
	}
	p, err := s.cache.GetOrFetch(ctx, addr, func(ctx context.Context) (model.Profile, error) {
		return s.fetch(ctx, addr)
	})
	if err != nil {
		s.logger.Warn("profile lookup failed", zap.String("address", addr.Hex()), zap.Error(err))
	}
	return p
}

// Invalidate drops the cached profile for addressText.
func (s *Service) Invalidate(addressText string) error {
	addr, err := address.Parse(addressText)
	if err != nil {
		return err
	}
	s.cache.Invalidate(addr)
	return nil
}

func (s *Service) fetch(ctx context.Context, addr address.Address) (model.Profile, error) {
	values, err := s.ledger.View(ctx, chain.ViewRequest{
		Function:  s.function,
		Arguments: []string{addr.Hex()},
	})
	if err != nil {
		return model.Profile{}, err
	}
	if len(values) < 3 {
		return model.Profile{}, fmt.Errorf("profile view returned %d values", len(values))
	}

	var p model.Profile
	if err := json.Unmarshal(values[0], &p.Name); err != nil {
		return model.Profile{}, fmt.Errorf("decode profile name: %w", err)
	}
	avatar, err := scalarString(values[1])
	if err != nil {
		return model.Profile{}, fmt.Errorf("decode avatar id: %w", err)
	}
	p.AvatarID = avatar
	if err := json.Unmarshal(values[2], &p.Exists); err != nil {
		return model.Profile{}, fmt.Errorf("decode profile exists: %w", err)
	}
	p.CachedAt = s.now()
	return p, nil
}

func scalarString(raw json.RawMessage) (string, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return "", err
	}
	if _, err := strconv.ParseUint(num.String(), 10, 64); err != nil {
		return "", err
	}
	return num.String(), nil
}

package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
)

type Service struct {
	repo   Repository
	cache  Cache
	logger *slog.Logger
	sfg    singleflight.Group
}

func NewService(repo Repository, cache Cache, logger *slog.Logger) *Service {
	if cache == nil {
		cache = NoopCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger.With("component", "cart")}
}

// GetCart returns the session's cart, or an empty one. Concurrent misses for
// the same session share one repository read.
func (s *Service) GetCart(ctx context.Context, sessionID string) (*Cart, error) {
	v, err, _ := s.sfg.Do(sessionID, func() (interface{}, error) {
		c, err := s.cache.Get(ctx, sessionID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("cache get error", "error", err)
		}

		c, err = s.repo.GetCart(ctx, sessionID)
		if errors.Is(err, ErrCartNotFound) {
			return newCart(sessionID), nil
		}
		if err != nil {
			return nil, err
		}

		if err := s.cache.Set(ctx, sessionID, c); err != nil {
			s.logger.Warn("cache set error", "error", err)
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Cart).clone(), nil
}

func (s *Service) AddItem(ctx context.Context, sessionID string, item Item) error {
	item.ProductID = strings.TrimSpace(item.ProductID)
	if item.ProductID == "" || item.UnitPrice < 0 {
		return fmt.Errorf("%w: product %q price %d", ErrInvalidItem, item.ProductID, item.UnitPrice)
	}
	if item.Quantity < 1 || item.Quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	if err := s.repo.AddItem(ctx, sessionID, item); err != nil {
		s.logger.Error("repo add item error", "error", err)
		return err
	}
	s.invalidateCache(sessionID)
	return nil
}

// UpdateQuantity sets a line's quantity; zero removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, sessionID, productID, variant string, quantity int) error {
	if quantity == 0 {
		return s.RemoveItem(ctx, sessionID, productID, variant)
	}
	if quantity < 0 || quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	if err := s.repo.UpdateItemQuantity(ctx, sessionID, productID, variant, quantity); err != nil {
		return err
	}
	s.invalidateCache(sessionID)
	return nil
}

func (s *Service) RemoveItem(ctx context.Context, sessionID, productID, variant string) error {
	err := s.repo.RemoveItem(ctx, sessionID, productID, variant)
	if err != nil && !errors.Is(err, ErrCartNotFound) {
		s.logger.Error("repo remove item error", "error", err)
		return err
	}
	s.invalidateCache(sessionID)
	return nil
}

func (s *Service) ClearCart(ctx context.Context, sessionID string) error {
	err := s.repo.DeleteCart(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrCartNotFound) {
		s.logger.Error("repo delete cart error", "error", err)
		return err
	}
	s.invalidateCache(sessionID)
	return nil
}

// Snapshot captures the cart for checkout. It does not validate it.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (*domain.CartSnapshot, error) {
	c, err := s.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return c.Snapshot(), nil
}

func (s *Service) invalidateCache(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("cache invalidate error", "error", err)
	}
}

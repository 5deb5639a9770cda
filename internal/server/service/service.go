package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/raymonnguyen/baubiz-sub000/internal/server/cache"
	"github.com/raymonnguyen/baubiz-sub000/internal/server/repository"
	"golang.org/x/sync/singleflight"
)

type CartService struct {
	repo  repository.CartRepository
	cache cache.CartCache
	sfg   singleflight.Group // Prevents cache stampede
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache) *CartService {
	return &CartService{
		repo:  repo,
		cache: cache,
	}
}

func (s *CartService) GetCart(ctx context.Context, userID string) ([]repository.Item, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		items, err := s.cache.Get(ctx, userID)
		if err == nil {
			return items, nil // cart is in cache
		}

		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cache get error: %v", err) // log cache error but continue
		}

		items, errGet := s.repo.GetCart(ctx, userID)
		if errGet != nil {
			return nil, errGet
		}

		// set cache
		go func() {
			errSet := s.cache.Set(context.Background(), userID, items)
			if errSet != nil {
				log.Printf("cache set error: %v", errSet)
			}
		}()

		return items, nil
	})

	if err != nil {
		return nil, err
	}

	return v.([]repository.Item), nil
}

func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) (repository.Item, error) {
	item, err := s.repo.AddItem(ctx, userID, productID, quantity)
	if err != nil {
		log.Printf("repo add item error: %v", err)
		return repository.Item{}, err
	}

	s.invalidateCache(userID)
	return item, nil
}

func (s *CartService) UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) error {
	if err := s.repo.UpdateQuantity(ctx, userID, itemID, quantity); err != nil {
		if !errors.Is(err, repository.ErrItemNotFound) {
			log.Printf("repo update quantity error: %v", err)
		}
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string) error {
	if err := s.repo.RemoveItem(ctx, userID, itemID); err != nil {
		if !errors.Is(err, repository.ErrItemNotFound) {
			log.Printf("repo remove item error: %v", err)
		}
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if err := s.repo.ClearCart(ctx, userID); err != nil {
		log.Printf("repo clear cart error: %v", err)
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *CartService) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		log.Printf("cache invalidate error: %v", err)
	}
}

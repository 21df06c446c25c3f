package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWishlists struct {
	items map[string]Wishlist
}

func (m *memWishlists) Get(_ context.Context, key string) (Wishlist, error) {
	w, ok := m.items[key]
	if !ok {
		return Wishlist{}, errFakeNotFound
	}
	return w, nil
}

func (m *memWishlists) Save(_ context.Context, w Wishlist) error {
	w.ProductIDs = append([]string(nil), w.ProductIDs...)
	m.items[w.OwnerKey] = w
	return nil
}

func TestWishlistServiceAddIsIdempotent(t *testing.T) {
	repo := &memWishlists{items: map[string]Wishlist{}}
	svc, err := NewWishlistService(WishlistServiceDeps{Wishlists: repo})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Add(ctx, "u1", "shea")
	require.NoError(t, err)
	list, err := svc.Add(ctx, "u1", "shea")
	require.NoError(t, err)
	assert.Equal(t, []string{"shea"}, list.ProductIDs)
	assert.Equal(t, []string{"shea"}, repo.items["u1"].ProductIDs)

	ok, err := svc.Contains(ctx, "u1", "shea")
	require.NoError(t, err)
	assert.True(t, ok)

	list, err = svc.Remove(ctx, "u1", "shea")
	require.NoError(t, err)
	assert.Empty(t, list.ProductIDs)
}

func TestWishlistServiceValidation(t *testing.T) {
	svc, err := NewWishlistService(WishlistServiceDeps{Wishlists: &memWishlists{items: map[string]Wishlist{}}})
	require.NoError(t, err)

	_, err = svc.Add(context.Background(), "", "shea")
	assert.True(t, errors.Is(err, ErrWishlistInvalidInput))
	_, err = svc.Add(context.Background(), "u1", " ")
	assert.True(t, errors.Is(err, ErrWishlistInvalidInput))
}

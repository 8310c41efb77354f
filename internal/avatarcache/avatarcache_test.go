package avatarcache

import (
	"errors"
	"testing"

	"avatarbackend/internal/models"
)

func TestGetCachesAfterFirstLoad(t *testing.T) {
	calls := 0
	c := New(func(id string) (*models.Avatar, error) {
		calls++
		return &models.Avatar{ID: id, DisplayName: "Ada"}, nil
	})

	for i := 0; i < 3; i++ {
		avatar, err := c.Get("avatar-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if avatar.DisplayName != "Ada" {
			t.Fatalf("unexpected avatar: %+v", avatar)
		}
	}

	if calls != 1 {
		t.Fatalf("expected the loader to run once, ran %d times", calls)
	}
}

func TestGetDoesNotCacheOnError(t *testing.T) {
	calls := 0
	wantErr := errors.New("not found")
	c := New(func(id string) (*models.Avatar, error) {
		calls++
		return nil, wantErr
	})

	if _, err := c.Get("missing"); !errors.Is(err, wantErr) {
		t.Fatalf("expected wantErr, got %v", err)
	}
	if _, err := c.Get("missing"); !errors.Is(err, wantErr) {
		t.Fatalf("expected wantErr, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected the loader to run on every miss, ran %d times", calls)
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	calls := 0
	c := New(func(id string) (*models.Avatar, error) {
		calls++
		return &models.Avatar{ID: id}, nil
	})

	c.Get("avatar-1")
	c.Invalidate("avatar-1")
	c.Get("avatar-1")

	if calls != 2 {
		t.Fatalf("expected a reload after Invalidate, loader ran %d times", calls)
	}
}

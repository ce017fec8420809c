package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mcdev12/streambid/internal/models"
)

func testSession(id string) *models.Session {
	return &models.Session{
		SessionID: id,
		SellerID:  "seller@example.com",
		Title:     "Reef Treasures",
		Category:  models.CategoryArt,
		IsLive:    true,
	}
}

func activeAt(endsAt time.Time) models.Item {
	return models.Item{
		ItemID:          1,
		Title:           "Bowl",
		StartingPrice:   40,
		DurationSeconds: 30,
		State:           models.ItemStateActive,
		EndsAt:          &endsAt,
	}
}

func TestMemoryStore_CreateGetVersioning(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	s := testSession("reef-01")
	if err := m.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Create(ctx, testSession("reef-01")); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := m.Get(ctx, "reef-01")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("fresh session should be at version 1, got %d", got.Version)
	}

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	if err := m.Create(ctx, testSession("reef-01")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Two writers load the same version; the second commit must conflict.
	a, _ := m.Get(ctx, "reef-01")
	b, _ := m.Get(ctx, "reef-01")

	a.Title = "writer A"
	if err := m.Update(ctx, a, a.Version); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if a.Version != 2 {
		t.Errorf("update should bump the caller's version to 2, got %d", a.Version)
	}

	b.Title = "writer B"
	if err := m.Update(ctx, b, 1); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	got, _ := m.Get(ctx, "reef-01")
	if got.Title != "writer A" {
		t.Errorf("conflicting write must not land, got title %q", got.Title)
	}
}

func TestMemoryStore_GetReturnsIsolatedCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	s := testSession("reef-01")
	s.Queue = []models.Item{activeAt(time.Now().Add(time.Minute))}
	if err := m.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, _ := m.Get(ctx, "reef-01")
	got.Queue[0].Title = "mutated locally"

	fresh, _ := m.Get(ctx, "reef-01")
	if fresh.Queue[0].Title != "Bowl" {
		t.Error("mutating a returned snapshot must not leak into the store")
	}
}

func TestMemoryStore_DeadlineIndex(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if d, err := m.NextDeadline(ctx); err != nil || d != nil {
		t.Fatalf("expected no deadline on an empty store, got %v, %v", d, err)
	}

	early := testSession("early")
	early.Queue = []models.Item{activeAt(now.Add(10 * time.Second))}
	late := testSession("late")
	late.Queue = []models.Item{activeAt(now.Add(60 * time.Second))}
	idle := testSession("idle")

	for _, s := range []*models.Session{early, late, idle} {
		if err := m.Create(ctx, s); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	d, err := m.NextDeadline(ctx)
	if err != nil {
		t.Fatalf("NextDeadline: %v", err)
	}
	if d == nil || d.SessionID != "early" || !d.EndsAt.Equal(now.Add(10*time.Second)) {
		t.Fatalf("NextDeadline = %+v, want early @ +10s", d)
	}

	due, err := m.DueSessions(ctx, now.Add(30*time.Second), 10)
	if err != nil {
		t.Fatalf("DueSessions: %v", err)
	}
	if len(due) != 1 || due[0] != "early" {
		t.Fatalf("DueSessions = %v, want [early]", due)
	}

	due, _ = m.DueSessions(ctx, now.Add(2*time.Minute), 10)
	if len(due) != 2 || due[0] != "early" || due[1] != "late" {
		t.Fatalf("DueSessions = %v, want [early late] in deadline order", due)
	}
}

func TestMemoryStore_ListLive(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	live := testSession("live-01")
	over := testSession("over-01")
	over.IsLive = false

	if err := m.Create(ctx, live); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Create(ctx, over); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ids, err := m.ListLive(ctx)
	if err != nil {
		t.Fatalf("ListLive: %v", err)
	}
	if len(ids) != 1 || ids[0] != "live-01" {
		t.Fatalf("ListLive = %v, want [live-01]", ids)
	}
}

package directory

import (
	"context"
	"testing"

	"github.com/ikahadi647-afk/authbridge/internal/models"
)

func testUser(id, email string) *models.User {
	return &models.User{
		ID:          id,
		Email:       email,
		FullName:    "Test User",
		Role:        models.RoleMember,
		Permissions: []string{},
	}
}

func TestMemoryRepositoryUpsert(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	rec, err := repo.Upsert(ctx, testUser("u1", "a@x.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID != "u1" || rec.Email != "a@x.com" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.FirstSeenAt.IsZero() || rec.LastSeenAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
	firstSeen := rec.FirstSeenAt

	u := testUser("u1", "renamed@x.com")
	u.Role = models.RoleAdmin
	rec2, err := repo.Upsert(ctx, u)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec2.Email != "renamed@x.com" || rec2.Role != models.RoleAdmin {
		t.Fatalf("second upsert did not update fields: %+v", rec2)
	}
	if !rec2.FirstSeenAt.Equal(firstSeen) {
		t.Fatalf("firstSeenAt changed on update: %v -> %v", firstSeen, rec2.FirstSeenAt)
	}
	if rec2.LastSeenAt.Before(rec.LastSeenAt) {
		t.Fatalf("lastSeenAt moved backwards: %v -> %v", rec.LastSeenAt, rec2.LastSeenAt)
	}
}

func TestMemoryRepositoryGetMissing(t *testing.T) {
	repo := NewMemoryRepository()
	rec, err := repo.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil for missing record, got %+v", rec)
	}
}

func TestMemoryRepositoryMarkSignedOut(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, testUser("u1", "a@x.com")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.MarkSignedOut(ctx, "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, err := repo.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.LastSignOutAt.IsZero() {
		t.Fatal("expected lastSignOutAt to be stamped")
	}

	// unknown IDs are skipped, not errors
	if err := repo.MarkSignedOut(ctx, "ghost"); err != nil {
		t.Fatalf("unexpected error for unknown id: %v", err)
	}
}

func TestMemoryRepositoryGetReturnsCopy(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	if _, err := repo.Upsert(ctx, testUser("u1", "a@x.com")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, _ := repo.Get(ctx, "u1")
	rec.Email = "mutated@x.com"

	fresh, _ := repo.Get(ctx, "u1")
	if fresh.Email != "a@x.com" {
		t.Fatalf("stored record mutated through returned copy: %+v", fresh)
	}
}

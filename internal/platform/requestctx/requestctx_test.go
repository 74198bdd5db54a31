package requestctx

import (
	"context"
	"testing"
)

func TestUserIDFromContextRoundTrip(t *testing.T) {
	ctx := WithUserID(context.Background(), "user-42")
	if got := UserIDFromContext(ctx); got != "user-42" {
		t.Fatalf("UserIDFromContext = %q, want %q", got, "user-42")
	}
}

func TestUserIDFromContextEmpty(t *testing.T) {
	if got := UserIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestUserIDFromContextNil(t *testing.T) {
	if got := UserIDFromContext(nil); got != "" {
		t.Fatalf("expected empty string for nil context, got %q", got)
	}
}

func TestRolesRoundTrip(t *testing.T) {
	roles := []string{"procurement-officer", "review-committee"}
	ctx := WithRoles(context.Background(), roles)

	got := RolesFromContext(ctx)
	if len(got) != 2 || got[0] != "procurement-officer" || got[1] != "review-committee" {
		t.Fatalf("RolesFromContext = %v", got)
	}

	// Mutating the original slice must not affect the stored copy.
	roles[0] = "changed"
	if got := RolesFromContext(ctx); got[0] != "procurement-officer" {
		t.Fatalf("stored roles were mutated: %v", got)
	}
}

func TestHasRole(t *testing.T) {
	ctx := WithRoles(context.Background(), []string{"review-committee"})
	if !HasRole(ctx, "review-committee") {
		t.Fatal("expected role to be held")
	}
	if HasRole(ctx, "procurement-officer") {
		t.Fatal("expected role to be absent")
	}
}

package risk

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMemoryStorePartialUpdateMerges(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.SetOverride(ctx, &Override{
		Chain:     "ethereum",
		Address:   "0xabc",
		Score:     intPtr(80),
		UpdatedBy: "alice",
	}, &HistoryEntry{Chain: "ethereum", Address: "0xabc", Note: "set score"}); err != nil {
		t.Fatalf("SetOverride: %v", err)
	}

	// Second write sets only the category; the score must survive.
	stored, err := store.SetOverride(ctx, &Override{
		Chain:     "ethereum",
		Address:   "0xabc",
		Category:  catPtr(CategoryYellow),
		UpdatedBy: "bob",
	}, &HistoryEntry{Chain: "ethereum", Address: "0xabc", Note: "set category"})
	if err != nil {
		t.Fatalf("SetOverride: %v", err)
	}
	if stored.Score == nil || *stored.Score != 80 {
		t.Errorf("score = %v, want kept 80", stored.Score)
	}
	if stored.Category == nil || *stored.Category != CategoryYellow {
		t.Errorf("category = %v, want yellow", stored.Category)
	}
	if stored.UpdatedBy != "bob" {
		t.Errorf("updatedBy = %s, want bob", stored.UpdatedBy)
	}
	if stored.CreatedAt.After(stored.UpdatedAt) {
		t.Error("createdAt must not trail updatedAt")
	}
}

func TestMemoryStoreClampsPersistedScore(t *testing.T) {
	store := NewMemoryStore()
	stored, err := store.SetOverride(context.Background(), &Override{
		Chain:   "ethereum",
		Address: "0xabc",
		Score:   intPtr(999),
	}, &HistoryEntry{Chain: "ethereum", Address: "0xabc"})
	if err != nil {
		t.Fatalf("SetOverride: %v", err)
	}
	if *stored.Score != 100 {
		t.Errorf("score = %d, want clamped 100", *stored.Score)
	}
}

func TestMemoryStoreKeyNormalization(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.SetOverride(ctx, &Override{
		Chain:   "Ethereum",
		Address: "0xABC",
		Score:   intPtr(50),
	}, &HistoryEntry{Chain: "Ethereum", Address: "0xABC"}); err != nil {
		t.Fatalf("SetOverride: %v", err)
	}

	ov, err := store.GetOverride(ctx, "ethereum", "0xabc")
	if err != nil {
		t.Fatalf("GetOverride with normalized key: %v", err)
	}
	if ov.Chain != "ethereum" || ov.Address != "0xabc" {
		t.Errorf("stored key = %s:%s, want normalized", ov.Chain, ov.Address)
	}
}

func TestMemoryStoreClearOverride(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.ClearOverride(ctx, "ethereum", "0xabc", &HistoryEntry{}); !errors.Is(err, ErrOverrideNotFound) {
		t.Errorf("clear without override: err = %v, want ErrOverrideNotFound", err)
	}

	if _, err := store.SetOverride(ctx, &Override{Chain: "ethereum", Address: "0xabc", Score: intPtr(50)},
		&HistoryEntry{Chain: "ethereum", Address: "0xabc"}); err != nil {
		t.Fatalf("SetOverride: %v", err)
	}
	if err := store.ClearOverride(ctx, "ethereum", "0xabc", &HistoryEntry{Chain: "ethereum", Address: "0xabc", Note: "cleared"}); err != nil {
		t.Fatalf("ClearOverride: %v", err)
	}
	if _, err := store.GetOverride(ctx, "ethereum", "0xabc"); !errors.Is(err, ErrOverrideNotFound) {
		t.Errorf("get after clear: err = %v, want ErrOverrideNotFound", err)
	}

	// The clear still appended history.
	entries, err := store.History(ctx, "ethereum", "0xabc", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("history length = %d, want 2", len(entries))
	}
}

func TestMemoryStoreHistoryLimitReturnsMostRecent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if _, err := store.SetOverride(ctx, &Override{
			Chain:   "ethereum",
			Address: "0xabc",
			Score:   intPtr(i * 10),
		}, &HistoryEntry{Chain: "ethereum", Address: "0xabc", Score: intPtr(i * 10)}); err != nil {
			t.Fatalf("SetOverride %d: %v", i, err)
		}
	}

	entries, err := store.History(ctx, "ethereum", "0xabc", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("history length = %d, want 2", len(entries))
	}
	// Most recent two, oldest of the pair first.
	if *entries[0].Score != 40 || *entries[1].Score != 50 {
		t.Errorf("got scores %d, %d, want 40, 50", *entries[0].Score, *entries[1].Score)
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.ID, "rh_") {
			t.Errorf("entry ID %q missing rh_ prefix", e.ID)
		}
	}
}

package premium

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeStore struct {
	tiers map[string]int
	err   error
	calls int
	sets  map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tiers: map[string]int{}, sets: map[string]int{}}
}

func (f *fakeStore) GuildTier(_ context.Context, guildID string) (int, bool, error) {
	f.calls++
	if f.err != nil {
		return 0, false, f.err
	}
	tier, ok := f.tiers[guildID]
	return tier, ok, nil
}

func (f *fakeStore) SetGuildTier(_ context.Context, guildID string, tier int) error {
	if f.err != nil {
		return f.err
	}
	f.tiers[guildID] = tier
	f.sets[guildID] = tier
	return nil
}

func TestGuildTier_UnknownGuildIsFree(t *testing.T) {
	r := NewResolver(newFakeStore(), time.Minute, zap.NewNop())
	if got := r.GuildTier(context.Background(), "nope"); got != 0 {
		t.Errorf("unknown guild should be tier 0, got %d", got)
	}
}

func TestGuildTier_StoreErrorDegradesToZero(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("db down")
	r := NewResolver(store, time.Minute, zap.NewNop())
	if got := r.GuildTier(context.Background(), "g"); got != 0 {
		t.Errorf("store error should degrade to tier 0, got %d", got)
	}
}

func TestGuildTier_Cached(t *testing.T) {
	store := newFakeStore()
	store.tiers["g"] = 3
	r := NewResolver(store, time.Minute, zap.NewNop())

	for i := 0; i < 5; i++ {
		if got := r.GuildTier(context.Background(), "g"); got != 3 {
			t.Fatalf("expected tier 3, got %d", got)
		}
	}
	if store.calls != 1 {
		t.Errorf("expected a single store call, got %d", store.calls)
	}
}

func TestSetGuildTier_InvalidatesCache(t *testing.T) {
	store := newFakeStore()
	store.tiers["g"] = 1
	r := NewResolver(store, time.Hour, zap.NewNop())

	if got := r.GuildTier(context.Background(), "g"); got != 1 {
		t.Fatalf("expected tier 1, got %d", got)
	}
	if err := r.SetGuildTier(context.Background(), "g", 4); err != nil {
		t.Fatalf("set tier: %v", err)
	}
	// Кэш сброшен — новое значение видно сразу, без ожидания TTL
	if got := r.GuildTier(context.Background(), "g"); got != 4 {
		t.Errorf("tier change must be visible immediately, got %d", got)
	}
}

func TestHasFeatureAccess_TierInheritance(t *testing.T) {
	store := newFakeStore()
	store.tiers["g"] = 3
	r := NewResolver(store, time.Minute, zap.NewNop())
	ctx := context.Background()

	// Уровень 3 наследует все функции уровней 0-2
	for feature, min := range Features {
		if min <= 3 && !r.HasFeatureAccess(ctx, "g", feature) {
			t.Errorf("tier 3 guild must have access to %s (min %d)", feature, min)
		}
	}
}

func TestHasFeatureAccess_FreeTier(t *testing.T) {
	r := NewResolver(newFakeStore(), time.Minute, zap.NewNop())
	ctx := context.Background()

	if !r.HasFeatureAccess(ctx, "g", "killfeed") {
		t.Error("killfeed must be available at tier 0")
	}
	if r.HasFeatureAccess(ctx, "g", "stats") {
		t.Error("stats must not be available at tier 0")
	}
	if r.HasFeatureAccess(ctx, "g", "factions") {
		t.Error("factions must not be available at tier 0")
	}
	if r.HasFeatureAccess(ctx, "g", "no_such_feature") {
		t.Error("unknown feature must be denied")
	}
}

func TestMinimumTierFor(t *testing.T) {
	if min, err := MinimumTierFor("rivalries"); err != nil || min != 2 {
		t.Errorf("rivalries: expected 2/nil, got %d/%v", min, err)
	}
	if _, err := MinimumTierFor("bogus"); err == nil {
		t.Error("unknown feature must return an error")
	}
}

func TestTierName(t *testing.T) {
	cases := map[int]string{
		0: "Scavenger",
		1: "Survivor",
		2: "Mercenary",
		3: "Warlord",
		4: "Overseer",
	}
	for tier, want := range cases {
		if got := TierName(tier); got != want {
			t.Errorf("TierName(%d) = %s, want %s", tier, got, want)
		}
	}
	if got := TierName(99); got != "Scavenger" {
		t.Errorf("out-of-range tier should fall back to base name, got %s", got)
	}
}

func TestValidateServerLimit(t *testing.T) {
	store := newFakeStore()
	store.tiers["g"] = 0
	r := NewResolver(store, time.Minute, zap.NewNop())
	ctx := context.Background()

	if err := r.ValidateServerLimit(ctx, "g", 0); err != nil {
		t.Errorf("tier 0 with no servers should pass: %v", err)
	}
	if err := r.ValidateServerLimit(ctx, "g", 1); err == nil {
		t.Error("tier 0 with 1 server must hit the limit")
	}
}

func TestRun_SweepsPeriodically(t *testing.T) {
	store := newFakeStore()
	store.tiers["g"] = 2
	r := NewResolver(store, 10*time.Millisecond, zap.NewNop())
	r.GuildTier(context.Background(), "g")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		n := len(r.cache)
		r.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expired cache entry was never swept by the background loop")
}

func TestSweep(t *testing.T) {
	store := newFakeStore()
	store.tiers["g"] = 2
	r := NewResolver(store, time.Nanosecond, zap.NewNop())
	r.GuildTier(context.Background(), "g")
	time.Sleep(time.Millisecond)
	r.Sweep()

	r.mu.Lock()
	n := len(r.cache)
	r.mu.Unlock()
	if n != 0 {
		t.Errorf("expired entries must be swept, %d left", n)
	}
}

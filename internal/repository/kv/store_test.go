package kv

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"storefront/internal/domain"
)

type entry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestJSONStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemory(), 0, nil)

	var got entry
	found, err := s.Get(ctx, "s1", KeyCart, &got)
	if err != nil || found {
		t.Fatalf("expected absent key, got found=%v err=%v", found, err)
	}

	if err := s.Set(ctx, "s1", KeyCart, entry{Name: "a", Count: 2}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	found, err = s.Get(ctx, "s1", KeyCart, &got)
	if err != nil || !found {
		t.Fatalf("expected value, got found=%v err=%v", found, err)
	}
	if got.Name != "a" || got.Count != 2 {
		t.Fatalf("unexpected value %+v", got)
	}

	found, _ = s.Get(ctx, "s2", KeyCart, &got)
	if found {
		t.Fatalf("sessions must be isolated")
	}

	if err := s.Delete(ctx, "s1", KeyCart); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	found, _ = s.Get(ctx, "s1", KeyCart, &got)
	if found {
		t.Fatalf("expected key to be deleted")
	}
}

func TestJSONStore_CorruptValueTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	_ = mem.Save(ctx, "s1", KeyCart, []byte("{not json"))
	s := New(mem, 0, nil)

	var got entry
	found, err := s.Get(ctx, "s1", KeyCart, &got)
	if err != nil || found {
		t.Fatalf("expected corrupt value to read as absent, got found=%v err=%v", found, err)
	}
}

func TestJSONStore_QuotaExceeded(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemory(), 16, nil)

	err := s.Set(ctx, "s1", KeyCart, entry{Name: strings.Repeat("x", 32)})
	if !errors.Is(err, ErrQuotaExceeded) || !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected quota error wrapped in persistence error, got %v", err)
	}

	var got entry
	if found, _ := s.Get(ctx, "s1", KeyCart, &got); found {
		t.Fatalf("rejected value must not be stored")
	}

	err = s.Update(ctx, "s1", KeyCart, func([]byte) ([]byte, error) {
		return []byte(`"` + strings.Repeat("y", 32) + `"`), nil
	})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected quota error from Update, got %v", err)
	}
}

func TestJSONStore_UpdatePassesCallbackErrorThrough(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemory(), 0, nil)
	boom := errors.New("boom")

	err := s.Update(ctx, "s1", KeyOrders, func([]byte) ([]byte, error) { return nil, boom })
	if !errors.Is(err, boom) || errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected callback error unchanged, got %v", err)
	}
}

func TestJSONStore_UpdateNilDeletes(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemory(), 0, nil)
	_ = s.Set(ctx, "s1", KeyPendingOrders, []string{"a"})

	if err := s.Update(ctx, "s1", KeyPendingOrders, func(raw []byte) ([]byte, error) {
		if string(raw) != `["a"]` {
			t.Fatalf("unexpected current value %s", raw)
		}
		return nil, nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	var got []string
	if found, _ := s.Get(ctx, "s1", KeyPendingOrders, &got); found {
		t.Fatalf("expected key removed, got %v", got)
	}
}

func TestAppend_KeepsNewestWithinLimit(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemory(), 0, nil)

	for i := 1; i <= 5; i++ {
		if err := Append(ctx, s, "s1", KeyAnalyticsQueue, entry{Count: i}, 3); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	var got []entry
	if _, err := s.Get(ctx, "s1", KeyAnalyticsQueue, &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 3 || got[0].Count != 3 || got[2].Count != 5 {
		t.Fatalf("unexpected queue %+v", got)
	}
}

func TestAppend_ReplacesNonArrayValue(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	_ = mem.Save(ctx, "s1", KeyOrders, []byte(`{"oops":true}`))
	s := New(mem, 0, nil)

	if err := Append(ctx, s, "s1", KeyOrders, entry{Name: "first"}, 0); err != nil {
		t.Fatalf("Append: %v", err)
	}
	raw, _ := mem.Load(ctx, "s1", KeyOrders)
	var got []entry
	if err := json.Unmarshal(raw, &got); err != nil || len(got) != 1 || got[0].Name != "first" {
		t.Fatalf("unexpected list %s (%v)", raw, err)
	}
}

func TestMemory_Sessions(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemory(), 0, nil)
	_ = s.Set(ctx, "b", KeyAnalyticsQueue, []int{1})
	_ = s.Set(ctx, "a", KeyAnalyticsQueue, []int{1})
	_ = s.Set(ctx, "c", KeyCart, []int{1})

	got, err := s.Sessions(ctx, KeyAnalyticsQueue)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected sessions %v", got)
	}
}

func TestMemory_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	_ = mem.Save(ctx, "s1", KeyCart, []byte(`[1]`))
	raw, _ := mem.Load(ctx, "s1", KeyCart)
	raw[0] = 'x'
	again, _ := mem.Load(ctx, "s1", KeyCart)
	if string(again) != `[1]` {
		t.Fatalf("stored value was mutated through Load: %s", again)
	}
}

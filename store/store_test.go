package store

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"meetscribe/kv"
)

type countingNotifier struct{ calls int }

func (n *countingNotifier) StoreChanged() { n.calls++ }

func newTestStore(t *testing.T) (*Store, *countingNotifier) {
	t.Helper()
	n := &countingNotifier{}
	return New(kv.NewMemory(), n), n
}

func TestSaveAndGet(t *testing.T) {
	s, n := newTestStore(t)
	saved, err := s.Save("hello world", 12*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if saved.ID == "" || saved.Date == "" {
		t.Fatalf("saved transcript missing id or date: %+v", saved)
	}
	if n.calls != 1 {
		t.Errorf("notifier calls = %d, want 1", n.calls)
	}

	got, err := s.Get(saved.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "hello world" || got.DurationSeconds != 12 {
		t.Errorf("Get = %+v, want saved transcript", got)
	}
}

func TestSaveRoundsDurationToWholeSeconds(t *testing.T) {
	s, _ := newTestStore(t)
	saved, err := s.Save("half over", 2500*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if saved.DurationSeconds != 3 {
		t.Errorf("DurationSeconds = %d, want 3", saved.DurationSeconds)
	}

	short, err := s.Save("blink", 300*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if short.DurationSeconds != 0 {
		t.Errorf("DurationSeconds = %d, want 0", short.DurationSeconds)
	}
	data, err := json.Marshal(short)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "durationSeconds") {
		t.Errorf("zero duration serialized: %s", data)
	}
}

func TestListNewestFirst(t *testing.T) {
	s, _ := newTestStore(t)
	for _, text := range []string{"first", "second", "third"} {
		if _, err := s.Save(text, time.Second); err != nil {
			t.Fatal(err)
		}
	}
	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].Text != "third" || list[2].Text != "first" {
		t.Errorf("List order wrong: %+v", list)
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	s, _ := newTestStore(t)
	first, err := s.Save("oldest", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < Capacity; i++ {
		if _, err := s.Save("filler", time.Second); err != nil {
			t.Fatal(err)
		}
	}
	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != Capacity {
		t.Fatalf("len = %d, want %d", len(list), Capacity)
	}
	if _, err := s.Get(first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("oldest transcript still present after eviction")
	}
}

func TestDeleteMissingIsNotFoundAndSilent(t *testing.T) {
	s, n := newTestStore(t)
	if _, err := s.Save("keep", time.Second); err != nil {
		t.Fatal(err)
	}
	before := n.calls

	if err := s.Delete("no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(missing) = %v, want ErrNotFound", err)
	}
	if n.calls != before {
		t.Errorf("missing delete notified: calls %d -> %d", before, n.calls)
	}
	list, _ := s.List()
	if len(list) != 1 {
		t.Errorf("missing delete mutated the list: %+v", list)
	}
}

func TestDeleteRemovesAndNotifies(t *testing.T) {
	s, n := newTestStore(t)
	saved, _ := s.Save("going away", time.Second)
	before := n.calls

	if err := s.Delete(saved.ID); err != nil {
		t.Fatal(err)
	}
	if n.calls != before+1 {
		t.Errorf("delete did not notify")
	}
	if _, err := s.Get(saved.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete = %v, want ErrNotFound", err)
	}
}

func TestSearchCaseInsensitive(t *testing.T) {
	s, _ := newTestStore(t)
	s.Save("Weekly planning meeting", time.Second)
	s.Save("standup notes", time.Second)
	s.Save("PLANNING retro", time.Second)

	hits, err := s.Search("planning")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0].Text != "PLANNING retro" {
		t.Errorf("search lost newest-first order: %+v", hits)
	}

	all, err := s.Search("  ")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("blank query hits = %d, want full list", len(all))
	}
}

func TestExportAll(t *testing.T) {
	s, _ := newTestStore(t)
	s.now = func() time.Time { return time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC) }
	saved, _ := s.Save("exported text", time.Second)

	exp, err := s.ExportAll()
	if err != nil {
		t.Fatal(err)
	}
	if exp.Count != 1 || len(exp.Items) != 1 {
		t.Fatalf("export = %+v, want one item", exp)
	}
	item := exp.Items[0]
	if item.ID != saved.ID || item.Text != "exported text" || item.Date != saved.Date {
		t.Errorf("item = %+v, want saved transcript fields", item)
	}
	if exp.ExportedAt != "2026-08-01T10:00:00Z" {
		t.Errorf("ExportedAt = %q", exp.ExportedAt)
	}
}

func TestIDsUniqueWithinMillisecond(t *testing.T) {
	s, _ := newTestStore(t)
	fixed := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	a, _ := s.Save("one", time.Second)
	b, _ := s.Save("two", time.Second)
	if a.ID == b.ID {
		t.Errorf("ids collide within one millisecond: %q", a.ID)
	}
}

func TestCorruptListStartsOver(t *testing.T) {
	mem := kv.NewMemory()
	mem.Set("transcripts", []byte("{not json"))
	s := New(mem, nil)

	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("corrupt list produced entries: %+v", list)
	}
	if _, err := s.Save("fresh", time.Second); err != nil {
		t.Errorf("Save after corrupt list = %v", err)
	}
}

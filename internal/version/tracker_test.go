package version

import (
	"context"
	"sync"
	"testing"
	"time"

	"propel/engine/internal/store"
	"propel/engine/internal/util"
)

type memVersionStore struct {
	mu       sync.Mutex
	versions map[string][]store.DocumentVersion
}

func newMemVersionStore() *memVersionStore {
	return &memVersionStore{versions: make(map[string][]store.DocumentVersion)}
}

func (m *memVersionStore) InsertVersion(_ context.Context, v store.DocumentVersion) (store.DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.ID = util.NewID("ver")
	v.VersionNumber = len(m.versions[v.DocumentID]) + 1
	v.CreatedAt = time.Now()
	m.versions[v.DocumentID] = append(m.versions[v.DocumentID], v)
	return v, nil
}

func (m *memVersionStore) LatestVersion(_ context.Context, documentID string) (*store.DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := m.versions[documentID]
	if len(history) == 0 {
		return nil, nil
	}
	v := history[len(history)-1]
	return &v, nil
}

func (m *memVersionStore) ListVersions(_ context.Context, documentID string) ([]store.DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.DocumentVersion(nil), m.versions[documentID]...), nil
}

func (m *memVersionStore) GetVersion(_ context.Context, versionID string) (*store.DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, history := range m.versions {
		for _, v := range history {
			if v.ID == versionID {
				copied := v
				return &copied, nil
			}
		}
	}
	return nil, nil
}

func TestRecordFirstVersion(t *testing.T) {
	tracker := NewTracker(newMemVersionStore())
	ctx := context.Background()

	v, err := tracker.Record(ctx, "doc-1", map[string]any{"content": "Intro\nBody\nOutro"}, store.SourcePropel, "alice")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if v.VersionNumber != 1 {
		t.Fatalf("first version number = %d, want 1", v.VersionNumber)
	}
	if v.DiffSummary != nil {
		t.Fatalf("first version diff summary = %+v, want nil", v.DiffSummary)
	}
}

func TestRecordIncrementsAndSummarizes(t *testing.T) {
	tracker := NewTracker(newMemVersionStore())
	ctx := context.Background()

	if _, err := tracker.Record(ctx, "doc-1", map[string]any{"content": "Intro\nBody\nOutro"}, store.SourcePropel, "alice"); err != nil {
		t.Fatalf("Record v1 failed: %v", err)
	}

	v2, err := tracker.Record(ctx, "doc-1", map[string]any{"content": "Intro\nBody v2\nOutro"}, store.SourcePropel, "alice")
	if err != nil {
		t.Fatalf("Record v2 failed: %v", err)
	}
	if v2.VersionNumber != 2 {
		t.Fatalf("version number = %d, want 2", v2.VersionNumber)
	}
	if v2.DiffSummary == nil {
		t.Fatal("second version must carry a diff summary")
	}
	if v2.DiffSummary.Modifications != 1 {
		t.Fatalf("modifications = %d, want 1", v2.DiffSummary.Modifications)
	}
	if len(v2.DiffSummary.SectionsChanged) != 1 || v2.DiffSummary.SectionsChanged[0] != "content" {
		t.Fatalf("sections changed = %v, want [content]", v2.DiffSummary.SectionsChanged)
	}
}

func TestRecordSeparateDocumentsNumberIndependently(t *testing.T) {
	tracker := NewTracker(newMemVersionStore())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := tracker.Record(ctx, "doc-a", map[string]any{"content": "a"}, store.SourcePropel, "alice"); err != nil {
			t.Fatalf("Record doc-a: %v", err)
		}
	}
	v, err := tracker.Record(ctx, "doc-b", map[string]any{"content": "b"}, store.SourcePropel, "bob")
	if err != nil {
		t.Fatalf("Record doc-b: %v", err)
	}
	if v.VersionNumber != 1 {
		t.Fatalf("doc-b first version = %d, want 1", v.VersionNumber)
	}
}

func TestHistoryIsAscendingAndGapless(t *testing.T) {
	tracker := NewTracker(newMemVersionStore())
	ctx := context.Background()

	contents := []string{"one", "one\ntwo", "one\ntwo\nthree", "one\ntwo\nthree\nfour"}
	for _, content := range contents {
		if _, err := tracker.Record(ctx, "doc-1", map[string]any{"content": content}, store.SourcePropel, "alice"); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	history, err := tracker.History(ctx, "doc-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != len(contents) {
		t.Fatalf("history length = %d, want %d", len(history), len(contents))
	}
	for i, v := range history {
		if v.VersionNumber != i+1 {
			t.Fatalf("history[%d].VersionNumber = %d, want %d", i, v.VersionNumber, i+1)
		}
	}

	latest, err := tracker.Latest(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest == nil || latest.VersionNumber != 4 {
		t.Fatalf("latest = %+v, want version 4", latest)
	}
}

func TestDiffVersions(t *testing.T) {
	tracker := NewTracker(newMemVersionStore())
	ctx := context.Background()

	v1, err := tracker.Record(ctx, "doc-1", map[string]any{"content": "Intro\nBody\nOutro"}, store.SourcePropel, "alice")
	if err != nil {
		t.Fatalf("Record v1: %v", err)
	}
	v2, err := tracker.Record(ctx, "doc-1", map[string]any{"content": "Intro\nBody v2\nOutro"}, "gdocs", "bob")
	if err != nil {
		t.Fatalf("Record v2: %v", err)
	}

	result, err := tracker.DiffVersions(ctx, v1.ID, v2.ID)
	if err != nil {
		t.Fatalf("DiffVersions: %v", err)
	}
	if result == nil || len(result.Modifications) != 1 {
		t.Fatalf("diff = %+v, want one modification", result)
	}

	missing, err := tracker.DiffVersions(ctx, v1.ID, "ver_does_not_exist")
	if err != nil {
		t.Fatalf("DiffVersions missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("diff against missing version = %+v, want nil", missing)
	}
}

func TestRenderPatchBetweenVersions(t *testing.T) {
	tracker := NewTracker(newMemVersionStore())
	ctx := context.Background()

	v1, err := tracker.Record(ctx, "doc-1", map[string]any{"content": "Intro\nBody\nOutro"}, store.SourcePropel, "alice")
	if err != nil {
		t.Fatalf("Record v1: %v", err)
	}
	v2, err := tracker.Record(ctx, "doc-1", map[string]any{"content": "Intro\nBody v2\nOutro"}, store.SourcePropel, "alice")
	if err != nil {
		t.Fatalf("Record v2: %v", err)
	}

	patch, err := tracker.RenderPatch(ctx, v1.ID, v2.ID)
	if err != nil {
		t.Fatalf("RenderPatch: %v", err)
	}
	if patch == "" {
		t.Fatal("patch between differing versions must not be empty")
	}

	missing, err := tracker.RenderPatch(ctx, v1.ID, "ver_does_not_exist")
	if err != nil {
		t.Fatalf("RenderPatch missing: %v", err)
	}
	if missing != "" {
		t.Fatalf("patch against missing version = %q, want empty", missing)
	}
}

func TestSerializeIsDeterministic(t *testing.T) {
	snapshot := map[string]any{
		"title":   "Cover Letter",
		"pricing": map[string]any{"total": 5000000, "currency": "USD"},
		"empty":   nil,
	}

	first := Serialize(snapshot)
	for i := 0; i < 10; i++ {
		if got := Serialize(snapshot); got != first {
			t.Fatalf("serialization not stable:\n%s\nvs\n%s", first, got)
		}
	}
	want := "empty: null\npricing: {\"currency\":\"USD\",\"total\":5000000}\ntitle: Cover Letter"
	if first != want {
		t.Fatalf("Serialize = %q, want %q", first, want)
	}
}

func TestChangedSections(t *testing.T) {
	oldSnapshot := map[string]any{"a": "same", "b": "old", "c": "gone"}
	newSnapshot := map[string]any{"a": "same", "b": "new", "d": "added"}

	changed := ChangedSections(oldSnapshot, newSnapshot)
	want := []string{"b", "c", "d"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}
}

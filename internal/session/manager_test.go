package session

import (
	"context"
	"testing"

	"github.com/heykaelo/heykaelo-backend/internal/models"
	"github.com/heykaelo/heykaelo-backend/internal/store"
)

func newTestManager() *Manager {
	return NewManager(store.NewInMemoryStore())
}

func TestGetReturnsNilForUnknownPhone(t *testing.T) {
	m := newTestManager()
	sess, err := m.Get(context.Background(), "27830000000")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if sess != nil {
		t.Errorf("expected nil session, got %+v", sess)
	}
}

func TestGetOrCreatePersistsFreshSession(t *testing.T) {
	m := newTestManager()
	phone := "27830000001"

	sess, err := m.GetOrCreate(context.Background(), phone)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if sess.PhoneNumber != phone {
		t.Errorf("expected phone %q, got %q", phone, sess.PhoneNumber)
	}
	if sess.Intent != models.DefaultIntent {
		t.Errorf("expected default intent, got %q", sess.Intent)
	}

	again, err := m.Get(context.Background(), phone)
	if err != nil || again == nil {
		t.Fatalf("expected persisted session, got %v, %v", again, err)
	}
	if !again.CreatedAt.Equal(sess.CreatedAt) {
		t.Error("expected GetOrCreate to persist the record it returned")
	}
}

func TestUpsertMergePreservesUnmentionedKeys(t *testing.T) {
	m := newTestManager()
	phone := "27830000002"
	ctx := context.Background()

	if _, err := m.Upsert(ctx, phone, Patch{Set: map[string]string{"a": "1", "b": "2"}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	sess, err := m.Upsert(ctx, phone, Patch{Set: map[string]string{"b": "20", "c": "3"}})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	want := map[string]string{"a": "1", "b": "20", "c": "3"}
	for k, v := range want {
		if sess.Metadata[k] != v {
			t.Errorf("metadata %s: expected %q, got %q", k, v, sess.Metadata[k])
		}
	}
}

func TestUpsertDeletesKeys(t *testing.T) {
	m := newTestManager()
	phone := "27830000003"
	ctx := context.Background()

	if _, err := m.Upsert(ctx, phone, Patch{Set: map[string]string{"a": "1", "b": "2"}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	sess, err := m.Upsert(ctx, phone, Patch{Delete: []string{"a"}})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if _, ok := sess.Metadata["a"]; ok {
		t.Error("expected key a deleted")
	}
	if sess.Metadata["b"] != "2" {
		t.Errorf("expected key b untouched, got %q", sess.Metadata["b"])
	}
}

func TestUpsertNilPointersLeaveColumnsUntouched(t *testing.T) {
	m := newTestManager()
	phone := "27830000004"
	ctx := context.Background()

	businessID := "u_abc"
	intent := "booking"
	if _, err := m.Upsert(ctx, phone, Patch{BusinessID: &businessID, Intent: &intent}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	sess, err := m.Upsert(ctx, phone, Patch{Set: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if sess.BusinessID != businessID {
		t.Errorf("expected business id untouched, got %q", sess.BusinessID)
	}
	if sess.Intent != intent {
		t.Errorf("expected intent untouched, got %q", sess.Intent)
	}
}

func TestUpsertCreatesWhenAbsent(t *testing.T) {
	m := newTestManager()
	phone := "27830000005"

	sess, err := m.Upsert(context.Background(), phone, Patch{Set: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if sess.PhoneNumber != phone || sess.Metadata["k"] != "v" {
		t.Errorf("expected fresh session with patch applied, got %+v", sess)
	}
}

func TestResetDeletesSession(t *testing.T) {
	m := newTestManager()
	phone := "27830000006"
	ctx := context.Background()

	if _, err := m.GetOrCreate(ctx, phone); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if err := m.Reset(ctx, phone); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	sess, err := m.Get(ctx, phone)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if sess != nil {
		t.Errorf("expected session deleted, got %+v", sess)
	}
}

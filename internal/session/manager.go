// Package session provides persistence-backed conversation session management.
//
// A session is one record per phone number holding the active flow's transient
// state in an open metadata bag. The manager always reads before merging so a
// patch can never clobber metadata keys it does not mention.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/heykaelo/heykaelo-backend/internal/models"
	"github.com/heykaelo/heykaelo-backend/internal/store"
)

// Patch describes a partial session update. Set entries are merged into the
// metadata bag at the top level (shallow merge); Delete entries are removed.
// Nil pointer fields leave the corresponding session column untouched.
type Patch struct {
	BusinessID *string
	Intent     *string
	Set        map[string]string
	Delete     []string
}

// Manager implements session persistence over a Store backend.
type Manager struct {
	store store.Store
}

// NewManager creates a session manager backed by the given store.
func NewManager(st store.Store) *Manager {
	slog.Debug("session.NewManager: creating manager")
	return &Manager{store: st}
}

// Get retrieves the session for a phone number, or nil if none exists.
func (m *Manager) Get(ctx context.Context, phone string) (*models.Session, error) {
	sess, err := m.store.GetSession(phone)
	if err != nil {
		slog.Error("session.Get failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get session for %s: %w", phone, err)
	}
	return sess, nil
}

// GetOrCreate retrieves the session for a phone number, creating and
// persisting a fresh one on first contact.
func (m *Manager) GetOrCreate(ctx context.Context, phone string) (*models.Session, error) {
	sess, err := m.Get(ctx, phone)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}

	now := time.Now()
	fresh := models.Session{
		PhoneNumber: phone,
		Intent:      models.DefaultIntent,
		Metadata:    make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.SaveSession(fresh); err != nil {
		slog.Error("session.GetOrCreate save failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to create session for %s: %w", phone, err)
	}
	slog.Debug("session.GetOrCreate created new session", "phone", phone)
	return &fresh, nil
}

// Upsert applies a patch to the session for a phone number and returns the
// updated record. The current row is read first and only the patched metadata
// keys change; concurrent writers for different keys do not corrupt each
// other as long as calls for the same phone are serialized by the caller.
func (m *Manager) Upsert(ctx context.Context, phone string, patch Patch) (*models.Session, error) {
	sess, err := m.store.GetSession(phone)
	if err != nil {
		slog.Error("session.Upsert read failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to read session for %s: %w", phone, err)
	}

	now := time.Now()
	if sess == nil {
		sess = &models.Session{
			PhoneNumber: phone,
			Intent:      models.DefaultIntent,
			Metadata:    make(map[string]string),
			CreatedAt:   now,
		}
	}
	if sess.Metadata == nil {
		sess.Metadata = make(map[string]string)
	}

	if patch.BusinessID != nil {
		sess.BusinessID = *patch.BusinessID
	}
	if patch.Intent != nil {
		sess.Intent = *patch.Intent
	}
	for k, v := range patch.Set {
		sess.Metadata[k] = v
	}
	for _, k := range patch.Delete {
		delete(sess.Metadata, k)
	}
	sess.UpdatedAt = now

	if err := m.store.SaveSession(*sess); err != nil {
		slog.Error("session.Upsert save failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to save session for %s: %w", phone, err)
	}
	slog.Debug("session.Upsert succeeded", "phone", phone, "set", len(patch.Set), "deleted", len(patch.Delete))
	return sess, nil
}

// Reset deletes the session record entirely. Administrative use only.
func (m *Manager) Reset(ctx context.Context, phone string) error {
	if err := m.store.DeleteSession(phone); err != nil {
		slog.Error("session.Reset failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to reset session for %s: %w", phone, err)
	}
	slog.Info("session.Reset succeeded", "phone", phone)
	return nil
}

package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/heykaelo/heykaelo-backend/internal/models"
)

// ErrDuplicateUser is returned when creating an identity that already exists.
// Callers are expected to fall back to FindUserByPhoneOrEmail.
var ErrDuplicateUser = errors.New("user already exists")

// newCustomerID generates an id for find-or-create customer rows.
func newCustomerID() string {
	return "c_" + uuid.NewString()
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalMetadata serializes a session metadata bag for storage.
// An empty bag stores as the empty string.
func marshalMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session metadata: %w", err)
	}
	return string(raw), nil
}

// unmarshalMetadata deserializes a stored metadata bag. Corrupt JSON degrades
// to an empty map rather than failing the read.
func unmarshalMetadata(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	metadata := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		slog.Error("store unmarshalMetadata failed, continuing with empty bag", "error", err)
		return make(map[string]string)
	}
	return metadata
}

// scanBusiness scans a BusinessProfile from a row scanner.
func scanBusiness(scan func(dest ...interface{}) error) (models.BusinessProfile, error) {
	var b models.BusinessProfile
	var roleType, serviceArea, workingDays, knowledgeBase sql.NullString
	err := scan(
		&b.ID, &b.PhoneNumber, &b.BusinessName, &b.Slug, &b.RoleCategory,
		&roleType, &serviceArea, &workingDays, &b.ApprovalRequired,
		&knowledgeBase, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return b, err
	}
	b.RoleType = roleType.String
	b.ServiceArea = serviceArea.String
	b.WorkingDays = workingDays.String
	b.KnowledgeBase = knowledgeBase.String
	return b, nil
}

// scanBooking scans a BookingRequest from a row scanner.
func scanBooking(scan func(dest ...interface{}) error) (models.BookingRequest, error) {
	var b models.BookingRequest
	err := scan(
		&b.ID, &b.BusinessID, &b.CustomerID, &b.Name, &b.PhoneNumber,
		&b.RequestedAt, &b.Status, &b.CreatedAt, &b.UpdatedAt,
	)
	return b, err
}

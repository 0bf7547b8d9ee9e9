// Package store provides storage backends for HeyKaelo.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/heykaelo/heykaelo-backend/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store over a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// GetSession retrieves the session for a phone number, or nil if absent.
func (s *SQLiteStore) GetSession(phone string) (*models.Session, error) {
	query := `SELECT phone_number, business_id, intent, metadata, created_at, updated_at
			  FROM sessions WHERE phone_number = ?`

	var sess models.Session
	var businessID, metadataJSON sql.NullString
	err := s.db.QueryRow(query, phone).Scan(
		&sess.PhoneNumber, &businessID, &sess.Intent, &metadataJSON,
		&sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "phone", phone)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query session for %s: %w", phone, err)
	}

	sess.BusinessID = businessID.String
	sess.Metadata = unmarshalMetadata(metadataJSON.String)
	slog.Debug("SQLiteStore GetSession found", "phone", phone)
	return &sess, nil
}

// SaveSession stores the session, replacing any existing row for the phone.
func (s *SQLiteStore) SaveSession(session models.Session) error {
	metadataJSON, err := marshalMetadata(session.Metadata)
	if err != nil {
		slog.Error("SQLiteStore SaveSession marshal failed", "error", err, "phone", session.PhoneNumber)
		return err
	}

	query := `
		INSERT OR REPLACE INTO sessions (phone_number, business_id, intent, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err = s.db.Exec(query, session.PhoneNumber, nilIfEmpty(session.BusinessID),
		session.Intent, metadataJSON, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "phone", session.PhoneNumber)
		return fmt.Errorf("failed to save session for %s: %w", session.PhoneNumber, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "phone", session.PhoneNumber)
	return nil
}

// DeleteSession removes the session row for a phone number.
func (s *SQLiteStore) DeleteSession(phone string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE phone_number = ?`, phone)
	if err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to delete session for %s: %w", phone, err)
	}
	slog.Debug("SQLiteStore DeleteSession succeeded", "phone", phone)
	return nil
}

const businessColumns = `id, phone_number, business_name, slug, role_category,
	role_type, service_area, working_days, approval_required, knowledge_base,
	created_at, updated_at`

// UpsertBusiness inserts or updates a business profile keyed by id.
func (s *SQLiteStore) UpsertBusiness(profile models.BusinessProfile) error {
	query := `
		INSERT INTO businesses (` + businessColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phone_number = excluded.phone_number,
			business_name = excluded.business_name,
			slug = excluded.slug,
			role_category = excluded.role_category,
			role_type = excluded.role_type,
			service_area = excluded.service_area,
			working_days = excluded.working_days,
			approval_required = excluded.approval_required,
			updated_at = excluded.updated_at`
	_, err := s.db.Exec(query, profile.ID, profile.PhoneNumber, profile.BusinessName,
		profile.Slug, profile.RoleCategory, nilIfEmpty(profile.RoleType),
		nilIfEmpty(profile.ServiceArea), nilIfEmpty(profile.WorkingDays),
		profile.ApprovalRequired, nilIfEmpty(profile.KnowledgeBase),
		profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore UpsertBusiness failed", "error", err, "id", profile.ID)
		return fmt.Errorf("failed to upsert business %s: %w", profile.ID, err)
	}
	slog.Debug("SQLiteStore UpsertBusiness succeeded", "id", profile.ID)
	return nil
}

// UpdateBusinessByPhone updates the profile matching the phone number.
func (s *SQLiteStore) UpdateBusinessByPhone(phone string, profile models.BusinessProfile) error {
	query := `
		UPDATE businesses SET
			business_name = ?, slug = ?, role_category = ?, role_type = ?,
			service_area = ?, working_days = ?, approval_required = ?, updated_at = ?
		WHERE phone_number = ?`
	res, err := s.db.Exec(query, profile.BusinessName, profile.Slug, profile.RoleCategory,
		nilIfEmpty(profile.RoleType), nilIfEmpty(profile.ServiceArea),
		nilIfEmpty(profile.WorkingDays), profile.ApprovalRequired, time.Now(), phone)
	if err != nil {
		slog.Error("SQLiteStore UpdateBusinessByPhone failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to update business by phone %s: %w", phone, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return models.ErrBusinessNotFound
	}
	slog.Debug("SQLiteStore UpdateBusinessByPhone succeeded", "phone", phone)
	return nil
}

// GetBusinessByPhone retrieves the business owned by the given phone, or nil.
func (s *SQLiteStore) GetBusinessByPhone(phone string) (*models.BusinessProfile, error) {
	row := s.db.QueryRow(`SELECT `+businessColumns+` FROM businesses WHERE phone_number = ?`, phone)
	b, err := scanBusiness(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetBusinessByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query business by phone %s: %w", phone, err)
	}
	return &b, nil
}

// ListBusinesses returns all businesses, newest first.
func (s *SQLiteStore) ListBusinesses() ([]models.BusinessProfile, error) {
	rows, err := s.db.Query(`SELECT ` + businessColumns + ` FROM businesses ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore ListBusinesses query failed", "error", err)
		return nil, fmt.Errorf("failed to query businesses: %w", err)
	}
	defer rows.Close()

	var businesses []models.BusinessProfile
	for rows.Next() {
		b, err := scanBusiness(rows.Scan)
		if err != nil {
			slog.Error("SQLiteStore ListBusinesses scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan business row: %w", err)
		}
		businesses = append(businesses, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate business rows: %w", err)
	}
	slog.Debug("SQLiteStore ListBusinesses succeeded", "count", len(businesses))
	return businesses, nil
}

// CreateUser stores an owner identity; duplicate phone numbers return ErrDuplicateUser.
func (s *SQLiteStore) CreateUser(user models.User) error {
	_, err := s.db.Exec(`INSERT INTO users (id, phone_number, email, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.PhoneNumber, nilIfEmpty(user.Email), user.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateUser
		}
		slog.Error("SQLiteStore CreateUser failed", "error", err, "phone", user.PhoneNumber)
		return fmt.Errorf("failed to create user for %s: %w", user.PhoneNumber, err)
	}
	return nil
}

// FindUserByPhoneOrEmail looks an identity up by phone first, then email.
func (s *SQLiteStore) FindUserByPhoneOrEmail(phone, email string) (*models.User, error) {
	query := `SELECT id, phone_number, email, created_at FROM users WHERE phone_number = ? OR (? != '' AND email = ?)`
	var u models.User
	var userEmail sql.NullString
	err := s.db.QueryRow(query, phone, email, email).Scan(&u.ID, &u.PhoneNumber, &userEmail, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindUserByPhoneOrEmail failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to find user for %s: %w", phone, err)
	}
	u.Email = userEmail.String
	return &u, nil
}

// FindOrCreateCustomer returns the existing customer for (businessID, phone)
// or inserts a new one.
func (s *SQLiteStore) FindOrCreateCustomer(businessID, name, phone string) (*models.Customer, error) {
	query := `SELECT id, business_id, phone_number, name, created_at
			  FROM customers WHERE business_id = ? AND phone_number = ?`
	var c models.Customer
	err := s.db.QueryRow(query, businessID, phone).Scan(&c.ID, &c.BusinessID, &c.PhoneNumber, &c.Name, &c.CreatedAt)
	if err == nil {
		return &c, nil
	}
	if err != sql.ErrNoRows {
		slog.Error("SQLiteStore FindOrCreateCustomer query failed", "error", err, "businessID", businessID, "phone", phone)
		return nil, fmt.Errorf("failed to query customer: %w", err)
	}

	c = models.Customer{
		ID:          newCustomerID(),
		BusinessID:  businessID,
		PhoneNumber: phone,
		Name:        name,
		CreatedAt:   time.Now(),
	}
	_, err = s.db.Exec(`INSERT INTO customers (id, business_id, phone_number, name, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.BusinessID, c.PhoneNumber, c.Name, c.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore FindOrCreateCustomer insert failed", "error", err, "businessID", businessID, "phone", phone)
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	slog.Debug("SQLiteStore FindOrCreateCustomer created", "id", c.ID, "businessID", businessID)
	return &c, nil
}

// CreateBooking stores a booking request.
func (s *SQLiteStore) CreateBooking(booking models.BookingRequest) error {
	query := `INSERT INTO bookings (id, business_id, customer_id, name, phone_number, requested_at, status, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, booking.ID, booking.BusinessID, booking.CustomerID,
		booking.Name, booking.PhoneNumber, booking.RequestedAt, booking.Status,
		booking.CreatedAt, booking.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateBooking failed", "error", err, "id", booking.ID)
		return fmt.Errorf("failed to create booking %s: %w", booking.ID, err)
	}
	slog.Debug("SQLiteStore CreateBooking succeeded", "id", booking.ID)
	return nil
}

// GetBooking retrieves a booking by id, or nil if absent.
func (s *SQLiteStore) GetBooking(id string) (*models.BookingRequest, error) {
	row := s.db.QueryRow(`SELECT id, business_id, customer_id, name, phone_number, requested_at, status, created_at, updated_at
						  FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetBooking failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query booking %s: %w", id, err)
	}
	return &b, nil
}

// GetLatestBookingByPhone returns the most recent booking made from the given
// customer phone number, or nil if there are none.
func (s *SQLiteStore) GetLatestBookingByPhone(phone string) (*models.BookingRequest, error) {
	row := s.db.QueryRow(`SELECT id, business_id, customer_id, name, phone_number, requested_at, status, created_at, updated_at
						  FROM bookings WHERE phone_number = ? ORDER BY created_at DESC LIMIT 1`, phone)
	b, err := scanBooking(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetLatestBookingByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query booking by phone %s: %w", phone, err)
	}
	return &b, nil
}

// UpdateBookingStatus sets the status of an existing booking.
func (s *SQLiteStore) UpdateBookingStatus(id string, status models.BookingStatus) error {
	res, err := s.db.Exec(`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	if err != nil {
		slog.Error("SQLiteStore UpdateBookingStatus failed", "error", err, "id", id)
		return fmt.Errorf("failed to update booking %s: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return models.ErrBookingNotFound
	}
	return nil
}

// ListBookingsByBusiness returns bookings for a business, newest first.
func (s *SQLiteStore) ListBookingsByBusiness(businessID string) ([]models.BookingRequest, error) {
	rows, err := s.db.Query(`SELECT id, business_id, customer_id, name, phone_number, requested_at, status, created_at, updated_at
							 FROM bookings WHERE business_id = ? ORDER BY created_at DESC`, businessID)
	if err != nil {
		slog.Error("SQLiteStore ListBookingsByBusiness query failed", "error", err, "businessID", businessID)
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.BookingRequest
	for rows.Next() {
		b, err := scanBooking(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking row: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate booking rows: %w", err)
	}
	return bookings, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Package store provides storage backends for HeyKaelo.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/heykaelo/heykaelo-backend/internal/models"
	"github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store over a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint error.
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

// GetSession retrieves the session for a phone number, or nil if absent.
func (s *PostgresStore) GetSession(phone string) (*models.Session, error) {
	query := `SELECT phone_number, business_id, intent, metadata, created_at, updated_at
			  FROM sessions WHERE phone_number = $1`

	var sess models.Session
	var businessID, metadataJSON sql.NullString
	err := s.db.QueryRow(query, phone).Scan(
		&sess.PhoneNumber, &businessID, &sess.Intent, &metadataJSON,
		&sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query session for %s: %w", phone, err)
	}

	sess.BusinessID = businessID.String
	sess.Metadata = unmarshalMetadata(metadataJSON.String)
	return &sess, nil
}

// SaveSession stores the session, replacing any existing row for the phone.
func (s *PostgresStore) SaveSession(session models.Session) error {
	metadataJSON, err := marshalMetadata(session.Metadata)
	if err != nil {
		slog.Error("PostgresStore SaveSession marshal failed", "error", err, "phone", session.PhoneNumber)
		return err
	}

	query := `
		INSERT INTO sessions (phone_number, business_id, intent, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (phone_number) DO UPDATE SET
			business_id = EXCLUDED.business_id,
			intent = EXCLUDED.intent,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`
	_, err = s.db.Exec(query, session.PhoneNumber, nilIfEmpty(session.BusinessID),
		session.Intent, metadataJSON, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "phone", session.PhoneNumber)
		return fmt.Errorf("failed to save session for %s: %w", session.PhoneNumber, err)
	}
	return nil
}

// DeleteSession removes the session row for a phone number.
func (s *PostgresStore) DeleteSession(phone string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE phone_number = $1`, phone)
	if err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to delete session for %s: %w", phone, err)
	}
	return nil
}

const pgBusinessColumns = `id, phone_number, business_name, slug, role_category,
	role_type, service_area, working_days, approval_required, knowledge_base,
	created_at, updated_at`

// UpsertBusiness inserts or updates a business profile keyed by id.
func (s *PostgresStore) UpsertBusiness(profile models.BusinessProfile) error {
	query := `
		INSERT INTO businesses (` + pgBusinessColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			phone_number = EXCLUDED.phone_number,
			business_name = EXCLUDED.business_name,
			slug = EXCLUDED.slug,
			role_category = EXCLUDED.role_category,
			role_type = EXCLUDED.role_type,
			service_area = EXCLUDED.service_area,
			working_days = EXCLUDED.working_days,
			approval_required = EXCLUDED.approval_required,
			updated_at = EXCLUDED.updated_at`
	_, err := s.db.Exec(query, profile.ID, profile.PhoneNumber, profile.BusinessName,
		profile.Slug, profile.RoleCategory, nilIfEmpty(profile.RoleType),
		nilIfEmpty(profile.ServiceArea), nilIfEmpty(profile.WorkingDays),
		profile.ApprovalRequired, nilIfEmpty(profile.KnowledgeBase),
		profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore UpsertBusiness failed", "error", err, "id", profile.ID)
		return fmt.Errorf("failed to upsert business %s: %w", profile.ID, err)
	}
	return nil
}

// UpdateBusinessByPhone updates the profile matching the phone number.
func (s *PostgresStore) UpdateBusinessByPhone(phone string, profile models.BusinessProfile) error {
	query := `
		UPDATE businesses SET
			business_name = $1, slug = $2, role_category = $3, role_type = $4,
			service_area = $5, working_days = $6, approval_required = $7, updated_at = $8
		WHERE phone_number = $9`
	res, err := s.db.Exec(query, profile.BusinessName, profile.Slug, profile.RoleCategory,
		nilIfEmpty(profile.RoleType), nilIfEmpty(profile.ServiceArea),
		nilIfEmpty(profile.WorkingDays), profile.ApprovalRequired, time.Now(), phone)
	if err != nil {
		slog.Error("PostgresStore UpdateBusinessByPhone failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to update business by phone %s: %w", phone, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return models.ErrBusinessNotFound
	}
	return nil
}

// GetBusinessByPhone retrieves the business owned by the given phone, or nil.
func (s *PostgresStore) GetBusinessByPhone(phone string) (*models.BusinessProfile, error) {
	row := s.db.QueryRow(`SELECT `+pgBusinessColumns+` FROM businesses WHERE phone_number = $1`, phone)
	b, err := scanBusiness(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetBusinessByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query business by phone %s: %w", phone, err)
	}
	return &b, nil
}

// ListBusinesses returns all businesses, newest first.
func (s *PostgresStore) ListBusinesses() ([]models.BusinessProfile, error) {
	rows, err := s.db.Query(`SELECT ` + pgBusinessColumns + ` FROM businesses ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("PostgresStore ListBusinesses query failed", "error", err)
		return nil, fmt.Errorf("failed to query businesses: %w", err)
	}
	defer rows.Close()

	var businesses []models.BusinessProfile
	for rows.Next() {
		b, err := scanBusiness(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan business row: %w", err)
		}
		businesses = append(businesses, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate business rows: %w", err)
	}
	return businesses, nil
}

// CreateUser stores an owner identity; duplicate phone numbers return ErrDuplicateUser.
func (s *PostgresStore) CreateUser(user models.User) error {
	_, err := s.db.Exec(`INSERT INTO users (id, phone_number, email, created_at) VALUES ($1, $2, $3, $4)`,
		user.ID, user.PhoneNumber, nilIfEmpty(user.Email), user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateUser
		}
		slog.Error("PostgresStore CreateUser failed", "error", err, "phone", user.PhoneNumber)
		return fmt.Errorf("failed to create user for %s: %w", user.PhoneNumber, err)
	}
	return nil
}

// FindUserByPhoneOrEmail looks an identity up by phone first, then email.
func (s *PostgresStore) FindUserByPhoneOrEmail(phone, email string) (*models.User, error) {
	query := `SELECT id, phone_number, email, created_at FROM users WHERE phone_number = $1 OR ($2 != '' AND email = $2)`
	var u models.User
	var userEmail sql.NullString
	err := s.db.QueryRow(query, phone, email).Scan(&u.ID, &u.PhoneNumber, &userEmail, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindUserByPhoneOrEmail failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to find user for %s: %w", phone, err)
	}
	u.Email = userEmail.String
	return &u, nil
}

// FindOrCreateCustomer returns the existing customer for (businessID, phone)
// or inserts a new one, retrying the lookup on a concurrent insert.
func (s *PostgresStore) FindOrCreateCustomer(businessID, name, phone string) (*models.Customer, error) {
	query := `SELECT id, business_id, phone_number, name, created_at
			  FROM customers WHERE business_id = $1 AND phone_number = $2`
	var c models.Customer
	err := s.db.QueryRow(query, businessID, phone).Scan(&c.ID, &c.BusinessID, &c.PhoneNumber, &c.Name, &c.CreatedAt)
	if err == nil {
		return &c, nil
	}
	if err != sql.ErrNoRows {
		slog.Error("PostgresStore FindOrCreateCustomer query failed", "error", err, "businessID", businessID, "phone", phone)
		return nil, fmt.Errorf("failed to query customer: %w", err)
	}

	c = models.Customer{
		ID:          newCustomerID(),
		BusinessID:  businessID,
		PhoneNumber: phone,
		Name:        name,
		CreatedAt:   time.Now(),
	}
	_, err = s.db.Exec(`INSERT INTO customers (id, business_id, phone_number, name, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.BusinessID, c.PhoneNumber, c.Name, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race; the row exists now.
			err = s.db.QueryRow(query, businessID, phone).Scan(&c.ID, &c.BusinessID, &c.PhoneNumber, &c.Name, &c.CreatedAt)
			if err == nil {
				return &c, nil
			}
		}
		slog.Error("PostgresStore FindOrCreateCustomer insert failed", "error", err, "businessID", businessID, "phone", phone)
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return &c, nil
}

// CreateBooking stores a booking request.
func (s *PostgresStore) CreateBooking(booking models.BookingRequest) error {
	query := `INSERT INTO bookings (id, business_id, customer_id, name, phone_number, requested_at, status, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.db.Exec(query, booking.ID, booking.BusinessID, booking.CustomerID,
		booking.Name, booking.PhoneNumber, booking.RequestedAt, booking.Status,
		booking.CreatedAt, booking.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateBooking failed", "error", err, "id", booking.ID)
		return fmt.Errorf("failed to create booking %s: %w", booking.ID, err)
	}
	return nil
}

// GetBooking retrieves a booking by id, or nil if absent.
func (s *PostgresStore) GetBooking(id string) (*models.BookingRequest, error) {
	row := s.db.QueryRow(`SELECT id, business_id, customer_id, name, phone_number, requested_at, status, created_at, updated_at
						  FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetBooking failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query booking %s: %w", id, err)
	}
	return &b, nil
}

// GetLatestBookingByPhone returns the most recent booking made from the given
// customer phone number, or nil if there are none.
func (s *PostgresStore) GetLatestBookingByPhone(phone string) (*models.BookingRequest, error) {
	row := s.db.QueryRow(`SELECT id, business_id, customer_id, name, phone_number, requested_at, status, created_at, updated_at
						  FROM bookings WHERE phone_number = $1 ORDER BY created_at DESC LIMIT 1`, phone)
	b, err := scanBooking(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetLatestBookingByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query booking by phone %s: %w", phone, err)
	}
	return &b, nil
}

// UpdateBookingStatus sets the status of an existing booking.
func (s *PostgresStore) UpdateBookingStatus(id string, status models.BookingStatus) error {
	res, err := s.db.Exec(`UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now(), id)
	if err != nil {
		slog.Error("PostgresStore UpdateBookingStatus failed", "error", err, "id", id)
		return fmt.Errorf("failed to update booking %s: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return models.ErrBookingNotFound
	}
	return nil
}

// ListBookingsByBusiness returns bookings for a business, newest first.
func (s *PostgresStore) ListBookingsByBusiness(businessID string) ([]models.BookingRequest, error) {
	rows, err := s.db.Query(`SELECT id, business_id, customer_id, name, phone_number, requested_at, status, created_at, updated_at
							 FROM bookings WHERE business_id = $1 ORDER BY created_at DESC`, businessID)
	if err != nil {
		slog.Error("PostgresStore ListBookingsByBusiness query failed", "error", err, "businessID", businessID)
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

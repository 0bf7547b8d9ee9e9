// Package store provides storage backends for HeyKaelo.
//
// It persists conversation sessions, business profiles, owner identities,
// customers, and booking requests. SQLite and PostgreSQL backends share the
// same interface; an in-memory store backs tests.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/heykaelo/heykaelo-backend/internal/models"
)

// Store defines the persistence contract shared by all backends.
type Store interface {
	// Sessions: one row per phone number.
	GetSession(phone string) (*models.Session, error)
	SaveSession(session models.Session) error
	DeleteSession(phone string) error

	// Businesses: one row per business, keyed by owner identity id.
	UpsertBusiness(profile models.BusinessProfile) error
	UpdateBusinessByPhone(phone string, profile models.BusinessProfile) error
	GetBusinessByPhone(phone string) (*models.BusinessProfile, error)
	ListBusinesses() ([]models.BusinessProfile, error)

	// Users: owner auth identities.
	CreateUser(user models.User) error
	FindUserByPhoneOrEmail(phone, email string) (*models.User, error)

	// Customers: unique on (business, phone).
	FindOrCreateCustomer(businessID, name, phone string) (*models.Customer, error)

	// Bookings.
	CreateBooking(booking models.BookingRequest) error
	GetBooking(id string) (*models.BookingRequest, error)
	GetLatestBookingByPhone(phone string) (*models.BookingRequest, error)
	UpdateBookingStatus(id string, status models.BookingStatus) error
	ListBookingsByBusiness(businessID string) ([]models.BookingRequest, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL-style DSNs and "sqlite" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a mutex-guarded in-memory Store used in tests and local runs.
// All getters return copies so callers cannot mutate stored state in place.
type InMemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]models.Session
	businesses map[string]models.BusinessProfile // keyed by id
	users      map[string]models.User            // keyed by id
	customers  map[string]models.Customer        // keyed by businessID+"/"+phone
	bookings   map[string]models.BookingRequest  // keyed by id
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions:   make(map[string]models.Session),
		businesses: make(map[string]models.BusinessProfile),
		users:      make(map[string]models.User),
		customers:  make(map[string]models.Customer),
		bookings:   make(map[string]models.BookingRequest),
	}
}

func copySession(s models.Session) models.Session {
	out := s
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// GetSession retrieves the session for a phone number, or nil if absent.
func (s *InMemoryStore) GetSession(phone string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[phone]
	if !ok {
		return nil, nil
	}
	out := copySession(sess)
	return &out, nil
}

// SaveSession stores the session, replacing any existing row for the phone.
func (s *InMemoryStore) SaveSession(session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.PhoneNumber] = copySession(session)
	return nil
}

// DeleteSession removes the session row for a phone number.
func (s *InMemoryStore) DeleteSession(phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, phone)
	return nil
}

// UpsertBusiness inserts or replaces a business profile keyed by id.
func (s *InMemoryStore) UpsertBusiness(profile models.BusinessProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[profile.ID] = profile
	return nil
}

// UpdateBusinessByPhone updates the profile matching the phone number.
// Fallback path for when the keyed upsert hits a unique constraint.
func (s *InMemoryStore) UpdateBusinessByPhone(phone string, profile models.BusinessProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.businesses {
		if existing.PhoneNumber == phone {
			profile.ID = id
			s.businesses[id] = profile
			return nil
		}
	}
	return models.ErrBusinessNotFound
}

// GetBusinessByPhone retrieves the business owned by the given phone, or nil.
func (s *InMemoryStore) GetBusinessByPhone(phone string) (*models.BusinessProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.businesses {
		if b.PhoneNumber == phone {
			out := b
			return &out, nil
		}
	}
	return nil, nil
}

// ListBusinesses returns all businesses ordered by creation time descending.
func (s *InMemoryStore) ListBusinesses() ([]models.BusinessProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.BusinessProfile, 0, len(s.businesses))
	for _, b := range s.businesses {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// CreateUser stores an owner identity. Duplicate phone numbers are rejected so
// callers exercise their lookup fallback, mirroring the auth collaborator.
func (s *InMemoryStore) CreateUser(user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.PhoneNumber == user.PhoneNumber {
			return ErrDuplicateUser
		}
	}
	s.users[user.ID] = user
	return nil
}

// FindUserByPhoneOrEmail looks an identity up by phone first, then email.
func (s *InMemoryStore) FindUserByPhoneOrEmail(phone, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.PhoneNumber == phone || (email != "" && u.Email == email) {
			out := u
			return &out, nil
		}
	}
	return nil, nil
}

// FindOrCreateCustomer returns the existing customer for (businessID, phone)
// or creates one with the given name.
func (s *InMemoryStore) FindOrCreateCustomer(businessID, name, phone string) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := businessID + "/" + phone
	if c, ok := s.customers[key]; ok {
		out := c
		return &out, nil
	}
	c := models.Customer{
		ID:          newCustomerID(),
		BusinessID:  businessID,
		PhoneNumber: phone,
		Name:        name,
		CreatedAt:   time.Now(),
	}
	s.customers[key] = c
	out := c
	return &out, nil
}

// CreateBooking stores a booking request.
func (s *InMemoryStore) CreateBooking(booking models.BookingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[booking.ID] = booking
	return nil
}

// GetBooking retrieves a booking by id, or nil if absent.
func (s *InMemoryStore) GetBooking(id string) (*models.BookingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, nil
	}
	out := b
	return &out, nil
}

// GetLatestBookingByPhone returns the most recent booking made from the given
// customer phone number, or nil if there are none.
func (s *InMemoryStore) GetLatestBookingByPhone(phone string) (*models.BookingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.BookingRequest
	for _, b := range s.bookings {
		if b.PhoneNumber != phone {
			continue
		}
		if latest == nil || b.CreatedAt.After(latest.CreatedAt) {
			out := b
			latest = &out
		}
	}
	return latest, nil
}

// UpdateBookingStatus sets the status of an existing booking.
func (s *InMemoryStore) UpdateBookingStatus(id string, status models.BookingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return models.ErrBookingNotFound
	}
	b.Status = status
	b.UpdatedAt = time.Now()
	s.bookings[id] = b
	return nil
}

// ListBookingsByBusiness returns bookings for a business, newest first.
func (s *InMemoryStore) ListBookingsByBusiness(businessID string) ([]models.BookingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.BookingRequest
	for _, b := range s.bookings {
		if b.BusinessID == businessID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

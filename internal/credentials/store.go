package credentials

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shakogegia/noira/internal/crypto"
	"github.com/shakogegia/noira/internal/database"
	"github.com/shakogegia/noira/internal/logger"
)

// Field identifies one of the persisted credential fields.
type Field string

// Storage keys, stable across releases.
const (
	FieldServerURL Field = "abs_server_url"
	FieldUsername  Field = "abs_username"
	FieldAuthToken Field = "abs_auth_token"
	FieldLibraryID Field = "library_id"
)

var allFields = []Field{FieldServerURL, FieldUsername, FieldAuthToken, FieldLibraryID}

// record is a row of the credential key-value table.
type record struct {
	Key       string    `gorm:"primaryKey"`
	Value     string    `gorm:"not null"`
	UpdatedAt time.Time
}

func (record) TableName() string { return "credentials" }

// Credentials is a snapshot of all stored fields. Absent fields are empty
// strings; consumers treat empty and absent the same way.
type Credentials struct {
	ServerURL string
	Username  string
	AuthToken string
	LibraryID string
}

// Complete reports whether the fields required for an authenticated session
// are all present and non-empty.
func (c Credentials) Complete() bool {
	return c.ServerURL != "" && c.Username != "" && c.AuthToken != ""
}

// Store persists credential fields in the local database. The auth token is
// encrypted at rest; every other field is stored verbatim.
type Store struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
	logger    *logger.Logger
}

// NewStore creates a credential store on top of db, migrating the backing
// table if needed.
func NewStore(db *database.Database, encryptor *crypto.Encryptor, log *logger.Logger) (*Store, error) {
	if err := db.DB().AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate credentials table: %w", err)
	}
	return &Store{
		db:        db.DB(),
		encryptor: encryptor,
		logger:    log.ForComponent("credential_store"),
	}, nil
}

// Get returns the stored value for field, or an empty string when the field
// is absent. A token that cannot be decrypted also reads as absent: the
// session layer treats it as a missing credential and forces a new login.
func (s *Store) Get(field Field) (string, error) {
	var rec record
	err := s.db.Where("key = ?", string(field)).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credential %s: %w", field, err)
	}

	if field == FieldAuthToken {
		plaintext, err := s.encryptor.Decrypt(rec.Value)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Stored token is undecryptable, treating as missing")
			return "", nil
		}
		return plaintext, nil
	}

	return rec.Value, nil
}

// Set persists value under field immediately, overwriting any previous value.
func (s *Store) Set(field Field, value string) error {
	stored := value
	if field == FieldAuthToken {
		encrypted, err := s.encryptor.Encrypt(value)
		if err != nil {
			return fmt.Errorf("failed to encrypt token: %w", err)
		}
		stored = encrypted
	}

	rec := record{Key: string(field), Value: stored, UpdatedAt: time.Now()}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to persist credential %s: %w", field, err)
	}

	s.logger.Debug().Str("field", string(field)).Msg("Credential persisted")
	return nil
}

// Clear removes all credential fields. Deletes are idempotent and every
// field is attempted even when an earlier delete fails, so a mid-clear
// store failure can leave the store partially cleared.
func (s *Store) Clear() error {
	var errs []error
	for _, field := range allFields {
		if err := s.db.Where("key = ?", string(field)).Delete(&record{}).Error; err != nil {
			s.logger.Error().Err(err).Str("field", string(field)).Msg("Failed to delete credential")
			errs = append(errs, fmt.Errorf("failed to delete credential %s: %w", field, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.logger.Debug().Msg("Credentials cleared")
	return nil
}

// Snapshot reads all four fields at once.
func (s *Store) Snapshot() (Credentials, error) {
	var creds Credentials
	var err error
	if creds.ServerURL, err = s.Get(FieldServerURL); err != nil {
		return Credentials{}, err
	}
	if creds.Username, err = s.Get(FieldUsername); err != nil {
		return Credentials{}, err
	}
	if creds.AuthToken, err = s.Get(FieldAuthToken); err != nil {
		return Credentials{}, err
	}
	if creds.LibraryID, err = s.Get(FieldLibraryID); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

package accounts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when an account is not found.
var ErrNotFound = errors.New("account not found")

// Open connects to the sqlite database at path and migrates the schema
func Open(path string, level logger.LogLevel) (*gorm.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open account database: %w", err)
	}

	// every pooled connection to :memory: would otherwise get its own empty database
	if path == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&Account{}); err != nil {
		return nil, fmt.Errorf("failed to migrate account database: %w", err)
	}
	return db, nil
}

// Repository provides access to account storage.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new account repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create saves a new account.
func (r *Repository) Create(ctx context.Context, account *Account) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// FindByID retrieves an account by its ID.
func (r *Repository) FindByID(ctx context.Context, id string) (*Account, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByEmail retrieves an account by its email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *Repository) findOne(ctx context.Context, query string, arg string) (*Account, error) {
	var account Account
	if err := r.db.WithContext(ctx).First(&account, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return &account, nil
}

// FindAll retrieves every account ordered by email.
func (r *Repository) FindAll(ctx context.Context) ([]*Account, error) {
	var accounts []*Account
	if err := r.db.WithContext(ctx).Order("email").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to find accounts: %w", err)
	}
	return accounts, nil
}

// Exists reports whether an account with the given ID is registered.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up account: %w", err)
	}
	return count > 0, nil
}

// SetPresence records the online flag and the last-seen time.
func (r *Repository) SetPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	result := r.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).
		Updates(map[string]interface{}{"is_online": online, "last_seen": lastSeen})
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetPresence marks every account offline. Called at startup since no
// connection survives a restart.
func (r *Repository) ResetPresence(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Model(&Account{}).Where("is_online = ?", true).
		Update("is_online", false)
	if err := result.Error; err != nil {
		return 0, fmt.Errorf("failed to reset presence: %w", err)
	}
	return result.RowsAffected, nil
}

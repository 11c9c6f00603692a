package database

import (
	"strings"

	"giftsplit-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const sqlitePrefix = "sqlite://"

// Open opens a GORM DB from DSN (Postgres or a pooler URL).
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") behind PgBouncer-style poolers.
// A "sqlite://<path>" DSN opens a local SQLite file for development.
func Open(dsn string) (*gorm.DB, error) {
	if strings.HasPrefix(dsn, sqlitePrefix) {
		return OpenSQLite(strings.TrimPrefix(dsn, sqlitePrefix))
	}
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), gormConfig())
}

func gormConfig() *gorm.Config {
	return &gorm.Config{TranslateError: true, Logger: newQueryLogger()}
}

// OpenSQLite opens SQLite with a single connection so ":memory:" databases
// are shared by every query and transactions serialize.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// createdSessionIndex allows a single live checkout session per invitee.
// Partial indexes are supported by both Postgres and SQLite.
const createdSessionIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_checkout_sessions_invitee_created ` +
	`ON "CheckoutSessions" (invitee_id) WHERE status = 'created'`

// AutoMigrate creates the gift tables and the constraints the payment flow relies on.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Gift{},
		&domain.Invitee{},
		&domain.InvitationLink{},
		&domain.CheckoutSession{},
		&domain.WebhookEvent{},
	); err != nil {
		return err
	}
	return db.Exec(createdSessionIndex).Error
}

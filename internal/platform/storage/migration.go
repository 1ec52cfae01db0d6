package storage

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"kani-tts-server/internal/platform/errors"
)

// Migration is one versioned schema change.
type Migration interface {
	Version() string
	Description() string
	Up(db *gorm.DB) error
	Down(db *gorm.DB) error
}

// MigrationRecord tracks which migrations have been applied.
type MigrationRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Version   string    `gorm:"uniqueIndex;not null"`
	Name      string    `gorm:"not null"`
	AppliedAt time.Time `gorm:"not null"`
}

// MigrationManager applies pending migrations in registration order, each
// inside its own transaction.
type MigrationManager struct {
	db         *gorm.DB
	migrations []Migration
}

func NewMigrationManager(db *gorm.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

func (m *MigrationManager) AddMigration(migration Migration) {
	m.migrations = append(m.migrations, migration)
}

func (m *MigrationManager) RunMigrations() error {
	const op = "migration.run"

	if err := m.db.AutoMigrate(&MigrationRecord{}); err != nil {
		return errors.Wrap(errors.KindStorage, op, "create migration table", err)
	}

	var appliedVersions []string
	if err := m.db.Model(&MigrationRecord{}).Pluck("version", &appliedVersions).Error; err != nil {
		return errors.Wrap(errors.KindStorage, op, "get applied migrations", err)
	}
	applied := make(map[string]bool, len(appliedVersions))
	for _, version := range appliedVersions {
		applied[version] = true
	}

	for _, migration := range m.migrations {
		if applied[migration.Version()] {
			continue
		}

		err := m.db.Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return err
			}
			return tx.Create(&MigrationRecord{
				Version:   migration.Version(),
				Name:      migration.Description(),
				AppliedAt: time.Now(),
			}).Error
		})
		if err != nil {
			return errors.Wrap(errors.KindStorage, op,
				fmt.Sprintf("apply migration %s", migration.Version()), err)
		}
	}
	return nil
}

// Migrate opens the migration manager with the full migration set and runs it.
func Migrate(db *gorm.DB) error {
	mgr := NewMigrationManager(db)
	mgr.AddMigration(&initialMigration{})
	return mgr.RunMigrations()
}

// initialMigration creates the voices and jobs tables.
type initialMigration struct{}

func (m *initialMigration) Version() string     { return "001" }
func (m *initialMigration) Description() string { return "create voices and jobs tables" }

func (m *initialMigration) Up(db *gorm.DB) error {
	return db.AutoMigrate(&Voice{}, &Job{})
}

func (m *initialMigration) Down(db *gorm.DB) error {
	if err := db.Migrator().DropTable(&Job{}); err != nil {
		return err
	}
	return db.Migrator().DropTable(&Voice{})
}

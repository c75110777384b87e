package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQL stores devices in a relational table through gorm. Ids keep the
// object-id format so both stores accept the same identifiers.
type SQL struct {
	db *gorm.DB
}

func gormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

func OpenPostgres(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%w: missing environment variables: DATABASE_DSN", ErrConfig)
	}
	return gorm.Open(postgres.New(postgres.Config{DSN: dsn}), &gorm.Config{Logger: gormLogger()})
}

func OpenSQLite(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%w: missing environment variables: DATABASE_DSN", ErrConfig)
	}
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger()})
}

func NewSQL(db *gorm.DB) (*SQL, error) {
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &SQL{db: db}, nil
}

func ensureSchema(db *gorm.DB) error {
	m := db.Migrator()
	if !m.HasTable(&Device{}) {
		if err := m.CreateTable(&Device{}); err != nil {
			return fmt.Errorf("create table devices: %w", err)
		}
	}
	if !m.HasIndex(&Device{}, "CreatedAt") {
		_ = m.CreateIndex(&Device{}, "CreatedAt")
	}
	return nil
}

func (s *SQL) List(ctx context.Context) ([]Device, error) {
	var rows []Device
	if err := s.db.WithContext(ctx).Order("created_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for i := range rows {
		normalize(&rows[i])
	}
	return rows, nil
}

func (s *SQL) Create(ctx context.Context, d *Device) (*Device, error) {
	prepareCreate(d)
	if _, err := ParseID(d.ID); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, fmt.Errorf("insert device: %w", err)
	}
	return s.Get(ctx, d.ID)
}

func (s *SQL) Get(ctx context.Context, id string) (*Device, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	var row Device
	if err := s.db.WithContext(ctx).First(&row, "id = ?", oid.Hex()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	normalize(&row)
	return &row, nil
}

func (s *SQL) Update(ctx context.Context, id string, fields Fields, at time.Time) (*Device, error) {
	patch := map[string]any{}
	for k, v := range fields {
		patch[k] = v
	}
	patch["updated_at"] = at.UTC().Truncate(time.Millisecond)
	return s.set(ctx, id, patch)
}

func (s *SQL) SetStatus(ctx context.Context, id, status string, at time.Time) (*Device, error) {
	return s.set(ctx, id, map[string]any{"status": status, "updated_at": at.UTC().Truncate(time.Millisecond)})
}

func (s *SQL) set(ctx context.Context, id string, patch map[string]any) (*Device, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	res := s.db.WithContext(ctx).Model(&Device{}).Where("id = ?", oid.Hex()).Updates(patch)
	if res.Error != nil {
		return nil, fmt.Errorf("update device: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, oid.Hex())
}

func (s *SQL) Delete(ctx context.Context, id string) error {
	oid, err := ParseID(id)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Delete(&Device{}, "id = ?", oid.Hex())
	if res.Error != nil {
		return fmt.Errorf("delete device: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQL) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

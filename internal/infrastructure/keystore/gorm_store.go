package keystore

import (
	"context"

	"github.com/turtacn/txauth/internal/domain/models"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps blobs in the signing_key_blobs table.
type GormStore struct {
	db  *gorm.DB
	log logger.Logger
}

// NewGormStore creates a GormStore and migrates its table.
func NewGormStore(db *gorm.DB, log logger.Logger) (*GormStore, error) {
	if err := db.AutoMigrate(&models.KeyBlob{}); err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "failed to migrate key blob table")
	}
	return &GormStore{db: db, log: log.WithComponent("GormKeyStore")}, nil
}

// Get reads a blob by name.
func (s *GormStore) Get(ctx context.Context, name string) ([]byte, error) {
	var blob models.KeyBlob
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&blob).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NewNotFoundError(name).WithCause(err)
		}
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "failed to read key blob")
	}
	return blob.Data, nil
}

// Put inserts or replaces a blob.
func (s *GormStore) Put(ctx context.Context, name string, data []byte) error {
	blob := models.KeyBlob{Name: name, Data: data}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&blob).Error
	if err != nil {
		return errors.WrapError(err, constants.ErrCodeInternal, "failed to write key blob")
	}
	s.log.Debug(ctx, "Key blob written to database", logger.String("name", name))
	return nil
}

package store

import (
	"context"
	"errors"

	sqlmysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// DocumentSnapshot is a persisted point-in-time copy of a session's document.
// Snapshots are best-effort: the engine is memory-resident and never reads
// them back for correctness.
type DocumentSnapshot struct {
	ID        uint64 `gorm:"primaryKey"`
	SessionID string `gorm:"size:128;uniqueIndex:idx_session_version"`
	Version   uint64 `gorm:"uniqueIndex:idx_session_version"`
	Content   string `gorm:"type:longtext"`
	CreatedAt int64  `gorm:"autoCreateTime"`
}

type SnapshotStore struct{ db *gorm.DB }

// OpenSnapshotStore connects to MySQL and migrates the snapshot table.
func OpenSnapshotStore(dsn string) (*SnapshotStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&DocumentSnapshot{}); err != nil {
		return nil, err
	}
	return &SnapshotStore{db: db}, nil
}

// Save persists one snapshot row. A duplicate (session, version) row means
// the snapshot already exists and is not an error.
func (s *SnapshotStore) Save(ctx context.Context, state DocumentState) error {
	row := DocumentSnapshot{
		SessionID: state.SessionID,
		Version:   state.Version,
		Content:   state.Content,
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	if err != nil {
		var mysqlErr *sqlmysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return err
	}
	return nil
}

// Latest returns the most recent snapshot for a session, or gorm.ErrRecordNotFound.
func (s *SnapshotStore) Latest(ctx context.Context, sessionID string) (DocumentSnapshot, error) {
	var row DocumentSnapshot
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("version DESC").
		First(&row).Error
	return row, err
}

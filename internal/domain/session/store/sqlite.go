package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signage-agent-go/internal/domain/session/model"
	"signage-agent-go/internal/platform/storage"
)

type sqliteStore struct {
	db *gorm.DB
}

// NewSQLite builds a sqlite-backed session store on top of the shared
// database handle.
func NewSQLite(db *gorm.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) SaveCredentials(ctx context.Context, creds model.Credentials) error {
	pairs := map[string]string{
		KeyUsername:   creds.Username,
		KeyPassword:   creds.Password,
		KeyScreenName: creds.ScreenName,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range pairs {
			record := storage.AgentState{Key: key, Value: value}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "state_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"state_value", "updated_at"}),
			}).Create(&record).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqliteStore) LoadCredentials(ctx context.Context) (model.Credentials, bool, error) {
	creds := model.Credentials{}
	keys := []string{KeyUsername, KeyPassword, KeyScreenName}

	var rows []storage.AgentState
	err := s.db.WithContext(ctx).Where("state_key IN ?", keys).Find(&rows).Error
	if err != nil {
		return model.Credentials{}, false, err
	}

	for _, row := range rows {
		switch row.Key {
		case KeyUsername:
			creds.Username = row.Value
		case KeyPassword:
			creds.Password = row.Value
		case KeyScreenName:
			creds.ScreenName = row.Value
		}
	}

	if !creds.Complete() {
		return model.Credentials{}, false, nil
	}
	return creds, true, nil
}

func (s *sqliteStore) ClearCredentials(ctx context.Context) error {
	keys := []string{KeyUsername, KeyPassword, KeyScreenName}
	return s.db.WithContext(ctx).
		Where("state_key IN ?", keys).
		Delete(&storage.AgentState{}).
		Error
}

func (s *sqliteStore) SetLogoutSentinel(ctx context.Context) error {
	record := storage.AgentState{Key: KeyLogoutSentinel, Value: "true"}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "state_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"state_value", "updated_at"}),
	}).Create(&record).Error
}

func (s *sqliteStore) HasLogoutSentinel(ctx context.Context) (bool, error) {
	var row storage.AgentState
	err := s.db.WithContext(ctx).
		Where("state_key = ?", KeyLogoutSentinel).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return row.Value == "true", nil
}

func (s *sqliteStore) ClearLogoutSentinel(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Where("state_key = ?", KeyLogoutSentinel).
		Delete(&storage.AgentState{}).
		Error
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&storage.AgentState{}).Count(&total).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"type":  "sqlite",
		"total": total,
	}, nil
}

func (s *sqliteStore) Close(context.Context) error {
	return nil
}

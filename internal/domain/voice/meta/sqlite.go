package meta

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"kani-tts-server/internal/domain/voice/aggregate"
	"kani-tts-server/internal/platform/errors"
	"kani-tts-server/internal/platform/storage"
)

type sqliteStore struct {
	db *gorm.DB
}

// NewSQLite builds the gorm-backed metadata store. The voices table must
// already be migrated (storage.Migrate).
func NewSQLite(db *gorm.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Insert(ctx context.Context, v aggregate.Voice) error {
	record := toRecord(v)
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "meta.insert", "insert voice row", err)
	}
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, voiceID string) (aggregate.Voice, error) {
	var record storage.Voice
	err := s.db.WithContext(ctx).Where("voice_id = ?", voiceID).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return aggregate.Voice{}, errors.Newf(errors.KindNotFound, "meta.get", "voice not found: %s", voiceID)
		}
		return aggregate.Voice{}, errors.Wrap(errors.KindStorage, "meta.get", "query voice row", err)
	}
	return fromRecord(record), nil
}

func (s *sqliteStore) List(ctx context.Context, owner *string) ([]aggregate.Voice, error) {
	query := s.db.WithContext(ctx).Model(&storage.Voice{}).Order("created_at DESC")
	if owner != nil {
		query = query.Where("owner_id IS NULL OR owner_id = ?", *owner)
	}

	var records []storage.Voice
	if err := query.Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "meta.list", "list voice rows", err)
	}

	voices := make([]aggregate.Voice, len(records))
	for i, record := range records {
		voices[i] = fromRecord(record)
	}
	return voices, nil
}

func (s *sqliteStore) Update(ctx context.Context, v aggregate.Voice) error {
	record := toRecord(v)
	result := s.db.WithContext(ctx).Model(&storage.Voice{}).
		Where("voice_id = ?", v.ID).
		Updates(map[string]any{
			"name":          record.Name,
			"consent_scope": record.ConsentScope,
			"status":        record.Status,
			"faction":       record.Faction,
			"artifact_ref":  record.ArtifactRef,
		})
	if result.Error != nil {
		return errors.Wrap(errors.KindStorage, "meta.update", "update voice row", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.Newf(errors.KindNotFound, "meta.update", "voice not found: %s", v.ID)
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, voiceID string) error {
	result := s.db.WithContext(ctx).Where("voice_id = ?", voiceID).Delete(&storage.Voice{})
	if result.Error != nil {
		return errors.Wrap(errors.KindStorage, "meta.delete", "delete voice row", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.Newf(errors.KindNotFound, "meta.delete", "voice not found: %s", voiceID)
	}
	return nil
}

func (s *sqliteStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(v aggregate.Voice) storage.Voice {
	return storage.Voice{
		VoiceID:      v.ID,
		Name:         v.Name,
		ConsentScope: string(v.ConsentScope),
		Status:       string(v.Status),
		SourceKind:   string(v.SourceKind),
		OwnerID:      v.OwnerID,
		Faction:      v.Faction,
		ArtifactRef:  v.ArtifactRef,
		CreatedAt:    v.CreatedAt,
	}
}

func fromRecord(record storage.Voice) aggregate.Voice {
	return aggregate.Voice{
		ID:           record.VoiceID,
		Name:         record.Name,
		ConsentScope: aggregate.ConsentScope(record.ConsentScope),
		Status:       aggregate.Status(record.Status),
		SourceKind:   aggregate.SourceKind(record.SourceKind),
		OwnerID:      record.OwnerID,
		Faction:      record.Faction,
		ArtifactRef:  record.ArtifactRef,
		CreatedAt:    record.CreatedAt,
	}
}

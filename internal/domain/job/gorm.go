package job

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"kani-tts-server/internal/platform/errors"
	"kani-tts-server/internal/platform/storage"
)

// gormStore persists jobs through the shared relational handle. Claims use
// conditional updates guarded by the queued state, so concurrent workers
// on the same database cannot double-run a job.
type gormStore struct {
	db *gorm.DB
}

func newGormStore(db *gorm.DB) *gormStore {
	return &gormStore{db: db}
}

func (s *gormStore) Insert(ctx context.Context, j *Job) error {
	rec := toJobRecord(j)
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "jobstore.insert", "insert job", err)
	}
	return nil
}

func (s *gormStore) Get(ctx context.Context, id string) (*Job, error) {
	var rec storage.Job
	err := s.db.WithContext(ctx).First(&rec, "job_id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.KindNotFound, "jobstore.get", "job not found")
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "jobstore.get", "query job", err)
	}
	return fromJobRecord(&rec), nil
}

func (s *gormStore) Claim(ctx context.Context) (*Job, error) {
	// Oldest-first, retried on a lost race with another worker.
	for attempt := 0; attempt < 3; attempt++ {
		var rec storage.Job
		err := s.db.WithContext(ctx).
			Where("state = ?", string(StateQueued)).
			Order("created_at ASC").
			First(&rec).Error
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(errors.KindStorage, "jobstore.claim", "query queued jobs", err)
		}

		claimed, err := s.claimRecord(ctx, &rec)
		if err != nil {
			return nil, err
		}
		if claimed != nil {
			return claimed, nil
		}
	}
	return nil, nil
}

func (s *gormStore) ClaimByID(ctx context.Context, id string) (*Job, error) {
	var rec storage.Job
	err := s.db.WithContext(ctx).First(&rec, "job_id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.KindNotFound, "jobstore.claim", "job not found")
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "jobstore.claim", "query job", err)
	}
	return s.claimRecord(ctx, &rec)
}

// claimRecord performs the queued→running compare-and-swap. It returns
// (nil, nil) when someone else won the job first.
func (s *gormStore) claimRecord(ctx context.Context, rec *storage.Job) (*Job, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&storage.Job{}).
		Where("job_id = ? AND state = ?", rec.JobID, string(StateQueued)).
		Updates(map[string]interface{}{
			"state":        string(StateRunning),
			"heartbeat_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return nil, errors.Wrap(errors.KindStorage, "jobstore.claim", "claim job", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	j := fromJobRecord(rec)
	j.State = StateRunning
	j.UpdatedAt = now
	j.HeartbeatAt = &now
	return j, nil
}

func (s *gormStore) Update(ctx context.Context, j *Job) error {
	rec := toJobRecord(j)
	rec.UpdatedAt = time.Now()
	res := s.db.WithContext(ctx).
		Model(&storage.Job{}).
		Where("job_id = ?", j.ID).
		Updates(map[string]interface{}{
			"state":        rec.State,
			"result_ref":   rec.ResultRef,
			"error_detail": rec.ErrorDetail,
			"requeued":     rec.Requeued,
			"heartbeat_at": rec.HeartbeatAt,
			"updated_at":   rec.UpdatedAt,
		})
	if res.Error != nil {
		return errors.Wrap(errors.KindStorage, "jobstore.update", "update job", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.New(errors.KindNotFound, "jobstore.update", "job not found")
	}
	return nil
}

func (s *gormStore) TransitionQueued(ctx context.Context, id string, to State) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&storage.Job{}).
		Where("job_id = ? AND state = ?", id, string(StateQueued)).
		Updates(map[string]interface{}{
			"state":      string(to),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, errors.Wrap(errors.KindStorage, "jobstore.transition", "transition job", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&storage.Job{}).
		Where("job_id = ?", id).
		Count(&count).Error; err != nil {
		return false, errors.Wrap(errors.KindStorage, "jobstore.transition", "check job", err)
	}
	if count == 0 {
		return false, errors.New(errors.KindNotFound, "jobstore.transition", "job not found")
	}
	return false, nil
}

func (s *gormStore) Heartbeat(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&storage.Job{}).
		Where("job_id = ?", id).
		Update("heartbeat_at", at)
	if res.Error != nil {
		return errors.Wrap(errors.KindStorage, "jobstore.heartbeat", "stamp heartbeat", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.New(errors.KindNotFound, "jobstore.heartbeat", "job not found")
	}
	return nil
}

func (s *gormStore) Stale(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	var recs []storage.Job
	err := s.db.WithContext(ctx).
		Where("state = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)", string(StateRunning), cutoff).
		Order("created_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "jobstore.stale", "query stale jobs", err)
	}
	out := make([]*Job, 0, len(recs))
	for i := range recs {
		out = append(out, fromJobRecord(&recs[i]))
	}
	return out, nil
}

func (s *gormStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("state IN ? AND updated_at < ?",
			[]string{string(StateSucceeded), string(StateFailed), string(StateCancelled)}, cutoff).
		Delete(&storage.Job{})
	if res.Error != nil {
		return 0, errors.Wrap(errors.KindStorage, "jobstore.gc", "delete terminal jobs", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *gormStore) Close() error {
	return nil
}

func toJobRecord(j *Job) *storage.Job {
	return &storage.Job{
		JobID:       j.ID,
		Kind:        j.Kind,
		State:       string(j.State),
		SubmittedBy: j.SubmittedBy,
		Payload:     datatypes.JSON(j.Payload),
		ResultRef:   j.ResultRef,
		ErrorDetail: j.ErrorDetail,
		Requeued:    j.Requeued,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		HeartbeatAt: j.HeartbeatAt,
	}
}

func fromJobRecord(rec *storage.Job) *Job {
	return &Job{
		ID:          rec.JobID,
		Kind:        rec.Kind,
		State:       State(rec.State),
		SubmittedBy: rec.SubmittedBy,
		Payload:     []byte(rec.Payload),
		ResultRef:   rec.ResultRef,
		ErrorDetail: rec.ErrorDetail,
		Requeued:    rec.Requeued,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		HeartbeatAt: rec.HeartbeatAt,
	}
}

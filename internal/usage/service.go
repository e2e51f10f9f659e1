package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/mateovillega/bytevault-backend/internal/pricing"
	"github.com/mateovillega/bytevault-backend/pkg/db"
	"github.com/mateovillega/bytevault-backend/pkg/db/models"
	"github.com/mateovillega/bytevault-backend/pkg/enums"
	apperrors "github.com/mateovillega/bytevault-backend/pkg/errors"
	"github.com/mateovillega/bytevault-backend/pkg/logger"
	"github.com/mateovillega/bytevault-backend/pkg/metrics"
	"github.com/mateovillega/bytevault-backend/pkg/pagination"
)

// activeIntervalIndex is the partial unique index that guarantees at most one
// active interval per user at the store, backstopping the in-process lock.
const activeIntervalIndex = "idx_usage_intervals_one_active"

// Service defines operations over the storage audit trail and its usage
// intervals.
type Service interface {
	RecordStorageChange(ctx context.Context, input RecordStorageChangeInput) (*StorageTransition, error)
	CurrentStorage(ctx context.Context, userID string) (*StorageSnapshot, error)
	CurrentStorageBytes(ctx context.Context, userID string) (int64, error)
	LatestChange(ctx context.Context, userID string) (*models.StorageChangeRecord, error)
	ChangeHistory(ctx context.Context, userID string, params pagination.Params) ([]models.StorageChangeRecord, string, error)
	IntervalHistory(ctx context.Context, userID string, params pagination.Params) ([]models.UsageInterval, string, error)
}

// TxRunner executes fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RecordStorageChangeInput captures one storage mutation to meter.
type RecordStorageChangeInput struct {
	UserID    string              `json:"user_id"`
	Action    enums.StorageAction `json:"action"`
	SizeBytes int64               `json:"size_bytes"`
	MediaID   string              `json:"media_id"`
	FileName  string              `json:"file_name"`
}

// StorageSnapshot is the running byte total plus the moment it last changed.
// UpdatedAt is zero for users with no recorded activity.
type StorageSnapshot struct {
	TotalBytes int64     `json:"total_bytes"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StorageTransition is the outcome of metering one storage mutation: the
// audit row plus the interval that was closed (nil on a user's first event)
// and the interval that was opened in its place.
type StorageTransition struct {
	Change *models.StorageChangeRecord `json:"change"`
	Closed *models.UsageInterval       `json:"closed_interval,omitempty"`
	Opened *models.UsageInterval       `json:"opened_interval"`
}

type service struct {
	repo    Repository
	tx      TxRunner
	costs   *pricing.Model
	logg    *logger.Logger
	metrics *metrics.MeteringMetrics
	clock   func() time.Time

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewService wires the usage service with its repository, transaction runner
// and cost model.
func NewService(repo Repository, tx TxRunner, costs *pricing.Model, logg *logger.Logger, meter *metrics.MeteringMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("usage repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if costs == nil {
		return nil, fmt.Errorf("cost model required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		costs:     costs,
		logg:      logg,
		metrics:   meter,
		clock:     func() time.Time { return time.Now().UTC() },
		userLocks: map[string]*sync.Mutex{},
	}, nil
}

func (s *service) lockFor(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

// RecordStorageChange appends an audit row, closes the user's active interval
// at the event timestamp and opens a new one carrying the updated total. The
// close and open share one timestamp so consecutive intervals stay gapless.
// Writers for the same user are serialized in-process; a concurrent writer
// from another process surfaces as a retried conflict and, if it persists, a
// contention error the caller can retry.
func (s *service) RecordStorageChange(ctx context.Context, input RecordStorageChangeInput) (*StorageTransition, error) {
	if input.UserID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	if !input.Action.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid storage action %q", input.Action))
	}
	if input.SizeBytes <= 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "size bytes must be positive")
	}
	if input.MediaID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "media id is required")
	}

	lock := s.lockFor(input.UserID)
	lock.Lock()
	defer lock.Unlock()

	transition, err := s.applyChange(ctx, input)
	if apperrors.HasCode(err, apperrors.CodeConflict) {
		s.logg.Warn(s.logg.WithUserID(ctx, input.UserID), "interval transition conflicted, retrying once")
		transition, err = s.applyChange(ctx, input)
		if apperrors.HasCode(err, apperrors.CodeConflict) {
			return nil, apperrors.Wrap(apperrors.CodeContention, err, "usage interval under concurrent modification")
		}
	}
	if err != nil {
		return nil, err
	}

	s.metrics.IncStorageChange(string(input.Action))
	if transition.Closed != nil {
		s.metrics.ObserveIntervalClosed(time.Duration(transition.Closed.DurationSeconds) * time.Second)
	}
	return transition, nil
}

func (s *service) applyChange(ctx context.Context, input RecordStorageChangeInput) (*StorageTransition, error) {
	now := s.clock()
	transition := &StorageTransition{}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		active, err := repo.FindActiveInterval(ctx, input.UserID)
		if err != nil {
			return fmt.Errorf("loading active interval: %w", err)
		}

		// The active interval carries the authoritative running total;
		// the audit trail is only consulted when no interval is open yet.
		var previousTotal int64
		if active != nil {
			previousTotal = active.BytesHeld
		} else {
			latest, err := repo.LatestChange(ctx, input.UserID)
			if err != nil {
				return fmt.Errorf("loading latest change: %w", err)
			}
			if latest != nil {
				previousTotal = latest.TotalBytesAfter
			}
		}

		delta := input.SizeBytes
		if input.Action == enums.StorageActionDelete {
			delta = -input.SizeBytes
		}
		newTotal := previousTotal + delta
		if newTotal < 0 {
			return apperrors.New(apperrors.CodeStateConflict,
				fmt.Sprintf("delete of %d bytes would drop total below zero (currently %d)", input.SizeBytes, previousTotal))
		}

		change := &models.StorageChangeRecord{
			UserID:          input.UserID,
			RecordedAt:      now,
			ActionType:      input.Action,
			DeltaBytes:      delta,
			TotalBytesAfter: newTotal,
			MediaID:         input.MediaID,
			FileName:        input.FileName,
		}
		if err := repo.CreateChange(ctx, change); err != nil {
			return fmt.Errorf("creating change record: %w", err)
		}
		transition.Change = change

		if active != nil {
			durationSeconds := now.Unix() - active.PeriodStart.Unix()
			if durationSeconds < 0 {
				s.logg.Warn(s.logg.WithUserID(ctx, input.UserID), "active interval starts in the future, clamping duration to zero")
				durationSeconds = 0
			}
			cost := s.costs.Cost(active.BytesHeld, durationSeconds)

			closed, err := repo.CloseInterval(ctx, active.ID, now, durationSeconds, cost)
			if err != nil {
				return fmt.Errorf("closing interval: %w", err)
			}
			if !closed {
				return apperrors.New(apperrors.CodeConflict, "active interval was closed by a concurrent writer")
			}

			end := now
			active.Status = enums.IntervalStatusCompleted
			active.PeriodEnd = &end
			active.DurationSeconds = durationSeconds
			active.AccruedCost = cost
			transition.Closed = active
		}

		opened := &models.UsageInterval{
			UserID:      input.UserID,
			BytesHeld:   newTotal,
			PeriodStart: now,
			Status:      enums.IntervalStatusActive,
		}
		if err := repo.CreateInterval(ctx, opened); err != nil {
			if db.IsUniqueViolation(err, activeIntervalIndex) {
				return apperrors.Wrap(apperrors.CodeConflict, err, "another active interval already exists")
			}
			return fmt.Errorf("opening interval: %w", err)
		}
		transition.Opened = opened
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transition, nil
}

// CurrentStorage returns the user's running byte total and the moment it took
// effect: the open interval's bytes held, or the latest audit row for users
// without one.
func (s *service) CurrentStorage(ctx context.Context, userID string) (*StorageSnapshot, error) {
	if userID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	active, err := s.repo.FindActiveInterval(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return &StorageSnapshot{TotalBytes: active.BytesHeld, UpdatedAt: active.PeriodStart}, nil
	}
	latest, err := s.repo.LatestChange(ctx, userID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return &StorageSnapshot{}, nil
	}
	return &StorageSnapshot{TotalBytes: latest.TotalBytesAfter, UpdatedAt: latest.RecordedAt}, nil
}

func (s *service) CurrentStorageBytes(ctx context.Context, userID string) (int64, error) {
	snapshot, err := s.CurrentStorage(ctx, userID)
	if err != nil {
		return 0, err
	}
	return snapshot.TotalBytes, nil
}

func (s *service) LatestChange(ctx context.Context, userID string) (*models.StorageChangeRecord, error) {
	if userID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	return s.repo.LatestChange(ctx, userID)
}

func (s *service) ChangeHistory(ctx context.Context, userID string, params pagination.Params) ([]models.StorageChangeRecord, string, error) {
	if userID == "" {
		return nil, "", apperrors.New(apperrors.CodeValidation, "user id is required")
	}

	records, err := s.repo.ListChanges(ctx, userID, params)
	if err != nil {
		return nil, "", err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	next := ""
	if len(records) > limit {
		records = records[:limit]
		last := records[len(records)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return records, next, nil
}

func (s *service) IntervalHistory(ctx context.Context, userID string, params pagination.Params) ([]models.UsageInterval, string, error) {
	if userID == "" {
		return nil, "", apperrors.New(apperrors.CodeValidation, "user id is required")
	}

	intervals, err := s.repo.ListIntervals(ctx, userID, params)
	if err != nil {
		return nil, "", err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	next := ""
	if len(intervals) > limit {
		intervals = intervals[:limit]
		last := intervals[len(intervals)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return intervals, next, nil
}

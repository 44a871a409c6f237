package repo

import (
	"NiralaChat/internal/db"
	"NiralaChat/internal/model"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var (
	ErrInvalidLayout    = errors.New("invalid layout: layout cannot be nil")
	ErrInvalidUserID    = errors.New("invalid user ID: cannot be empty")
	ErrOperationTimeout = errors.New("operation timeout exceeded")
)

const (
	// Timeouts
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 10 * time.Second

	// Retry configuration
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

type LayoutRepository interface {
	SaveLayout(ctx context.Context, layout *model.Layout) error
	// LoadLayout returns nil without an error when the user has no layout.
	LoadLayout(ctx context.Context, userID string) (*model.Layout, error)
	DeleteLayout(ctx context.Context, userID string) error
	PruneLayouts(ctx context.Context, olderThan time.Time) (int64, error)
}

type layoutRepository struct {
	mongoRepo *db.Repository[model.Layout]
	logger    *zap.Logger
}

func NewLayoutRepository(repo *db.Repository[model.Layout], logger *zap.Logger) LayoutRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &layoutRepository{
		mongoRepo: repo,
		logger:    logger.Named("layout_repo"),
	}
}

// -----------------------------------------------------------------------------
// SaveLayout
// -----------------------------------------------------------------------------

func (l *layoutRepository) SaveLayout(ctx context.Context, layout *model.Layout) error {
	if err := validateLayout(layout); err != nil {
		return err
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("user_id", layout.UserID).Build()
	err := l.withRetry(ctx, "save", func(ctx context.Context) error {
		_, err := l.mongoRepo.Upsert(ctx, filter, *layout)
		return err
	})
	if err != nil {
		l.logger.Error("failed to save layout", zap.String("user_id", layout.UserID), zap.Error(err))
		return fmt.Errorf("save layout failed: %w", err)
	}

	l.logger.Debug("layout saved",
		zap.String("user_id", layout.UserID),
		zap.Int("sessions", len(layout.Sessions)),
	)
	return nil
}

// -----------------------------------------------------------------------------
// LoadLayout
// -----------------------------------------------------------------------------

func (l *layoutRepository) LoadLayout(ctx context.Context, userID string) (*model.Layout, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	var layout *model.Layout
	filter := db.NewFilter().Eq("user_id", userID).Build()
	err := l.withRetry(ctx, "load", func(ctx context.Context) error {
		found, err := l.mongoRepo.FindOne(ctx, filter)
		if err != nil {
			return err
		}
		layout = found
		return nil
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, l.handleReadError(err, userID)
	}
	return layout, nil
}

// -----------------------------------------------------------------------------
// DeleteLayout / PruneLayouts
// -----------------------------------------------------------------------------

func (l *layoutRepository) DeleteLayout(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidUserID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("user_id", userID).Build()
	err := l.withRetry(ctx, "delete", func(ctx context.Context) error {
		_, err := l.mongoRepo.Delete(ctx, filter)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete layout failed: %w", err)
	}
	l.logger.Info("layout deleted", zap.String("user_id", userID))
	return nil
}

func (l *layoutRepository) PruneLayouts(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var deleted int64
	filter := db.NewFilter().Lt("updated_at", olderThan).Build()
	err := l.withRetry(ctx, "prune", func(ctx context.Context) error {
		res, err := l.mongoRepo.DeleteMany(ctx, filter)
		if err != nil {
			return err
		}
		deleted = res.DeletedCount
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune layouts failed: %w", err)
	}
	if deleted > 0 {
		l.logger.Info("stale layouts pruned", zap.Int64("count", deleted))
	}
	return deleted, nil
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

// withRetry runs op until it succeeds, fails with a non-transient error or
// runs out of attempts.
func (l *layoutRepository) withRetry(ctx context.Context, opName string, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return err
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		// Don't retry on context cancellation or non-retryable errors
		if !isRetryableError(lastErr) {
			return lastErr
		}

		l.logger.Warn("layout operation failed, retrying",
			zap.String("op", opName),
			zap.Error(lastErr),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}
	return lastErr
}

func validateLayout(layout *model.Layout) error {
	if layout == nil {
		return ErrInvalidLayout
	}
	if layout.UserID == "" {
		return ErrInvalidUserID
	}
	return nil
}

func ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}

func waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	// Check for MongoDB transient errors
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}

	return false
}

func (l *layoutRepository) handleReadError(err error, userID string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		l.logger.Error("read timeout", zap.String("user_id", userID))
		return ErrOperationTimeout
	}

	if errors.Is(err, context.Canceled) {
		l.logger.Debug("read cancelled", zap.String("user_id", userID))
		return err
	}

	l.logger.Error("read failed", zap.Error(err), zap.String("user_id", userID))
	return fmt.Errorf("load layout failed: %w", err)
}

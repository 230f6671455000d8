package folio

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sequenceRowID identifies the single shared counter row.
const sequenceRowID = 1

var (
	// ErrInvalidDelta indicates an adjustment with a zero delta.
	ErrInvalidDelta = errors.New("folio: adjustment delta must be nonzero")

	errMissingDatabase = errors.New("folio: database handle is required")

	noOpLogger = zap.NewNop()
)

// Sequence is the persisted counter backing folio allocation. Exactly one row
// (id = 1) exists; it is seeded by the database migrations.
type Sequence struct {
	ID         int64 `gorm:"column:id;primaryKey"`
	LastNumber int64 `gorm:"column:last_number;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Sequence) TableName() string {
	return "folio_sequence"
}

// Format renders a counter value as a document serial. Values beyond four
// digits widen the field instead of truncating.
func Format(number int64) string {
	return fmt.Sprintf("SPT/No. %04d/MOP", number)
}

// AllocatorConfig describes the dependencies of the folio allocator.
type AllocatorConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Allocator hands out unique, strictly increasing document serials from the
// shared counter row. The counter value is never cached in process memory;
// every operation goes through the store so that multiple instances can run
// concurrently.
type Allocator struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAllocator constructs an Allocator.
func NewAllocator(cfg AllocatorConfig) (*Allocator, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Allocator{db: cfg.Database, logger: logger}, nil
}

// Preview returns the serial the next Allocate would produce without
// consuming it. The read is advisory: a concurrent Allocate or Adjust may
// invalidate it before the caller acts on it.
func (a *Allocator) Preview(ctx context.Context) (string, error) {
	var seq Sequence
	err := a.db.WithContext(ctx).
		Where("id = ?", sequenceRowID).
		Take(&seq).Error
	if err != nil {
		a.logger.Error("folio preview failed", zap.Error(err))
		return "", fmt.Errorf("folio: read sequence: %w", err)
	}
	return Format(seq.LastNumber + 1), nil
}

// Allocate atomically increments the counter and returns the new serial. Two
// concurrent calls never receive the same number: the increment runs in its
// own transaction holding a row lock on the counter.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	var allocated string
	txErr := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		next, err := increment(tx, 1)
		if err != nil {
			return err
		}
		allocated = Format(next)
		return nil
	})
	if txErr != nil {
		a.logger.Error("folio allocation failed", zap.Error(txErr))
		return "", txErr
	}
	return allocated, nil
}

// AllocateIn runs the same atomic increment inside the caller's transaction.
// The signature workflow uses it so that minting a folio and persisting the
// conformity signature commit or roll back as one unit.
func (a *Allocator) AllocateIn(tx *gorm.DB) (string, error) {
	next, err := increment(tx, 1)
	if err != nil {
		return "", err
	}
	return Format(next), nil
}

// Adjust adds delta to the counter and returns the serial the next Allocate
// would produce after the adjustment. A zero delta is rejected. No floor is
// enforced; the counter may go negative under repeated negative adjustments.
func (a *Allocator) Adjust(ctx context.Context, delta int64) (string, error) {
	if delta == 0 {
		return "", ErrInvalidDelta
	}
	var preview string
	txErr := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		last, err := increment(tx, delta)
		if err != nil {
			return err
		}
		preview = Format(last + 1)
		return nil
	})
	if txErr != nil {
		a.logger.Error("folio adjustment failed", zap.Error(txErr), zap.Int64("delta", delta))
		return "", txErr
	}
	a.logger.Info("folio sequence adjusted", zap.Int64("delta", delta))
	return preview, nil
}

// increment applies delta to the counter under a row lock and returns the new
// last_number. Read and write happen inside the caller's transaction, so
// concurrent increments serialize on the counter row.
func increment(tx *gorm.DB, delta int64) (int64, error) {
	var seq Sequence
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", sequenceRowID).
		Take(&seq).Error
	if err != nil {
		return 0, fmt.Errorf("folio: lock sequence: %w", err)
	}
	next := seq.LastNumber + delta
	err = tx.Model(&Sequence{}).
		Where("id = ?", sequenceRowID).
		Update("last_number", next).Error
	if err != nil {
		return 0, fmt.Errorf("folio: update sequence: %w", err)
	}
	return next, nil
}

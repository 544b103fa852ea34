package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tracker/internal/amqp"
	"tracker/internal/core"
	"tracker/internal/store"
)

// RecordService stores records whose user and category exist and whose sum
// is positive.
type RecordService struct {
	records    store.RecordRepository
	users      *UserService
	categories *CategoryService
	opts       options
}

func NewRecordService(records store.RecordRepository, users *UserService, categories *CategoryService, opts ...Option) *RecordService {
	return &RecordService{
		records:    records,
		users:      users,
		categories: categories,
		opts:       defaultOptions(opts),
	}
}

// Validate checks in against the current state. The user and category
// lookups run concurrently. It returns a *core.ValidationError listing every
// failed field, a storage error if a lookup itself failed, or nil.
func (s *RecordService) Validate(ctx context.Context, in core.NewRecord) error {
	var userExists, categoryExists bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.users.Get(gctx, in.UserID)
		userExists, err = found(err)
		return err
	})
	g.Go(func() error {
		_, err := s.categories.Get(gctx, in.CategoryID)
		categoryExists, err = found(err)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.NewStorageError("validate record", err)
	}

	return core.NewValidationError(recordViolations(userExists, categoryExists, in.Sum))
}

// found turns a lookup error into existence, passing through real failures.
func found(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case core.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// recordViolations maps each failed field to its reason.
func recordViolations(userExists, categoryExists bool, sum core.Money) map[string]string {
	violations := map[string]string{}
	if !userExists {
		violations[core.FieldUserID] = core.ReasonUserMissing
	}
	if !categoryExists {
		violations[core.FieldCategoryID] = core.ReasonCategoryMissing
	}
	if !sum.IsPositive() {
		violations[core.FieldSum] = core.ReasonSumNotPositive
	}
	return violations
}

// Create validates in and stores it as a new record with a fresh id and the
// current time.
//
// A parent deleted between validation and insert is caught by backends that
// check references at insert time; validation is then re-run so the caller
// sees which reference vanished.
func (s *RecordService) Create(ctx context.Context, in core.NewRecord) (core.Record, error) {
	if err := s.Validate(ctx, in); err != nil {
		return core.Record{}, err
	}

	r := core.Record{
		ID:         s.opts.ids.NewID(),
		UserID:     in.UserID,
		CategoryID: in.CategoryID,
		CreatedAt:  s.opts.clock.Now(),
		Sum:        in.Sum,
	}

	err := s.records.InsertRecord(ctx, r)
	if errors.Is(err, core.ErrReferenceMissing) {
		if verr := s.Validate(ctx, in); verr != nil {
			return core.Record{}, verr
		}
	}
	if err != nil {
		return core.Record{}, core.NewStorageError("insert record", err)
	}

	notify(ctx, s.opts.publisher, amqp.NewRecordEvent(amqp.EventRecordCreated, r))
	return r, nil
}

func (s *RecordService) Get(ctx context.Context, id uuid.UUID) (core.Record, error) {
	return s.records.GetRecord(ctx, id)
}

func (s *RecordService) Delete(ctx context.Context, id uuid.UUID) error {
	r, err := s.records.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if err := s.records.DeleteRecord(ctx, id); err != nil {
		return err
	}
	notify(ctx, s.opts.publisher, amqp.NewRecordEvent(amqp.EventRecordDeleted, r))
	return nil
}

// List returns the records matching filter. An empty filter matches all.
func (s *RecordService) List(ctx context.Context, filter core.RecordFilter) ([]core.Record, error) {
	return s.records.ListRecords(ctx, filter)
}

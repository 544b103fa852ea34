package services

import (
	"context"

	"github.com/google/uuid"

	"tracker/internal/amqp"
	"tracker/internal/core"
	"tracker/internal/store"
)

// namedService is the contract users and categories share: entities that are
// nothing but an id and a name.
type namedService[T any] struct {
	create func(context.Context, T) error
	get    func(context.Context, uuid.UUID) (T, error)
	remove func(context.Context, uuid.UUID) error
	list   func(context.Context) ([]T, error)

	build   func(id uuid.UUID, name string) T
	created amqp.EventType
	deleted amqp.EventType

	opts options
}

// Create trims name, rejects it when blank and stores a new entity under a
// fresh id.
func (s *namedService[T]) Create(ctx context.Context, name string) (T, error) {
	var zero T
	name, err := core.NormalizeName(name)
	if err != nil {
		return zero, core.NewValidationError(map[string]string{core.FieldName: core.ReasonEmptyName})
	}

	id := s.opts.ids.NewID()
	entity := s.build(id, name)
	if err := s.create(ctx, entity); err != nil {
		return zero, core.NewStorageError("create", err)
	}

	notify(ctx, s.opts.publisher, amqp.NewEvent(s.created, id))
	return entity, nil
}

func (s *namedService[T]) Get(ctx context.Context, id uuid.UUID) (T, error) {
	return s.get(ctx, id)
}

// Delete removes the entity and, through the backend, every record that
// references it.
func (s *namedService[T]) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.remove(ctx, id); err != nil {
		return err
	}
	notify(ctx, s.opts.publisher, amqp.NewEvent(s.deleted, id))
	return nil
}

func (s *namedService[T]) List(ctx context.Context) ([]T, error) {
	return s.list(ctx)
}

type UserService struct {
	namedService[core.User]
}

func NewUserService(repo store.UserRepository, opts ...Option) *UserService {
	return &UserService{namedService[core.User]{
		create:  repo.CreateUser,
		get:     repo.GetUser,
		remove:  repo.DeleteUser,
		list:    repo.ListUsers,
		build:   func(id uuid.UUID, name string) core.User { return core.User{ID: id, Name: name} },
		created: amqp.EventUserCreated,
		deleted: amqp.EventUserDeleted,
		opts:    defaultOptions(opts),
	}}
}

type CategoryService struct {
	namedService[core.Category]
}

func NewCategoryService(repo store.CategoryRepository, opts ...Option) *CategoryService {
	return &CategoryService{namedService[core.Category]{
		create:  repo.CreateCategory,
		get:     repo.GetCategory,
		remove:  repo.DeleteCategory,
		list:    repo.ListCategories,
		build:   func(id uuid.UUID, name string) core.Category { return core.Category{ID: id, Name: name} },
		created: amqp.EventCategoryCreated,
		deleted: amqp.EventCategoryDeleted,
		opts:    defaultOptions(opts),
	}}
}

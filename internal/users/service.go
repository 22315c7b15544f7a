package users

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/stewardhq/steward/internal/rbac"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, email, name, passwordHash string) (int64, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// StateSeeder creates the implicit permission state for new accounts.
type StateSeeder interface {
	EnsureState(ctx context.Context, userID int64, role rbac.Role, createdBy int64) error
}

// Service handles user management logic.
type Service struct {
	repo   RepositoryPort
	seeder StateSeeder
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, seeder StateSeeder) *Service {
	return &Service{repo: repo, seeder: seeder}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser fetches one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser registers an account and seeds its permission state with role
// defaults and empty direct sets.
func (s *Service) CreateUser(ctx context.Context, actorID int64, email, name, password string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	id, err := s.repo.CreateUser(ctx, email, name, string(hash))
	if err != nil {
		return User{}, err
	}
	if s.seeder != nil {
		if err := s.seeder.EnsureState(ctx, id, rbac.RoleUser, actorID); err != nil {
			return User{}, err
		}
	}
	return s.repo.GetUser(ctx, id)
}

// SetActive toggles an account's active flag.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

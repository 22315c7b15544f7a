package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/stewardhq/steward/internal/rbac"
	"github.com/stewardhq/steward/internal/shared"
)

type stubUserRepo struct {
	users  map[int64]User
	hashes map[int64]string
	nextID int64
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[int64]User), hashes: make(map[int64]string), nextID: 1}
}

func (s *stubUserRepo) ListUsers(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *stubUserRepo) GetUser(ctx context.Context, id int64) (User, error) {
	u, ok := s.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubUserRepo) CreateUser(ctx context.Context, email, name, passwordHash string) (int64, error) {
	for _, u := range s.users {
		if u.Email == email {
			return 0, ErrDuplicateEmail
		}
	}
	id := s.nextID
	s.nextID++
	s.users[id] = User{ID: id, Email: email, Name: name, Role: "user", IsActive: true}
	s.hashes[id] = passwordHash
	return id, nil
}

func (s *stubUserRepo) SetActive(ctx context.Context, id int64, active bool) error {
	u, ok := s.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.IsActive = active
	s.users[id] = u
	return nil
}

type stubSeeder struct {
	seeded map[int64]rbac.Role
}

func (s *stubSeeder) EnsureState(ctx context.Context, userID int64, role rbac.Role, createdBy int64) error {
	if s.seeded == nil {
		s.seeded = make(map[int64]rbac.Role)
	}
	s.seeded[userID] = role
	return nil
}

func TestCreateUserSeedsPermissionState(t *testing.T) {
	repo := newStubUserRepo()
	seeder := &stubSeeder{}
	service := NewService(repo, seeder)

	user, err := service.CreateUser(context.Background(), 1, "new@steward.local", "New Person", "longpassword")
	require.NoError(t, err)
	assert.Equal(t, "new@steward.local", user.Email)
	assert.Equal(t, "user", user.Role)

	// New accounts start at the lowest tier with empty direct sets.
	assert.Equal(t, rbac.RoleUser, seeder.seeded[user.ID])

	// The stored hash verifies against the original password.
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[user.ID]), []byte("longpassword")))
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	repo := newStubUserRepo()
	service := NewService(repo, &stubSeeder{})

	_, err := service.CreateUser(context.Background(), 1, "dup@steward.local", "A", "longpassword")
	require.NoError(t, err)
	_, err = service.CreateUser(context.Background(), 1, "dup@steward.local", "B", "longpassword")
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestSetActive(t *testing.T) {
	repo := newStubUserRepo()
	service := NewService(repo, &stubSeeder{})

	user, err := service.CreateUser(context.Background(), 1, "x@steward.local", "X", "longpassword")
	require.NoError(t, err)

	require.NoError(t, service.SetActive(context.Background(), user.ID, false))
	got, err := service.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	require.ErrorIs(t, service.SetActive(context.Background(), 404, false), shared.ErrNotFound)
}

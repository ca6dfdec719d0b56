package job

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
	"github.com/maheshrc27/linkedin-scheduler/internal/repository"
	"github.com/maheshrc27/linkedin-scheduler/internal/service"
)

type expiringUsers struct {
	repository.UserRepository
	users  []*models.User
	before time.Time
	err    error
}

func (f *expiringUsers) ListExpiring(_ context.Context, before time.Time) ([]*models.User, error) {
	f.before = before
	return f.users, f.err
}

type recordingAuth struct {
	service.AuthService
	mu      sync.Mutex
	seen    []int64
	failFor int64
}

func (f *recordingAuth) RefreshToken(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, u.ID)
	if u.ID == f.failFor {
		return errors.New("invalid_grant")
	}
	return nil
}

func TestRefreshTokens(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	var users []*models.User
	for i := int64(1); i <= 25; i++ {
		users = append(users, &models.User{ID: i})
	}
	ur := &expiringUsers{users: users}
	auth := &recordingAuth{failFor: 7}

	j := NewTokenRefreshJob(ur, auth)
	j.now = func() time.Time { return now }
	j.RefreshTokens()

	assert.Equal(t, now.Add(30*time.Minute), ur.before)
	sort.Slice(auth.seen, func(i, k int) bool { return auth.seen[i] < auth.seen[k] })
	assert.Len(t, auth.seen, 25, "one failure does not stop the batch")
	assert.Equal(t, int64(1), auth.seen[0])
	assert.Equal(t, int64(25), auth.seen[24])
}

func TestRefreshTokensListError(t *testing.T) {
	auth := &recordingAuth{}
	j := NewTokenRefreshJob(&expiringUsers{err: errors.New("db down")}, auth)
	j.RefreshTokens()
	assert.Empty(t, auth.seen)
}

type countingPosts struct {
	service.PostService
	calls int
	n     int
	err   error
}

func (f *countingPosts) Reconcile(context.Context) (int, error) {
	f.calls++
	return f.n, f.err
}

func TestReconcileJob(t *testing.T) {
	ps := &countingPosts{n: 2}
	NewReconcileJob(ps).Run()
	assert.Equal(t, 1, ps.calls)

	ps.err = errors.New("db down")
	NewReconcileJob(ps).Run()
	assert.Equal(t, 2, ps.calls)
}

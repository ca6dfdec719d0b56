package job

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
	"github.com/maheshrc27/linkedin-scheduler/internal/repository"
	"github.com/maheshrc27/linkedin-scheduler/internal/service"
)

const (
	refreshWindow    = 30 * time.Minute
	refreshBatchSize = 10
	refreshTimeout   = 2 * time.Minute
)

type TokenRefreshJob struct {
	ur   repository.UserRepository
	auth service.AuthService
	now  func() time.Time
}

func NewTokenRefreshJob(ur repository.UserRepository, auth service.AuthService) *TokenRefreshJob {
	return &TokenRefreshJob{
		ur:   ur,
		auth: auth,
		now:  time.Now,
	}
}

// RefreshTokens renews every credential that expires within the refresh
// window. An owner whose refresh fails keeps the old token.
func (j *TokenRefreshJob) RefreshTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	users, err := j.ur.ListExpiring(ctx, j.now().Add(refreshWindow))
	if err != nil {
		log.Error().Err(err).Msg("list expiring tokens")
		return
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, refreshBatchSize)

	for _, u := range users {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(u *models.User) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := j.auth.RefreshToken(ctx, u); err != nil {
				log.Warn().Err(err).Int64("user_id", u.ID).Msg("unable to refresh linkedin token")
			}
		}(u)
	}
	wg.Wait()
}

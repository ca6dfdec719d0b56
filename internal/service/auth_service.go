package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
	"github.com/maheshrc27/linkedin-scheduler/internal/repository"
	"github.com/maheshrc27/linkedin-scheduler/internal/transfer"
)

// CredentialSealer seals and opens stored tokens.
type CredentialSealer interface {
	CredentialOpener
	Seal(plaintext string) (string, error)
}

// OAuthClient is the identity-provider half of the LinkedIn client.
type OAuthClient interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	UserInfo(ctx context.Context, accessToken string) (*transfer.LinkedInUserInfo, error)
}

type AuthService interface {
	AuthURL(state string) string
	// LoginCallback completes the OAuth handshake and returns the local user
	// id of the connected account.
	LoginCallback(ctx context.Context, code string) (int64, error)
	RefreshToken(ctx context.Context, user *models.User) error
}

type authService struct {
	oauth  OAuthClient
	u      repository.UserRepository
	sealer CredentialSealer
}

func NewAuthService(oauth OAuthClient, u repository.UserRepository, sealer CredentialSealer) AuthService {
	return &authService{
		oauth:  oauth,
		u:      u,
		sealer: sealer,
	}
}

func (s *authService) AuthURL(state string) string {
	return s.oauth.AuthURL(state)
}

func expiryOf(token *oauth2.Token) *time.Time {
	if token.Expiry.IsZero() {
		return nil
	}
	exp := token.Expiry
	return &exp
}

func (s *authService) LoginCallback(ctx context.Context, code string) (int64, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return 0, err
	}

	info, err := s.oauth.UserInfo(ctx, token.AccessToken)
	if err != nil {
		return 0, fmt.Errorf("fetch linkedin profile: %w", err)
	}

	access, err := s.sealer.Seal(token.AccessToken)
	if err != nil {
		return 0, err
	}
	refresh, err := s.sealer.Seal(token.RefreshToken)
	if err != nil {
		return 0, err
	}

	user := &models.User{
		LinkedInID:     info.Sub,
		Name:           strings.TrimSpace(info.GivenName + " " + info.FamilyName),
		Email:          info.Email,
		ProfilePicture: info.Picture,
		AccessToken:    access,
		RefreshToken:   refresh,
		TokenExpiresAt: expiryOf(token),
	}
	id, err := s.u.Upsert(ctx, user)
	if err != nil {
		return 0, err
	}
	log.Info().Int64("user_id", id).Str("linkedin_id", info.Sub).Msg("linkedin account connected")
	return id, nil
}

func (s *authService) RefreshToken(ctx context.Context, user *models.User) error {
	refresh, err := s.sealer.Open(user.RefreshToken)
	if err != nil {
		return fmt.Errorf("open refresh token: %w", err)
	}
	if refresh == "" {
		return nil
	}

	token, err := s.oauth.Refresh(ctx, refresh)
	if err != nil {
		return err
	}

	access, err := s.sealer.Seal(token.AccessToken)
	if err != nil {
		return err
	}
	var newRefresh string
	if token.RefreshToken != "" && token.RefreshToken != refresh {
		if newRefresh, err = s.sealer.Seal(token.RefreshToken); err != nil {
			return err
		}
	}
	if err := s.u.UpdateToken(ctx, user.ID, access, newRefresh, expiryOf(token)); err != nil {
		return err
	}
	log.Info().Int64("user_id", user.ID).Msg("linkedin token refreshed")
	return nil
}

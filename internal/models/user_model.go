package models

import "time"

// User owns posts and holds the LinkedIn credential used to publish them.
// AccessToken and RefreshToken are stored sealed (see utils.Sealer).
type User struct {
	ID             int64      `db:"id" json:"id"`
	LinkedInID     string     `db:"linkedin_id" json:"linkedin_id"`
	Name           string     `db:"name" json:"name"`
	Email          string     `db:"email" json:"email"`
	ProfilePicture string     `db:"profile_picture" json:"profile_picture"`
	AccessToken    string     `db:"access_token" json:"-"`
	RefreshToken   string     `db:"refresh_token" json:"-"`
	TokenExpiresAt *time.Time `db:"token_expires_at" json:"token_expires_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	LastLogin      time.Time  `db:"last_login" json:"last_login"`
}

// TokenExpired reports whether the stored credential is no longer usable.
// A missing expiry is treated as non-expiring.
func (u *User) TokenExpired(now time.Time) bool {
	return u.TokenExpiresAt != nil && u.TokenExpiresAt.Before(now)
}

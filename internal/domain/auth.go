package domain

// Credentials is the access/refresh token pair kept in the credential
// store. Both values are opaque to this application.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthSession is the in-memory session for the single active user.
// Owned exclusively by the token lifecycle manager; everything else
// reads copies.
type AuthSession struct {
	AccessToken     string
	RefreshToken    string
	UserID          string
	Email           string
	IsAuthenticated bool
}

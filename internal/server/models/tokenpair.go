package models

// TokenPair bundles a short-lived access token and a long-lived refresh
// token. This is the only value that carries the raw refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

package common

// AuthorizationHeaderName carries the bearer access token on protected requests.
const AuthorizationHeaderName = "Authorization"

// BearerScheme is the only accepted authorization scheme.
const BearerScheme = "Bearer"

// TokenTypeBearer is reported as token_type in token responses.
const TokenTypeBearer = "bearer"

package common

// AuthorizationHeader carries the access token as "Bearer <token>".
const AuthorizationHeader = "Authorization"

// BearerScheme is the token type reported to clients and expected in
// AuthorizationHeader.
const BearerScheme = "bearer"

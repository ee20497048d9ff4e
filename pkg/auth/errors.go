package auth

import "errors"

var (
	// ErrTokenMalformed indicates the bearer token is not a parseable JWT
	ErrTokenMalformed = errors.New("token is malformed")

	// ErrBadSignature indicates the signature does not verify against the key set
	ErrBadSignature = errors.New("token signature is invalid")

	// ErrTokenExpired indicates the token is outside its validity window
	ErrTokenExpired = errors.New("token is expired")

	// ErrIssuerMismatch indicates the issuer is not in the accepted set
	ErrIssuerMismatch = errors.New("token issuer is not accepted")

	// ErrAudienceMismatch indicates no accepted audience is present
	ErrAudienceMismatch = errors.New("token audience is not accepted")

	// ErrKeyNotFound indicates the signing key id is unknown after a refresh
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrTokenRevoked indicates the token id is in the revocation store
	ErrTokenRevoked = errors.New("token has been revoked")
)

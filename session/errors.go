package session

import "errors"

var (
	InvalidTokenErr       = errors.New("invalid refresh token")
	ExpiredTokenErr       = errors.New("refresh token expired")
	RevokedTokenErr       = errors.New("refresh token revoked")
	TokenReuseDetectedErr = errors.New("refresh token reuse detected")
	UserInactiveErr       = errors.New("user inactive")
	UserLockedErr         = errors.New("user locked")
)

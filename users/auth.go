package users

import (
	"errors"
	"time"
)

var (
	InvalidCredentialsErr = errors.New("invalid credentials")
	UserInactiveErr       = errors.New("user inactive")
	UserLockedErr         = errors.New("user locked")
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Authenticate verifies credentials against the repo and returns the validated
// identity on success. It is the upstream check that feeds session issuance;
// the session manager itself never sees passwords.
func Authenticate(repo UserRepo, email, password string) (Identity, error) {
	user, err := repo.GetByEmail(email)
	if err != nil {
		return Identity{}, InvalidCredentialsErr
	}

	if !CheckPassword(password, user.PasswordHash) {
		return Identity{}, InvalidCredentialsErr
	}

	if !user.Active {
		return Identity{}, UserInactiveErr
	}

	identity := user.Identity()
	if identity.LockedAt(NowTimeFunc()) {
		return Identity{}, UserLockedErr
	}

	return identity, nil
}

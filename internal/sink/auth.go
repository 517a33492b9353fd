package sink

import (
	"crypto/subtle"
	"errors"
)

var errAuthFailed = errors.New("authentication failed")

// authenticator checks AUTH PLAIN credentials against a single configured
// account. It is disabled when either credential is empty.
type authenticator struct {
	username string
	password string
}

func (a authenticator) enabled() bool {
	return a.username != "" && a.password != ""
}

func (a authenticator) verify(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if !userOK || !passOK {
		return errAuthFailed
	}

	return nil
}

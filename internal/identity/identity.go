// Package identity resolves the opaque user ID every store call is
// scoped to.
package identity

import (
	"os"
	"os/user"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// namespace keeps derived IDs apart from other name-based UUIDs.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/longkey1/advchat/users"))

// Resolve returns configured when it is set. Otherwise it derives a
// stable ID from the name of the OS user, so every run on the same
// account sees the same conversations.
func Resolve(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	name, err := username()
	if err != nil {
		return "", err
	}
	return FromName(name), nil
}

// FromName derives the user ID for name.
func FromName(name string) string {
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

func username() (string, error) {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username, nil
	}
	for _, key := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(key); v != "" {
			return v, nil
		}
	}
	return "", errors.New("cannot determine the current user; set user_id in the config file")
}

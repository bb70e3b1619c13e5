package callfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"strconv"
)

// Account identifies a local OS user a delivered call file can be owned by.
type Account struct {
	Name string
	UID  int
	GID  int
}

// UserDirectory resolves local accounts and assigns file ownership. The
// default implementation is SystemUsers; tests inject fakes so they do not
// need privileged operations.
type UserDirectory interface {
	// Lookup resolves name to an account, returning ErrNoUser when the
	// account does not exist.
	Lookup(name string) (*Account, error)
	// Chown makes acct the owner of path, returning ErrNoUserPermission
	// when the process lacks the capability.
	Chown(path string, acct *Account) error
}

// SystemUsers is the passwd-backed UserDirectory.
type SystemUsers struct{}

func (SystemUsers) Lookup(name string) (*Account, error) {
	u, err := user.Lookup(name)
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			return nil, fmt.Errorf("%w: %q", ErrNoUser, name)
		}
		return nil, fmt.Errorf("lookup user %q: %w", name, err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, fmt.Errorf("user %q has non-numeric uid %q: %w", name, u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, fmt.Errorf("user %q has non-numeric gid %q: %w", name, u.Gid, err)
	}

	return &Account{Name: u.Username, UID: uid, GID: gid}, nil
}

func (SystemUsers) Chown(path string, acct *Account) error {
	if err := os.Chown(path, acct.UID, acct.GID); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: chown %s to %s", ErrNoUserPermission, path, acct.Name)
		}
		return fmt.Errorf("chown %s: %w", path, err)
	}
	return nil
}

// Package repo is the portal's data-layer client over gorm.
package repo

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("repo: not found")
	ErrNotMember = errors.New("repo: user is not a member of the room")
	ErrBadRoom   = errors.New("repo: invalid room definition")
)

// IDSource issues message ids (internal/idgen).
type IDSource interface {
	Next() (int64, error)
}

// Clock is swapped in tests that need distinct write timestamps.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

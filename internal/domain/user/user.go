package user

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a user does not exist.
var ErrNotFound = errors.New("user not found")

// User is the subset of an account the ordering engine needs.
type User struct {
	ID       int64
	Email    string
	FullName string
}

// Repository provides read access to users owned by the identity service.
type Repository interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

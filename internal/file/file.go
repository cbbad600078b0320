// Package file stores profile images under random names.
package file

import (
	"context"
	"errors"
	"io"
	"regexp"

	"accountapi/internal/platform/crypto"
)

// NameLength is the length of generated file names.
const NameLength = 32

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidName = errors.New("invalid file name")
)

// Store keeps opaque blobs addressed by generated names.
type Store interface {
	Save(ctx context.Context, data []byte) (string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Delete removes name. Deleting a missing file is not an error.
	Delete(ctx context.Context, name string) error
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9]{1,64}$`)

// validName rejects anything that could escape the storage root.
func validName(name string) error {
	if !namePattern.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

func newName() (string, error) {
	return crypto.RandomString(NameLength)
}

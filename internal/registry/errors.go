package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFile is returned for zero byte uploads, which the service rejects
	ErrEmptyFile = errors.New("file is empty")
	// ErrOversizeFile is returned when a file is at or over the size limit
	ErrOversizeFile = errors.New("file over the upload size limit")
	// ErrNotRegularFile is returned for directories and other special files
	ErrNotRegularFile = errors.New("path is not a file")
)

// FileError reports a local file that cannot be registered
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failure to record an upload. When the upload
// already went through, Link and DeleteCredential identify the remote object so it can
// still be reached or revoked by hand.
type PersistenceError struct {
	Op               string
	Link             string
	DeleteCredential string
	Err              error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Orphaned reports whether a remote object exists that no local row points to
func (e *PersistenceError) Orphaned() bool {
	return e.Link != "" || e.DeleteCredential != ""
}

// Package registry keeps the local record of uploads in step with the remote
// objects they describe.
//
// Registration is remote first: the upload and the content digest run
// concurrently, and the row is written only once both succeed. A failed digest
// or write after a successful upload is reported as a PersistenceError carrying
// the link and delete credential, since the remote object then exists without
// a local row.
//
// Deletion is local first: the row removal is staged in a transaction before
// the remote call, and the remote outcome decides between commit and rollback.
package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/marianozunino/transferhelper/internal/config"
	"github.com/marianozunino/transferhelper/internal/db"
	"github.com/marianozunino/transferhelper/internal/model"
	"github.com/marianozunino/transferhelper/internal/transfer"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxSize is the upload limit used when the config sets none
const DefaultMaxSize int64 = 1536 * 1024 * 1024

// Uploader stores a byte stream remotely
type Uploader interface {
	Upload(ctx context.Context, req transfer.UploadRequest) (*transfer.UploadResult, error)
}

// Hasher computes the digest of a local file
type Hasher interface {
	HashFile(path string) (string, error)
}

// RemoteDeleteFunc revokes a remote object by its delete credential
type RemoteDeleteFunc func(ctx context.Context, credential string) (transfer.DeleteOutcome, error)

// ConfirmFunc asks whether rec should be deleted locally and remotely
type ConfirmFunc func(rec model.LinkRecord) bool

// ForceConfirmFunc asks whether to drop the local row although the remote
// delete failed with remoteErr
type ForceConfirmFunc func(rec model.LinkRecord, remoteErr error) bool

// Outcome is the terminal state of a Delete call
type Outcome int

const (
	OutcomeNotFound Outcome = iota + 1
	OutcomeCancelled
	OutcomeCommitted
	OutcomeRolledBack
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not found"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeCommitted:
		return "committed"
	case OutcomeRolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

// Registry is the only owner of the link store
type Registry struct {
	mu       sync.Mutex
	store    *db.DB
	uploader Uploader
	hasher   Hasher
	log      *zap.Logger
	now      func() time.Time
	maxSize  int64
}

type Option func(*Registry)

func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithMaxSize sets the exclusive upper bound on file size in bytes
func WithMaxSize(size int64) Option {
	return func(r *Registry) {
		if size > 0 {
			r.maxSize = size
		}
	}
}

// Open opens the store described by cfg and returns a registry owning it
func Open(cfg *config.Config, uploader Uploader, hasher Hasher, opts ...Option) (*Registry, error) {
	r := &Registry{
		uploader: uploader,
		hasher:   hasher,
		log:      zap.NewNop(),
		now:      time.Now,
		maxSize:  DefaultMaxSize,
	}
	if size := cfg.MaxSizeToBytes(); size > 0 {
		r.maxSize = size
	}
	for _, opt := range opts {
		opt(r)
	}

	store, err := db.NewDB(cfg, r.log)
	if err != nil {
		return nil, &PersistenceError{Op: "open store", Err: err}
	}
	r.store = store
	return r, nil
}

// Close releases the store
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Close()
}

// StorePath returns the file backing the store
func (r *Registry) StorePath() string {
	return r.store.Path()
}

// Register uploads the file at filePath and records it under name. An empty
// name falls back to the file name. progress, if set, receives the fraction
// of the file sent so far.
func (r *Registry) Register(ctx context.Context, name, filePath string, progress transfer.ProgressFunc) (*model.LinkRecord, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, &FileError{Path: filePath, Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &FileError{Path: filePath, Err: ErrNotRegularFile}
	}
	size := info.Size()
	if size == 0 {
		return nil, &FileError{Path: filePath, Err: ErrEmptyFile}
	}
	if size >= r.maxSize {
		return nil, &FileError{Path: filePath, Err: ErrOversizeFile}
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = filepath.Base(filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, &FileError{Path: filePath, Err: err}
	}
	defer file.Close()

	contentType := "application/octet-stream"
	if mtype, err := mimetype.DetectFile(filePath); err == nil {
		contentType = mtype.String()
	}

	var (
		// Plain Group: a failed digest must not cancel an upload in flight.
		g      errgroup.Group
		result *transfer.UploadResult
		digest string
	)
	g.Go(func() error {
		res, err := r.uploader.Upload(ctx, transfer.UploadRequest{
			Name:        filepath.Base(filePath),
			Body:        file,
			Size:        size,
			ContentType: contentType,
			Progress:    progress,
		})
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	g.Go(func() error {
		d, err := r.hasher.HashFile(filePath)
		if err != nil {
			return &FileError{Path: filePath, Err: err}
		}
		digest = d
		return nil
	})
	if err := g.Wait(); err != nil {
		if result != nil {
			r.log.Warn("upload succeeded but registration failed, remote object is not recorded",
				zap.String("link", result.Link),
				zap.String("delete_credential", model.MaskCredential(result.DeleteCredential)),
				zap.Error(err))
			return nil, &PersistenceError{
				Op:               "hash file",
				Link:             result.Link,
				DeleteCredential: result.DeleteCredential,
				Err:              err,
			}
		}
		return nil, err
	}

	rec := &model.LinkRecord{
		Name:             name,
		Link:             result.Link,
		DeleteCredential: result.DeleteCredential,
		CreatedAt:        time.Unix(r.now().Unix(), 0),
		ContentHash:      digest,
	}

	r.mu.Lock()
	id, err := r.store.InsertLink(ctx, rec)
	r.mu.Unlock()
	if err != nil {
		return nil, &PersistenceError{
			Op:               "insert link",
			Link:             result.Link,
			DeleteCredential: result.DeleteCredential,
			Err:              err,
		}
	}
	rec.ID = id

	r.log.Info("link registered",
		zap.Int64("id", rec.ID),
		zap.String("name", rec.Name),
		zap.String("link", rec.Link),
		zap.String("delete_credential", model.MaskCredential(rec.DeleteCredential)),
		zap.Int64("size", size))
	return rec, nil
}

// List returns every record in id order. An empty store yields an empty slice.
func (r *Registry) List(ctx context.Context) ([]model.LinkRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	links, err := r.store.ListLinks(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list links", Err: err}
	}
	return links, nil
}

// Find returns the record with id, or nil when there is none
func (r *Registry) Find(ctx context.Context, id int64) (*model.LinkRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(ctx, id)
}

func (r *Registry) find(ctx context.Context, id int64) (*model.LinkRecord, error) {
	rec, err := r.store.GetLinkByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrLinkNotFound) {
			return nil, nil
		}
		return nil, &PersistenceError{Op: "find link", Err: err}
	}
	return rec, nil
}

// Delete removes the record with id locally and remotely.
//
// The row removal is staged before remoteDelete runs. A remote success, or a
// remote answer that the object is already gone, commits it. Any other remote
// failure goes to forceConfirm: yes commits and leaves the remote object
// orphaned, no rolls back and keeps the row. A nil confirm proceeds without
// asking and a nil forceConfirm always declines.
func (r *Registry) Delete(ctx context.Context, id int64, remoteDelete RemoteDeleteFunc, confirm ConfirmFunc, forceConfirm ForceConfirmFunc) (Outcome, error) {
	if remoteDelete == nil {
		return 0, errors.New("remote delete function is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.find(ctx, id)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return OutcomeNotFound, nil
	}

	if confirm != nil && !confirm(*rec) {
		return OutcomeCancelled, nil
	}

	// The staged delete has to survive a cancelled ctx once the remote
	// object is gone, so the transaction does not inherit cancellation.
	txCtx := context.WithoutCancel(ctx)
	tx, err := r.store.BeginTx(txCtx)
	if err != nil {
		return 0, &PersistenceError{Op: "begin delete", Err: err}
	}

	staged, err := tx.DeleteLinkByID(txCtx, id)
	if err != nil || !staged {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.Error("rollback failed", zap.Int64("id", id), zap.Error(rbErr))
		}
		if err != nil {
			return 0, &PersistenceError{Op: "stage delete", Err: err}
		}
		return OutcomeNotFound, nil
	}

	outcome, remoteErr := remoteDelete(ctx, rec.DeleteCredential)
	if remoteErr != nil {
		r.log.Warn("remote delete failed",
			zap.Int64("id", id),
			zap.String("delete_credential", model.MaskCredential(rec.DeleteCredential)),
			zap.Error(remoteErr))

		if forceConfirm == nil || !forceConfirm(*rec, remoteErr) {
			if err := tx.Rollback(); err != nil {
				return 0, &PersistenceError{Op: "roll back delete", Err: err}
			}
			r.log.Info("delete rolled back", zap.Int64("id", id))
			return OutcomeRolledBack, nil
		}
		r.log.Warn("removing local entry anyway, remote object stays reachable",
			zap.Int64("id", id),
			zap.String("link", rec.Link))
	}

	if err := tx.Commit(); err != nil {
		return 0, &PersistenceError{Op: "commit delete", Err: err}
	}

	r.log.Info("link deleted",
		zap.Int64("id", id),
		zap.String("name", rec.Name),
		zap.Bool("forced", remoteErr != nil),
		zap.Stringer("remote", outcome))
	return OutcomeCommitted, nil
}

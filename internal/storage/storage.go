// Package storage provides object storage access for the pipeline's input
// datasets and output database.
package storage

import (
	"context"
	"errors"

	perrors "github.com/arkilian/offerprofile/internal/errors"
)

// Common errors for storage operations. They are wrapped in a ProfileError
// with the matching STORAGE code, so both errors.Is forms work.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts the object store holding transcript, portfolio and
// profile datasets. Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Upload copies the local file at localPath to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath to localPath, creating parent directories.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

func notFound(objectPath string) error {
	return perrors.NewStorageError(perrors.CodeObjectNotFound, "object "+objectPath, ErrObjectNotFound)
}

func uploadFailed(objectPath string, cause error) error {
	return perrors.NewStorageError(perrors.CodeUploadFailed, "upload "+objectPath,
		errors.Join(ErrUploadFailed, cause))
}

func downloadFailed(objectPath string, cause error) error {
	return perrors.NewStorageError(perrors.CodeDownloadFailed, "download "+objectPath,
		errors.Join(ErrDownloadFailed, cause))
}

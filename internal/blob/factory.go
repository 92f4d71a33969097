package blob

import (
	"context"
	"fmt"
	"os"

	fsstore "crmcore/internal/infra/blob/fs"
	memorystore "crmcore/internal/infra/blob/memory"
	s3store "crmcore/internal/infra/blob/s3"
)

// NewMemory returns an in-memory blob.Store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// NewFilesystem returns a filesystem-backed blob.Store rooted at root.
func NewFilesystem(root string) (Store, error) { return fsstore.New(root) }

// Open selects a blob.Store implementation using environment variables.
//
//	CRMCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	CRMCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./avatars)
//	(S3 specific variables documented in the s3 package)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("CRMCORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("CRMCORE_BLOB_FS_ROOT"))
	case DriverS3:
		return s3store.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

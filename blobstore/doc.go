// Package blobstore publishes finished table files to a storage backend.
//
// Publisher is the interface a backend implements:
//
//	type Publisher interface {
//	    Put(ctx, name, r, size) error
//	    Stat(ctx, name) (int64, error)
//	    Delete(ctx, name) error
//	}
//
// # Built-in Implementations
//
//   - LocalStore: a directory on the local file system
//   - MemoryStore: in-memory, for tests
//   - minio.Store: MinIO and other S3-compatible servers
//   - s3.Store: Amazon S3 with multipart uploads
//
// Publish copies a set of local files to a Publisher concurrently and checks
// the stored sizes afterwards.
package blobstore

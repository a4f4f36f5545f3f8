// Package s3 provides an Amazon S3 implementation of blobstore.Publisher.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	if err != nil {
//	    return err
//	}
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "plots/", s3.DefaultUploadConfig())
//
// # Features
//
//   - Multipart uploads for large table files
//   - Optional CRC32C checksums per part
//   - Configurable prefix for multi-tenant isolation
package s3

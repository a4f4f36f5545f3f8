// Package minio provides a blobstore.Publisher using the MinIO client.
//
// It works with MinIO and other S3-compatible servers such as Ceph, Garage
// and SeaweedFS, without any AWS dependency.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "plots", "run-1/")
//	p, err := plotgen.New(cfg, plotgen.WithPublisher(store))
package minio

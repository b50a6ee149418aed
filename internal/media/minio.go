package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const folderListLimit = 50

// MinioLister lists vehicle image folders in an S3-compatible bucket.
type MinioLister struct {
	client *minio.Client
	bucket string
}

func NewMinioLister(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioLister, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioLister{client: client, bucket: bucket}, nil
}

// ListFolder returns the file names directly inside folder, at most 50.
func (l *MinioLister) ListFolder(ctx context.Context, folder string) ([]string, error) {
	prefix := strings.TrimSuffix(folder, "/") + "/"

	var names []string
	for object := range l.client.ListObjects(ctx, l.bucket, minio.ListObjectsOptions{
		Prefix:  prefix,
		MaxKeys: folderListLimit,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", l.bucket, prefix, object.Err)
		}
		name := strings.TrimPrefix(object.Key, prefix)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		names = append(names, name)
		if len(names) == folderListLimit {
			break
		}
	}
	return names, nil
}

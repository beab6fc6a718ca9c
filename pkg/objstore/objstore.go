package objstore

import (
	"bytes"
	"context"
	"encoding/json"

	"licenseplane/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("objstore", fx.Provide(New))

// Store wraps the minio client with the configured bucket.
type Store struct {
	client *minio.Client
	bucket string
}

func New(c *config.Config) (*Store, error) {
	client, err := minio.New(c.ObjectStore.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.ObjectStore.AccessKey, c.ObjectStore.SecretKey, ""),
		Secure: c.ObjectStore.Secure,
	})
	if err != nil {
		zap.L().Error("failed to create object store client", zap.Error(err))
		return nil, err
	}

	return &Store{client: client, bucket: c.ObjectStore.BucketName}, nil
}

// PutJSON marshals v and writes it under key. Used for compliance report
// exports.
func (s *Store) PutJSON(ctx context.Context, key string, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	return err
}

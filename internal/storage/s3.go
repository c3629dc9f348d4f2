package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/friendmap/backend/internal/config"
)

// Uploader is the part of the S3 upload manager used by AvatarStore.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// AvatarStore uploads profile pictures to an S3-compatible bucket.
type AvatarStore struct {
	uploader Uploader
	bucket   string
	baseURL  string
}

// NewS3AvatarStore configures an uploader targeting the configured object store.
func NewS3AvatarStore(ctx context.Context, cfg config.ObjectStoreConfig) (*AvatarStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("avatar storage: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = manager.MinUploadPartSize
		u.LeavePartsOnError = false
	})

	return NewAvatarStore(uploader, cfg.Bucket, cfg.PublicBaseURL), nil
}

// NewAvatarStore wraps an existing uploader.
func NewAvatarStore(uploader Uploader, bucket, publicBaseURL string) *AvatarStore {
	return &AvatarStore{
		uploader: uploader,
		bucket:   bucket,
		baseURL:  strings.TrimSuffix(publicBaseURL, "/"),
	}
}

// PutAvatar stores the image for userID under avatars/<userID>/<name> and
// returns the URL clients should load it from.
func (s *AvatarStore) PutAvatar(ctx context.Context, userID, name, contentType string, body io.Reader) (string, error) {
	key := "avatars/" + strings.Trim(userID, "/") + "/" + strings.TrimLeft(name, "/")
	if userID == "" || name == "" {
		return "", fmt.Errorf("avatar storage: empty key")
	}

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
		ACL:          s3types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("avatar storage upload %s: %w", key, err)
	}

	if s.baseURL == "" {
		if out != nil && out.Location != "" {
			return out.Location, nil
		}
		return key, nil
	}

	return s.baseURL + "/" + key, nil
}

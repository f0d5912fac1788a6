package objectstorage

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sorintlab/errors"
)

// presignExpiry is how long URLs handed to clients stay valid.
const presignExpiry = 24 * time.Hour

type S3Storage struct {
	bucket      string
	minioClient *minio.Client
}

func NewS3(ctx context.Context, bucket, location, endpoint, accessKeyID, secretAccessKey string, secure bool) (*S3Storage, error) {
	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: secure,
		Region: location,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	exists, err := minioClient.BucketExists(ctx, bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot check if bucket %q in location %q exits", bucket, location)
	}
	if !exists {
		if err := minioClient.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: location}); err != nil {
			return nil, errors.Wrapf(err, "cannot create bucket %q in location %q", bucket, location)
		}
	}

	return &S3Storage{
		bucket:      bucket,
		minioClient: minioClient,
	}, nil
}

func objectKey(p string) string {
	return strings.TrimPrefix(p, "/")
}

func (s *S3Storage) fromMinioErr(err error, p string) error {
	merr := minio.ToErrorResponse(err)
	if merr.StatusCode == http.StatusNotFound || merr.Code == "NoSuchKey" {
		return NewErrNotExist(err, "object %q doesn't exist", p)
	}
	return errors.WithStack(err)
}

func (s *S3Storage) Stat(ctx context.Context, p string) (*ObjectInfo, error) {
	oi, err := s.minioClient.StatObject(ctx, s.bucket, objectKey(p), minio.StatObjectOptions{})
	if err != nil {
		return nil, s.fromMinioErr(err, p)
	}

	return &ObjectInfo{Path: p, LastModified: oi.LastModified, Size: oi.Size}, nil
}

func (s *S3Storage) ReadObject(ctx context.Context, p string) (ReadSeekCloser, error) {
	if _, err := s.minioClient.StatObject(ctx, s.bucket, objectKey(p), minio.StatObjectOptions{}); err != nil {
		return nil, s.fromMinioErr(err, p)
	}
	o, err := s.minioClient.GetObject(ctx, s.bucket, objectKey(p), minio.GetObjectOptions{})
	return o, errors.WithStack(err)
}

func (s *S3Storage) WriteObject(ctx context.Context, p string, data io.Reader, size int64, persist bool) error {
	_, err := s.minioClient.PutObject(ctx, s.bucket, objectKey(p), data, size, minio.PutObjectOptions{ContentType: contentType(p)})
	return errors.WithStack(err)
}

func (s *S3Storage) DeleteObject(ctx context.Context, p string) error {
	if _, err := s.Stat(ctx, p); err != nil {
		return err
	}
	return errors.WithStack(s.minioClient.RemoveObject(ctx, s.bucket, objectKey(p), minio.RemoveObjectOptions{}))
}

// URL returns a presigned GET url.
func (s *S3Storage) URL(ctx context.Context, p string) (string, error) {
	u, err := s.minioClient.PresignedGetObject(ctx, s.bucket, objectKey(p), presignExpiry, nil)
	if err != nil {
		return "", s.fromMinioErr(err, p)
	}
	return u.String(), nil
}

func contentType(p string) string {
	switch {
	case strings.HasSuffix(p, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(p, ".txt"):
		return "text/plain; charset=utf-8"
	case strings.HasSuffix(p, ".pdf"):
		return "application/pdf"
	}
	return "application/octet-stream"
}

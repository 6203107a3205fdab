package remotestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/alexjbarnes/lifeos/internal/document"
	lifeoserrors "github.com/alexjbarnes/lifeos/internal/errors"
)

// S3Store keeps the unified document in an S3-compatible bucket: one
// object per account plus backup objects under a per-account prefix.
type S3Store struct {
	client  *minio.Client
	bucket  string
	prefix  string
	account string
}

// S3Config holds the settings needed to reach the bucket.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
	Account   string
}

// NewS3Store creates an S3-backed remote store.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}

	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		account: cfg.Account,
	}, nil
}

func (s *S3Store) documentKey() string {
	return s.prefix + "/" + s.account + ".json"
}

func (s *S3Store) backupPrefix() string {
	return s.prefix + "/backups/" + s.account + "/"
}

// isNoSuchKey reports whether an S3 error means the object is absent.
func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}

// Metadata stats the document object, or returns nil when absent.
func (s *S3Store) Metadata(ctx context.Context) (*document.Metadata, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.documentKey(), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, nil
		}

		return nil, &TransientError{Err: fmt.Errorf("stating remote document: %w", err)}
	}

	return &document.Metadata{
		LastModified: info.LastModified,
		Size:         info.Size,
	}, nil
}

// ReadDocument fetches the full document object.
func (s *S3Store) ReadDocument(ctx context.Context) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.documentKey(), minio.GetObjectOptions{})
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("fetching remote document: %w", err)}
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, lifeoserrors.ErrRemoteNotFound
		}

		return nil, &TransientError{Err: fmt.Errorf("reading remote document: %w", err)}
	}

	return data, nil
}

// WriteDocument replaces the document object wholesale.
func (s *S3Store) WriteDocument(ctx context.Context, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.documentKey(),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return &TransientError{Err: fmt.Errorf("writing remote document: %w", err)}
	}

	return nil
}

// ListBackups lists backup objects, oldest first.
func (s *S3Store) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	var backups []BackupInfo

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.backupPrefix(),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, &TransientError{Err: fmt.Errorf("listing backups: %w", obj.Err)}
		}

		backups = append(backups, BackupInfo{
			Name:      strings.TrimPrefix(obj.Key, s.backupPrefix()),
			CreatedAt: obj.LastModified,
			Size:      obj.Size,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.Before(backups[j].CreatedAt)
	})

	return backups, nil
}

// CreateBackup stores a named backup object.
func (s *S3Store) CreateBackup(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.backupPrefix()+name,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return &TransientError{Err: fmt.Errorf("creating backup %s: %w", name, err)}
	}

	return nil
}

// DeleteBackup removes a backup object.
func (s *S3Store) DeleteBackup(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.backupPrefix()+name, minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return &TransientError{Err: fmt.Errorf("deleting backup %s: %w", name, err)}
	}

	return nil
}

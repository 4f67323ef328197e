// Package s3 implements a storage backend on Amazon S3 or any
// S3-compatible object store.
//
// Objects are keyed by their slash-separated path relative to the root
// (plus an optional key prefix), so the bucket mirrors the virtual
// filesystem and stays human-inspectable. Directories are implicit: a
// directory exists when at least one object lives under its prefix, and
// MakeDir materializes an empty directory with a zero-length ".keep"
// marker, exactly like the in-memory backend.
//
// Documented policies:
//   - MakeDir does not require the parent directory to exist.
//   - Rename onto an occupied destination fails with ErrAlreadyExists.
//   - Directory renames copy-then-delete every object under the prefix;
//     a crash mid-rename can leave both trees populated, which a retry
//     resolves. Single-file renames are copy-then-delete of one object.
//
// Concurrent writes to the same key are last-write-wins, which matches
// S3's own semantics.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/vpath"
)

// S3Backend implements backend.Backend on an S3 bucket.
type S3Backend struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// S3BackendConfig contains configuration for the S3 backend.
type S3BackendConfig struct {
	// Client is the configured S3 client.
	Client *s3.Client

	// Bucket is the S3 bucket name. Must already exist.
	Bucket string

	// KeyPrefix is an optional prefix for all object keys, letting one
	// bucket host several servers. Example: "sftp/" yields keys like
	// "sftp/docs/report.pdf".
	KeyPrefix string
}

// NewS3Backend creates an S3-based backend and verifies bucket access.
// The bucket must already exist; this function does not create it.
func NewS3Backend(ctx context.Context, cfg S3BackendConfig) (*S3Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3Backend{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// objectKey returns the full S3 key for a path.
func (s *S3Backend) objectKey(path vpath.Path) string {
	return s.keyPrefix + path.Key()
}

// childPrefix returns the key prefix under which the children of path
// live (the bare key prefix for the root).
func (s *S3Backend) childPrefix(path vpath.Path) string {
	if path.IsRoot() {
		return s.keyPrefix
	}
	return s.keyPrefix + path.Key() + "/"
}

// unavailable wraps an S3 transport or service failure so handlers can
// classify it with errors.Is.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w (%v)", op, backend.ErrUnavailable, err)
}

// isNotFound reports whether an S3 error means the object does not exist.
func isNotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// fileExists reports whether an object (not a directory) lives at path.
func (s *S3Backend) fileExists(ctx context.Context, path vpath.Path) (bool, error) {
	if path.IsRoot() {
		return false, nil
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, unavailable("head object", err)
	}
	return true, nil
}

// dirExists reports whether any object lives under the directory prefix.
func (s *S3Backend) dirExists(ctx context.Context, path vpath.Path) (bool, error) {
	if path.IsRoot() {
		return true, nil
	}
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.childPrefix(path)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, unavailable("list objects", err)
	}
	return len(out.Contents) > 0, nil
}

func (s *S3Backend) ListDir(ctx context.Context, path vpath.Path) ([]backend.DirEntry, error) {
	if isFile, err := s.fileExists(ctx, path); err != nil {
		return nil, err
	} else if isFile {
		return nil, backend.ErrNotADirectory
	}

	prefix := s.childPrefix(path)
	entries := []backend.DirEntry{
		{Name: ".", Info: backend.DirectoryInfo(time.Time{})},
		{Name: "..", Info: backend.DirectoryInfo(time.Time{})},
	}
	found := false

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, unavailable("list objects", err)
		}

		for _, common := range page.CommonPrefixes {
			found = true
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(common.Prefix), prefix), "/")
			if name == "" {
				continue
			}
			entries = append(entries, backend.DirEntry{
				Name: name,
				Info: backend.DirectoryInfo(time.Time{}),
			})
		}

		for _, object := range page.Contents {
			found = true
			name := strings.TrimPrefix(aws.ToString(object.Key), prefix)
			if name == "" || name == backend.KeepMarker {
				continue
			}
			entries = append(entries, backend.DirEntry{
				Name: name,
				Info: backend.RegularInfo(uint64(aws.ToInt64(object.Size)), aws.ToTime(object.LastModified)),
			})
		}
	}

	if !found && !path.IsRoot() {
		return nil, backend.ErrNotFound
	}

	// Delimiter listing interleaves prefixes and objects; keep listings
	// stable for clients.
	sort.Slice(entries[2:], func(i, j int) bool {
		return entries[i+2].Name < entries[j+2].Name
	})

	return entries, nil
}

func (s *S3Backend) FileInfo(ctx context.Context, path vpath.Path) (backend.FileInfo, error) {
	if path.IsRoot() {
		return backend.DirectoryInfo(time.Time{}), nil
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(path)),
	})
	if err == nil {
		return backend.RegularInfo(uint64(aws.ToInt64(head.ContentLength)), aws.ToTime(head.LastModified)), nil
	}
	if !isNotFound(err) {
		return backend.FileInfo{}, unavailable("head object", err)
	}

	if exists, err := s.dirExists(ctx, path); err != nil {
		return backend.FileInfo{}, err
	} else if exists {
		return backend.DirectoryInfo(time.Time{}), nil
	}

	return backend.FileInfo{}, backend.ErrNotFound
}

func (s *S3Backend) MakeDir(ctx context.Context, path vpath.Path) error {
	if isFile, err := s.fileExists(ctx, path); err != nil {
		return err
	} else if isFile {
		return backend.ErrAlreadyExists
	}
	if exists, err := s.dirExists(ctx, path); err != nil {
		return err
	} else if exists {
		return backend.ErrAlreadyExists
	}

	marker := s.childPrefix(path) + backend.KeepMarker
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(marker),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return unavailable("put marker", err)
	}
	return nil
}

func (s *S3Backend) DelDir(ctx context.Context, path vpath.Path) error {
	if path.IsRoot() {
		return backend.ErrPermissionDenied
	}
	if isFile, err := s.fileExists(ctx, path); err != nil {
		return err
	} else if isFile {
		return backend.ErrNotADirectory
	}

	prefix := s.childPrefix(path)
	marker := prefix + backend.KeepMarker
	found := false

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return unavailable("list objects", err)
		}
		for _, object := range page.Contents {
			found = true
			if aws.ToString(object.Key) != marker {
				return backend.ErrNotEmpty
			}
		}
	}
	if !found {
		return backend.ErrNotFound
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(marker),
	})
	if err != nil {
		return unavailable("delete marker", err)
	}
	return nil
}

func (s *S3Backend) Delete(ctx context.Context, path vpath.Path) error {
	if isFile, err := s.fileExists(ctx, path); err != nil {
		return err
	} else if !isFile {
		if exists, err := s.dirExists(ctx, path); err != nil {
			return err
		} else if exists {
			return backend.ErrIsADirectory
		}
		return backend.ErrNotFound
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(path)),
	})
	if err != nil {
		return unavailable("delete object", err)
	}
	return nil
}

// copyObject server-side copies one object within the bucket.
func (s *S3Backend) copyObject(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + srcKey),
		Key:        aws.String(dstKey),
	})
	if err != nil {
		return unavailable("copy object", err)
	}
	return nil
}

func (s *S3Backend) Rename(ctx context.Context, src, dst vpath.Path) error {
	if occupied, err := s.fileExists(ctx, dst); err != nil {
		return err
	} else if occupied {
		return backend.ErrAlreadyExists
	}
	if occupied, err := s.dirExists(ctx, dst); err != nil {
		return err
	} else if occupied {
		return backend.ErrAlreadyExists
	}

	// File rename: copy-then-delete the single object.
	if isFile, err := s.fileExists(ctx, src); err != nil {
		return err
	} else if isFile {
		srcKey := s.objectKey(src)
		if err := s.copyObject(ctx, srcKey, s.objectKey(dst)); err != nil {
			return err
		}
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(srcKey),
		})
		if err != nil {
			return unavailable("delete object", err)
		}
		return nil
	}

	// Directory rename: move every object under the prefix.
	if exists, err := s.dirExists(ctx, src); err != nil {
		return err
	} else if !exists {
		return backend.ErrNotFound
	}

	srcPrefix, dstPrefix := s.childPrefix(src), s.childPrefix(dst)
	var moved []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(srcPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return unavailable("list objects", err)
		}
		for _, object := range page.Contents {
			srcKey := aws.ToString(object.Key)
			dstKey := dstPrefix + strings.TrimPrefix(srcKey, srcPrefix)
			if err := s.copyObject(ctx, srcKey, dstKey); err != nil {
				return err
			}
			moved = append(moved, srcKey)
		}
	}

	for _, srcKey := range moved {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(srcKey),
		})
		if err != nil {
			return unavailable("delete object", err)
		}
	}
	return nil
}

func (s *S3Backend) ReadFile(ctx context.Context, path vpath.Path) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(path)),
	})
	if err != nil {
		if isNotFound(err) {
			if exists, dirErr := s.dirExists(ctx, path); dirErr == nil && exists {
				return nil, backend.ErrIsADirectory
			}
			return nil, backend.ErrNotFound
		}
		return nil, unavailable("get object", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, unavailable("read object body", err)
	}
	return data, nil
}

func (s *S3Backend) WriteFile(ctx context.Context, path vpath.Path, data []byte) error {
	if path.IsRoot() {
		return backend.ErrIsADirectory
	}
	if exists, err := s.dirExists(ctx, path); err != nil {
		return err
	} else if exists {
		return backend.ErrIsADirectory
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(path)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return unavailable("put object", err)
	}
	return nil
}

package lpn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// S3BlobStore implements BlobStore using AWS S3 (or any S3-compatible
// endpoint). Versions are ETags; conditional writes use If-Match and
// If-None-Match.
type S3BlobStore struct {
	Client *s3.Client
	Bucket string
	Prefix string
}

// NewS3BlobStore creates a new S3-backed blob store.
// The prefix is optional and will be prepended to all keys.
func NewS3BlobStore(client *s3.Client, bucket, prefix string) *S3BlobStore {
	return &S3BlobStore{
		Client: client,
		Bucket: bucket,
		Prefix: prefix,
	}
}

func (s *S3BlobStore) fullKey(key string) string {
	if s.Prefix == "" {
		return key
	}
	return s.Prefix + key
}

func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	var responseErr *smithyhttp.ResponseError
	return errors.As(err, &responseErr) && responseErr.HTTPStatusCode() == http.StatusNotFound
}

func (s *S3BlobStore) Head(ctx context.Context, key string) (*BlobObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := s.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
		}
		return nil, fmt.Errorf("head object %s: %w", key, err)
	}

	return &BlobObjectInfo{
		Key:       key,
		Version:   aws.ToString(result.ETag),
		UpdatedAt: s3Time(result.LastModified),
		Size:      aws.ToInt64(result.ContentLength),
	}, nil
}

func (s *S3BlobStore) Get(ctx context.Context, key string) ([]byte, *BlobObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	result, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
		}
		return nil, nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read object %s: %w", key, err)
	}

	return data, &BlobObjectInfo{
		Key:       key,
		Version:   aws.ToString(result.ETag),
		UpdatedAt: s3Time(result.LastModified),
		Size:      int64(len(data)),
	}, nil
}

func (s *S3BlobStore) PutIfMatch(ctx context.Context, key string, data []byte, expectedVersion string) (*BlobObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(s.fullKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentTypeFor(key)),
	}
	switch expectedVersion {
	case "":
	case CreateOnlyVersion:
		input.IfNoneMatch = aws.String("*")
	default:
		input.IfMatch = aws.String(expectedVersion)
	}

	result, err := s.Client.PutObject(ctx, input)
	if err != nil {
		var responseErr *smithyhttp.ResponseError
		if errors.As(err, &responseErr) {
			switch responseErr.HTTPStatusCode() {
			case http.StatusPreconditionFailed, http.StatusConflict:
				return nil, fmt.Errorf("%w: %s", ErrBlobVersionMismatch, key)
			}
		}
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}

	return &BlobObjectInfo{
		Key:       key,
		Version:   aws.ToString(result.ETag),
		UpdatedAt: time.Now().UTC(),
		Size:      int64(len(data)),
	}, nil
}

func (s *S3BlobStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (s *S3BlobStore) List(ctx context.Context, prefix string) ([]BlobObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items := make([]BlobObjectInfo, 0)
	paginator := s3.NewListObjectsV2Paginator(s.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(s.fullKey(prefix)),
	})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects for prefix %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if s.Prefix != "" {
				key = strings.TrimPrefix(key, s.Prefix)
			}
			items = append(items, BlobObjectInfo{
				Key:       key,
				Version:   aws.ToString(obj.ETag),
				UpdatedAt: s3Time(obj.LastModified),
				Size:      aws.ToInt64(obj.Size),
			})
		}
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Key < items[j].Key
	})

	return items, nil
}

func s3Time(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

// Package s3 lists an S3 bucket (or a key prefix within it) as a directory tree.
//
// S3 has no real directories: a container is any key prefix ending in "/",
// and its children come from a delimited ListObjectsV2 scan. Identifiers are
// derived from object keys since objects have no stable id of their own.
package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/Ning0612/Syncenum/internal/adapter"
	"github.com/Ning0612/Syncenum/internal/core/etag"
	"github.com/Ning0612/Syncenum/internal/domain"
)

// Config holds connection settings for an S3 lister
type Config struct {
	Bucket    string
	Prefix    string // Optional key prefix treated as the lister root
	Region    string
	Endpoint  string // Custom endpoint for S3-compatible storage
	Profile   string // Shared config profile
	AccessKey string
	SecretKey string
	PathStyle bool
}

// ConfigFromTransport builds a Config from an account transport.
// Root is "bucket" or "bucket/prefix"; Options carry region, endpoint,
// profile, access_key, secret_key and path_style.
func ConfigFromTransport(t domain.Transport) (Config, error) {
	root := strings.Trim(t.Root, "/")
	bucket, prefix, _ := strings.Cut(root, "/")
	if bucket == "" {
		return Config{}, fmt.Errorf("%w: s3 root must name a bucket", domain.ErrConfigInvalid)
	}
	return Config{
		Bucket:    bucket,
		Prefix:    prefix,
		Region:    t.Options["region"],
		Endpoint:  t.Options["endpoint"],
		Profile:   t.Options["profile"],
		AccessKey: t.Options["access_key"],
		SecretKey: t.Options["secret_key"],
		PathStyle: t.Options["path_style"] == "true",
	}, nil
}

// Lister implements adapter.Lister for S3
type Lister struct {
	client s3.ListObjectsV2APIClient
	bucket string
	prefix string // "" or "some/prefix/"
}

var _ adapter.Lister = (*Lister)(nil)

// New creates an S3 lister using the default AWS credential chain unless
// static keys are configured
func New(ctx context.Context, cfg Config) (*Lister, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket name is required", domain.ErrConfigInvalid)
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient creates a lister over an existing client
func NewWithClient(client s3.ListObjectsV2APIClient, bucket, prefix string) *Lister {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Lister{client: client, bucket: bucket, prefix: prefix}
}

// List implements adapter.Lister.
// The container etag is a digest of the direct children, so both depths
// need the same scan.
func (l *Lister) List(ctx context.Context, remotePath string, depth adapter.Depth) ([]domain.Entry, error) {
	remotePath = domain.CleanPath(remotePath)
	keyPrefix := l.keyPrefix(remotePath)

	children, err := l.listChildren(ctx, remotePath, keyPrefix)
	if err != nil {
		return nil, err
	}

	container := domain.Entry{
		ParentPath: path.Dir(remotePath),
		Name:       path.Base(remotePath),
		FileID:     etag.ForID(l.bucket + "/" + keyPrefix),
		ETag:       etag.ForChildren(children),
		IsDir:      true,
	}
	if remotePath == "/" {
		container.ParentPath, container.Name = "/", ""
	}

	result := []domain.Entry{container}
	if depth == adapter.DepthChildren {
		result = append(result, children...)
	}
	return result, nil
}

// ListPage implements adapter.Lister.
// ListObjectsV2 cannot seek by index, so the window is cut from a full scan.
func (l *Lister) ListPage(ctx context.Context, remotePath string, offset, limit int) ([]domain.Entry, error) {
	remotePath = domain.CleanPath(remotePath)
	children, err := l.listChildren(ctx, remotePath, l.keyPrefix(remotePath))
	if err != nil {
		return nil, err
	}

	if offset >= len(children) {
		return nil, nil
	}
	children = children[offset:]
	if limit > 0 && len(children) > limit {
		children = children[:limit]
	}
	return children, nil
}

// Close releases any resources
func (l *Lister) Close() error {
	return nil
}

// keyPrefix maps a remote path to the delimited key prefix of its children
func (l *Lister) keyPrefix(remotePath string) string {
	if remotePath == "/" {
		return l.prefix
	}
	return l.prefix + strings.TrimPrefix(remotePath, "/") + "/"
}

// listChildren returns direct children of keyPrefix sorted by name.
// A folder exists when its marker object or anything below it exists; an
// emptied folder that kept its marker lists as empty. The root always exists.
func (l *Lister) listChildren(ctx context.Context, parent, keyPrefix string) ([]domain.Entry, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(l.bucket),
		Delimiter: aws.String("/"),
	}
	if keyPrefix != "" {
		input.Prefix = aws.String(keyPrefix)
	}

	var result []domain.Entry
	exists := parent == "/"
	paginator := s3.NewListObjectsV2Paginator(l.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, l.mapError(err)
		}

		if len(page.CommonPrefixes) > 0 || len(page.Contents) > 0 {
			exists = true
		}
		for _, cp := range page.CommonPrefixes {
			p := aws.ToString(cp.Prefix)
			name := strings.TrimSuffix(strings.TrimPrefix(p, keyPrefix), "/")
			if name == "" {
				continue
			}
			// Folder etags are unknown until the folder itself is listed
			result = append(result, domain.Entry{
				ParentPath: parent,
				Name:       name,
				FileID:     etag.ForID(l.bucket + "/" + p),
				IsDir:      true,
			})
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, keyPrefix)
			// Skip folder marker objects
			if name == "" || strings.HasSuffix(name, "/") {
				continue
			}
			result = append(result, domain.Entry{
				ParentPath: parent,
				Name:       name,
				FileID:     etag.ForID(l.bucket + "/" + key),
				ETag:       strings.Trim(aws.ToString(obj.ETag), `"`),
				Size:       aws.ToInt64(obj.Size),
				ModTime:    aws.ToTime(obj.LastModified),
			})
		}
	}

	if !exists {
		return nil, domain.ErrNotFound
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].FileID < result[j].FileID
	})
	return result, nil
}

// mapError converts AWS errors to domain errors
func (l *Lister) mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			return domain.ErrNotFound
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return domain.ErrPermissionDenied
		case "SlowDown", "Throttling", "ThrottlingException", "RequestLimitExceeded":
			return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch code := respErr.HTTPStatusCode(); {
		case code == http.StatusNotFound:
			return domain.ErrNotFound
		case code == http.StatusForbidden:
			return domain.ErrPermissionDenied
		case code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
		case code >= 500:
			return fmt.Errorf("%w: %w", domain.ErrNetworkError, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return err
}

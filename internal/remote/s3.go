package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/docker/go-units"

	"pushback/internal/pushback"
)

// deleteBatch is the most keys one DeleteObjects call accepts.
const deleteBatch = 1000

// S3API is the subset of the S3 client the s3 target uses.
type S3API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Uploader stores one object. *manager.Uploader satisfies it.
type Uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Remote is a backup target in an S3 bucket. Project directories are key
// prefixes under the base prefix:
//
//	s3://<bucket>/<base>/<name>_<fingerprint>[<bucket>]/<relpath>
//
// Transfers walk the project in-process and apply the same PatternSet rsync
// would read from the filter files.
type S3Remote struct {
	name      string
	bucket    string
	keyPrefix string
	client    S3API
	uploader  Uploader
	out       io.Writer
	stats     bool
	logger    pushback.Logger
}

// S3Options configures an S3Remote.
type S3Options struct {
	Name   string
	Bucket string
	Base   string
	// Out receives per-file lines for dry runs and the transfer summary.
	Out   io.Writer
	Stats bool
}

// NewS3Remote creates an s3 target using client for metadata calls and
// uploader for object uploads.
func NewS3Remote(opts S3Options, client S3API, uploader Uploader, logger pushback.Logger) *S3Remote {
	keyPrefix := strings.Trim(opts.Base, "/")
	if keyPrefix != "" {
		keyPrefix += "/"
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if logger == nil {
		logger = pushback.NewNopLogger()
	}
	return &S3Remote{
		name:      opts.Name,
		bucket:    opts.Bucket,
		keyPrefix: keyPrefix,
		client:    client,
		uploader:  uploader,
		out:       opts.Out,
		stats:     opts.Stats,
		logger:    logger,
	}
}

func (r *S3Remote) Name() string { return r.name }

func (r *S3Remote) Describe() string { return "s3://" + r.bucket + "/" + r.keyPrefix }

func (r *S3Remote) Location(dir string) string {
	return "s3://" + r.bucket + "/" + r.keyPrefix + dir
}

func (r *S3Remote) MissingBaseHint() string {
	return "aws s3 mb s3://" + r.bucket
}

// BaseExists reports whether the bucket is reachable. Key prefixes need no
// creation, so the bucket stands in for the base directory.
func (r *S3Remote) BaseExists(ctx context.Context) (bool, error) {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(r.bucket)})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	var noBucket *types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noBucket) {
		return false, nil
	}
	return false, fmt.Errorf("checking bucket %s: %w", r.bucket, err)
}

// ListSiblings returns the project prefixes directly under the base that
// start with prefix.
func (r *S3Remote) ListSiblings(ctx context.Context, prefix string) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.bucket),
		Prefix:    aws.String(r.keyPrefix + prefix),
		Delimiter: aws.String("/"),
	})

	var names []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", r.bucket, r.keyPrefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), r.keyPrefix), "/")
			if name != "" {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Transfer uploads every file under req.LocalRoot that req.Patterns keeps.
// Symlinks are never followed or uploaded. With DeleteExtraneous, objects
// under the project prefix with no local counterpart are removed.
func (r *S3Remote) Transfer(ctx context.Context, req pushback.TransferRequest) error {
	dest := r.keyPrefix + req.RemoteDir + "/"

	var files, total int64
	wanted := make(map[string]bool)
	walkErr := filepath.WalkDir(req.LocalRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == req.LocalRoot {
				return err
			}
			r.logger.Warn("skipping unreadable path", "path", p, "error", err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == req.LocalRoot {
			return nil
		}

		rel, err := filepath.Rel(req.LocalRoot, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}
		if req.Patterns != nil && req.Patterns.Decide(rel, d.IsDir()).Excluded {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		key := dest + rel
		wanted[key] = true
		if req.DryRun {
			fmt.Fprintf(r.out, "upload %s\n", rel)
			return nil
		}
		n, err := r.upload(ctx, p, key)
		if err != nil {
			return err
		}
		files++
		total += n
		return nil
	})
	if walkErr != nil {
		return r.transferError(ctx, walkErr)
	}

	var deleted int
	if req.DeleteExtraneous {
		n, err := r.deleteExtraneous(ctx, dest, wanted, req.DryRun)
		if err != nil {
			return r.transferError(ctx, err)
		}
		deleted = n
	}

	if req.DryRun {
		fmt.Fprintf(r.out, "dry run: %d files would be uploaded to %s\n", len(wanted), r.Location(req.RemoteDir))
		return nil
	}
	if r.stats {
		fmt.Fprintf(r.out, "Number of files transferred: %d\nTotal transferred file size: %s\nNumber of deleted files: %d\n",
			files, units.BytesSize(float64(total)), deleted)
	}
	r.logger.Info("s3 transfer complete", "target", r.name, "files", files, "bytes", total, "deleted", deleted)
	return nil
}

func (r *S3Remote) transferError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", pushback.ErrInterrupted, err)
	}
	return err
}

func (r *S3Remote) upload(ctx context.Context, path, key string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if _, err := r.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return 0, fmt.Errorf("uploading %s: %w", key, err)
	}
	return info.Size(), nil
}

// deleteExtraneous removes objects under dest that are not in wanted and
// returns how many were (or, for a dry run, would be) removed.
func (r *S3Remote) deleteExtraneous(ctx context.Context, dest string, wanted map[string]bool, dryRun bool) (int, error) {
	p := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(dest),
	})

	var stale []types.ObjectIdentifier
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("listing %s for deletion: %w", dest, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !wanted[key] {
				stale = append(stale, types.ObjectIdentifier{Key: obj.Key})
			}
		}
	}

	if dryRun {
		for _, obj := range stale {
			fmt.Fprintf(r.out, "delete %s\n", strings.TrimPrefix(aws.ToString(obj.Key), dest))
		}
		return len(stale), nil
	}

	for start := 0; start < len(stale); start += deleteBatch {
		end := min(start+deleteBatch, len(stale))
		out, err := r.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(r.bucket),
			Delete: &types.Delete{Objects: stale[start:end], Quiet: aws.Bool(true)},
		})
		if err != nil {
			return 0, fmt.Errorf("deleting extraneous objects: %w", err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return 0, fmt.Errorf("deleting %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}
	return len(stale), nil
}

var _ pushback.Remote = (*S3Remote)(nil)

package storage

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/leafnet/leafnet-go/internal/conf"
	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/logger"
)

// objectGetter is the subset of the S3 client used for downloads.
type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Downloader reads objects from S3 compatible buckets.
type S3Downloader struct {
	client objectGetter
}

// NewS3Downloader loads the AWS config and creates an S3 client. Static keys
// override the default credential chain when both are set.
func NewS3Downloader(ctx context.Context, settings *conf.S3Settings) (*S3Downloader, error) {
	opts := []func(*config.LoadOptions) error{}
	if settings.Region != "" {
		opts = append(opts, config.WithRegion(settings.Region))
	}
	if settings.AccessKeyID != "" && settings.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(settings.AccessKeyID, settings.SecretAccessKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.New(err).
			Component("storage").
			Category(errors.CategoryConfiguration).
			Context("backend", BackendS3).
			Context("operation", "load_aws_config").
			Build()
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
		}
		o.UsePathStyle = settings.UsePathStyle
	})

	GetLogger().Info("s3 client created",
		logger.String("region", settings.Region),
		logger.Bool("custom_endpoint", settings.Endpoint != ""))
	return &S3Downloader{client: client}, nil
}

// Name implements Downloader.
func (d *S3Downloader) Name() string { return BackendS3 }

// Close implements Downloader.
func (d *S3Downloader) Close() error { return nil }

// Download streams the object body into w.
func (d *S3Downloader) Download(ctx context.Context, loc Locator, w io.Writer) (int64, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Container),
		Key:    aws.String(loc.Object),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		notFound := errors.As(err, &noKey) || errors.As(err, &noBucket)
		return 0, downloadError(err, BackendS3, loc, notFound)
	}
	defer out.Body.Close()

	n, err := io.Copy(w, out.Body)
	if err != nil {
		return n, downloadError(err, BackendS3, loc, false)
	}
	return n, nil
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// BlobFetcher opens the content of a stored blob.
type BlobFetcher interface {
	Fetch(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// S3API is the subset of the S3 client the fetcher needs.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher reads objects from S3.
type S3Fetcher struct {
	Client S3API
}

func (f *S3Fetcher) Fetch(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := f.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// LambdaHandler processes S3 object-created notifications.
type LambdaHandler struct {
	Processor BlobProcessor
	Fetcher   BlobFetcher
	Logger    *zap.Logger
}

// HandleS3Event processes every object in the event. An object that cannot be
// read does not stop the others; the invocation fails afterwards with every
// such error joined so the platform can retry.
func (h *LambdaHandler) HandleS3Event(ctx context.Context, event events.S3Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.Logger.Error("Lambda panic recovered", zap.Any("panic", r))
			err = fmt.Errorf("internal error processing s3 event")
		}
	}()

	var errs []error
	for _, record := range event.Records {
		bucket := record.S3.Bucket.Name
		key, keyErr := url.QueryUnescape(record.S3.Object.Key)
		if keyErr != nil {
			h.Logger.Error("Invalid object key", zap.String("key", record.S3.Object.Key), zap.Error(keyErr))
			errs = append(errs, fmt.Errorf("invalid object key %q: %w", record.S3.Object.Key, keyErr))
			continue
		}

		if objErr := h.processObject(ctx, bucket, key); objErr != nil {
			errs = append(errs, objErr)
		}
	}
	return errors.Join(errs...)
}

func (h *LambdaHandler) processObject(ctx context.Context, bucket, key string) error {
	body, err := h.Fetcher.Fetch(ctx, bucket, key)
	if err != nil {
		h.Logger.Error("Failed to fetch blob", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
		return err
	}
	defer body.Close()

	report, err := h.Processor.ProcessBlob(ctx, key, body)
	if err != nil {
		return err
	}

	h.Logger.Info("S3 object processed",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("adjusted", report.Adjusted),
		zap.Int("failed", report.Failed))
	return nil
}

package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mahino/scalar"
)

// S3Exporter uploads generated payloads to an S3 bucket as canonical
// JSON, one object per generation, keyed under a configured prefix.
type S3Exporter struct {
	cfg      scalar.ExportConfig
	uploader *manager.Uploader
	logger   *zap.SugaredLogger
}

// NewS3Exporter builds an exporter from the ambient AWS configuration.
func NewS3Exporter(ctx context.Context, cfg scalar.ExportConfig, logger *zap.SugaredLogger) (*S3Exporter, error) {
	if cfg.Bucket == "" {
		return nil, scalar.NewExportError("export bucket is not configured", nil)
	}
	if logger == nil {
		logger = zap.S()
	}
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, scalar.NewExportError("failed to load AWS configuration", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3Exporter{
		cfg:      cfg,
		uploader: manager.NewUploader(client),
		logger:   logger,
	}, nil
}

// Export uploads one pipeline result and returns the object key. Keys
// are {prefix}/{date}/{name}-{uuid}.json so repeated exports of the same
// name never collide.
func (e *S3Exporter) Export(ctx context.Context, name string, result *scalar.PipelineResult) (string, error) {
	if result == nil {
		return "", scalar.NewExportError("nothing to export", nil)
	}
	data, err := scalar.CanonicalJSON(result.Document)
	if err != nil {
		return "", scalar.NewExportError("failed to encode document", err)
	}

	key := path.Join(e.cfg.Prefix,
		time.Now().UTC().Format("2006-01-02"),
		fmt.Sprintf("%s-%s.json", name, uuid.Must(uuid.NewV7()).String()))

	_, err = e.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", classifyExportError(key, err)
	}

	e.logger.Infow("exported generated payload",
		"bucket", e.cfg.Bucket, "key", key, "bytes", len(data), "warnings", len(result.Warnings))
	return key, nil
}

// classifyExportError surfaces the S3 error code when the failure came
// from the service rather than the transport.
func classifyExportError(key string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return scalar.NewExportError(
			fmt.Sprintf("upload of %s rejected: %s", key, apiErr.ErrorCode()), err).
			WithDetail("code", apiErr.ErrorCode()).
			WithDetail("fault", apiErr.ErrorFault().String())
	}
	return scalar.NewExportError(fmt.Sprintf("upload of %s failed", key), err)
}

// Package archive uploads the audit record of every finished or cancelled
// match to an S3 compatible bucket (Cloudflare R2 in production).
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/playmatatu/duel/internal/game"
)

type Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// Endpoint overrides the R2 endpoint derived from AccountID.
	Endpoint string
	Prefix   string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver implements game.Archiver.
type S3Archiver struct {
	client objectPutter
	bucket string
	prefix string
	logger *slog.Logger
}

var _ game.Archiver = (*S3Archiver)(nil)

func NewS3Archiver(ctx context.Context, cfg Config, logger *slog.Logger) (*S3Archiver, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.BucketName == "" {
		return nil, errors.New("invalid archive configuration: access key, secret and bucket are required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.AccountID == "" {
			return nil, errors.New("invalid archive configuration: account id or endpoint is required")
		}
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}

	sdkCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config for archive: %w", err)
	}
	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return newWithClient(client, cfg.BucketName, cfg.Prefix, logger), nil
}

func newWithClient(client objectPutter, bucket, prefix string, logger *slog.Logger) *S3Archiver {
	if prefix == "" {
		prefix = "matches"
	}
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix, logger: logger.With("component", "archive")}
}

// Key returns the object key of a match record, partitioned by creation day.
func (a *S3Archiver) Key(rec game.ArchiveRecord) string {
	day := rec.Match.CreatedAt.UTC().Format("2006/01/02")
	return path.Join(a.prefix, rec.Match.GameID, day, rec.Match.ID+".json")
}

// ArchiveMatch writes rec as JSON. Writing the same match twice overwrites
// the earlier object.
func (a *S3Archiver) ArchiveMatch(ctx context.Context, rec game.ArchiveRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode archive record %s: %w", rec.Match.ID, err)
	}
	key := a.Key(rec)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"match-status": string(rec.Match.Status),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload archive object (key: %s): %w", key, err)
	}
	a.logger.Debug("match archived", "match_id", rec.Match.ID, "key", key)
	return nil
}

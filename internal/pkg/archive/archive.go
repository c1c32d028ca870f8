// Package archive stores signed-envelope payloads in S3-compatible object
// storage as signature provenance.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ManuelReschke/ClientHub/internal/pkg/config"
	"github.com/ManuelReschke/ClientHub/internal/pkg/logger"
)

// Archiver persists an envelope payload and returns its URI.
type Archiver interface {
	ArchiveEnvelope(ctx context.Context, provider, envelopeID string, payload []byte) (string, error)
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archive struct {
	client putObjectAPI
	bucket string
	prefix string
	now    func() time.Time
	log    *zap.Logger
}

// Validate reports missing settings for an enabled archive.
func Validate(cfg config.ArchiveConfig) error {
	if !cfg.Enabled {
		return nil
	}
	switch {
	case cfg.AccessKeyID == "":
		return errors.New("S3_ACCESS_KEY_ID is required when the archive is enabled")
	case cfg.SecretAccessKey == "":
		return errors.New("S3_SECRET_ACCESS_KEY is required when the archive is enabled")
	case cfg.Bucket == "":
		return errors.New("S3_ARCHIVE_BUCKET is required when the archive is enabled")
	}
	return nil
}

func NewS3Archive(ctx context.Context, cfg config.ArchiveConfig, log *zap.Logger) (*S3Archive, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, errors.New("archive is disabled")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})
	return newS3Archive(client, cfg.Bucket, cfg.Prefix, log), nil
}

func newS3Archive(client putObjectAPI, bucket, prefix string, log *zap.Logger) *S3Archive {
	return &S3Archive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
		log:    logger.OrNop(log).Named("archive"),
	}
}

// ObjectKey returns prefix/provider/YYYY/MM/<envelope>-<sha12>.json.
func (a *S3Archive) ObjectKey(provider, envelopeID string, payload []byte) string {
	sum := sha256.Sum256(payload)
	now := a.now().UTC()
	key := fmt.Sprintf("%s/%04d/%02d/%s-%s.json",
		provider, now.Year(), int(now.Month()), sanitize(envelopeID), hex.EncodeToString(sum[:])[:12])
	if a.prefix == "" {
		return key
	}
	return a.prefix + "/" + key
}

func (a *S3Archive) ArchiveEnvelope(ctx context.Context, provider, envelopeID string, payload []byte) (string, error) {
	key := a.ObjectKey(provider, envelopeID, payload)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(payload))),
		Metadata: map[string]string{
			"envelope-id":   envelopeID,
			"provider":      provider,
			"upload-source": "clienthub-webhook",
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	uri := fmt.Sprintf("s3://%s/%s", a.bucket, key)
	a.log.Info("envelope archived", zap.String("envelope_id", envelopeID), zap.String("uri", uri))
	return uri, nil
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}

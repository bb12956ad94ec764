// Package archive exports archived intakes to S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/document"
	sc "github.com/dmitrijs2005/intakekeeper/internal/server/config"
)

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

type Exporter interface {
	// Export stores the merged intake and returns the object key.
	Export(ctx context.Context, intakeID string, version int64, doc document.Document) (string, error)
}

// Export is the stored object body.
type Export struct {
	IntakeID   string            `json:"intake_id"`
	Version    int64             `json:"version"`
	ArchivedAt time.Time         `json:"archived_at"`
	Data       document.Document `json:"data"`
}

type S3Exporter struct {
	config *sc.Config
	now    func() time.Time
}

func NewS3Exporter(config *sc.Config) *S3Exporter {
	return &S3Exporter{config: config, now: time.Now}
}

// Key returns the object key of an intake export.
func (e *S3Exporter) Key(intakeID string, at time.Time) string {
	return fmt.Sprintf("%s/%d/%02d/%s.json", e.config.ArchivePrefix, at.Year(), at.Month(), intakeID)
}

func (e *S3Exporter) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(e.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			e.config.S3RootUser,
			e.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(e.config.S3BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

func (e *S3Exporter) Export(ctx context.Context, intakeID string, version int64, doc document.Document) (string, error) {
	at := e.now().UTC()
	body, err := json.Marshal(Export{IntakeID: intakeID, Version: version, ArchivedAt: at, Data: doc})
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}

	c, err := e.client(ctx)
	if err != nil {
		return "", fmt.Errorf("s3 config: %w", err)
	}

	key := e.Key(intakeID, at)
	_, err = putObject(c, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.config.S3Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %v: %w", key, err, common.ErrUnavailable)
	}
	return key, nil
}

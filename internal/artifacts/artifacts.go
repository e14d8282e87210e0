// Package artifacts publishes pipeline outputs to S3-compatible storage.
package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/config"
)

// PutObjectAPI is the part of the S3 client the publisher needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client loads the default AWS credentials chain. A custom endpoint
// switches to path-style addressing for MinIO.
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, opts...), nil
}

// Publisher uploads result directories under <prefix>/<run-id>/.
type Publisher struct {
	Client PutObjectAPI
	Bucket string
	Prefix string
	RunID  string
	Logger *slog.Logger
}

// NewPublisher returns a publisher with a fresh run id.
func NewPublisher(client PutObjectAPI, bucket, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{Client: client, Bucket: bucket, Prefix: prefix, RunID: uuid.NewString(), Logger: logger}
}

var contentTypes = map[string]string{
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv",
	".xes":  "application/xml",
	".dot":  "text/vnd.graphviz",
	".log":  "text/plain",
}

// Key returns the object key of a file under the named result directory.
func (p *Publisher) Key(name, rel string) string {
	return path.Join(p.Prefix, p.RunID, name, filepath.ToSlash(rel))
}

// PublishDir uploads every regular file below dir as <prefix>/<run-id>/<name>/<rel>
// and returns the uploaded keys. A missing dir publishes nothing.
func (p *Publisher) PublishDir(ctx context.Context, dir, name string) ([]string, error) {
	if p.Client == nil {
		return nil, fmt.Errorf("s3 client not initialized")
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	var keys []string
	err := filepath.WalkDir(dir, func(file string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		key := p.Key(name, rel)
		contentType, ok := contentTypes[filepath.Ext(file)]
		if !ok {
			contentType = "application/octet-stream"
		}
		_, err = p.Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(p.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
			Metadata: map[string]string{
				"source":      "twcs-miner",
				"run-id":      p.RunID,
				"uploaded-at": time.Now().UTC().Format(time.RFC3339),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to upload %s to S3: %w", rel, err)
		}
		if p.Logger != nil {
			p.Logger.Info("Uploaded artefact", "bucket", p.Bucket, "key", key, "bytes", len(data))
		}
		keys = append(keys, key)
		return nil
	})
	return keys, err
}

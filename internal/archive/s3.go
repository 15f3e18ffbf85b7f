package archive

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"example.com/gflink/internal/common"
)

// S3Config addresses an S3 compatible bucket. Empty credentials fall back
// to AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.
type S3Config struct {
	Bucket          string `yaml:"bucket" toml:"bucket"`
	Prefix          string `yaml:"prefix" toml:"prefix"`
	Region          string `yaml:"region" toml:"region"`
	Endpoint        string `yaml:"endpoint" toml:"endpoint"`
	PathStyle       bool   `yaml:"pathStyle" toml:"path_style"`
	AccessKeyID     string `yaml:"accessKeyId" toml:"access_key_id"`
	SecretAccessKey string `yaml:"secretAccessKey" toml:"secret_access_key"`
}

func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

// PutObjectAPI is the part of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds a client from static configuration only; no shared
// config files are read.
func NewS3Client(cfg S3Config) (*s3.Client, error) {
	key, secret := cfg.AccessKeyID, cfg.SecretAccessKey
	if key == "" {
		key = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if secret == "" {
		secret = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if key == "" || secret == "" {
		return nil, errors.New("s3: no credentials configured")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:       region,
		UsePathStyle: cfg.PathStyle,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: key, SecretAccessKey: secret, Source: "gflink"}, nil
		}),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts), nil
}

// S3Uploader ships finished captures and their manifests to a bucket.
type S3Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
}

func NewS3Uploader(client PutObjectAPI, cfg S3Config) *S3Uploader {
	return &S3Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}
}

// Key returns the object key a file is stored under.
func (u *S3Uploader) Key(file string) string {
	if u.prefix == "" {
		return filepath.Base(file)
	}
	return path.Join(u.prefix, filepath.Base(file))
}

// Upload stores the file and returns its key. The SHA-256 of the content is
// attached as object metadata.
func (u *S3Uploader) Upload(ctx context.Context, file string) (string, error) {
	digest, size, err := common.Sha256OfFile(file)
	if err != nil {
		return "", err
	}
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(file))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := u.Key(file)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		Metadata: map[string]string{
			"sha256": digest,
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload %s: %w", key, err)
	}
	common.Logf("archived %s (%s) to s3://%s/%s", file, common.FormatBytes(size), u.bucket, key)
	return key, nil
}

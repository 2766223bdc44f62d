// Package objectstore downloads, unpacks and signs task artifacts held in S3-compatible storage.
package objectstore

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cloudwego/hertz/pkg/common/hlog"
)

// ObjectGetter is the subset of *s3.Client the gateway reads with.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Presigner is the subset of *s3.PresignClient used for retrieval URLs.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config selects region, credentials and an optional S3-compatible endpoint.
// Empty keys fall back to the default AWS credential chain.
type Config struct {
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

type Gateway struct {
	objects   ObjectGetter
	presigner Presigner
}

// NewGateway builds a gateway over explicit clients.
func NewGateway(objects ObjectGetter, presigner Presigner) *Gateway {
	return &Gateway{objects: objects, presigner: presigner}
}

// New builds a gateway backed by the AWS SDK.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load object storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewGateway(client, s3.NewPresignClient(client)), nil
}

// Download writes the object at bucket/key to dest, creating parent
// directories and replacing any existing file.
func (g *Gateway) Download(ctx context.Context, bucket, key, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		hlog.CtxErrorf(ctx, "Creating directory for %s failed: %v", dest, err)
		return fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}

	out, err := g.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		hlog.CtxErrorf(ctx, "Downloading s3://%s/%s failed: %v", bucket, key, err)
		return fmt.Errorf("failed to download s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	f, err := os.Create(dest)
	if err != nil {
		hlog.CtxErrorf(ctx, "Creating %s failed: %v", dest, err)
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		hlog.CtxErrorf(ctx, "Writing s3://%s/%s to %s failed: %v", bucket, key, dest, err)
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dest, err)
	}

	hlog.CtxInfof(ctx, "Downloaded s3://%s/%s to %s", bucket, key, dest)
	return nil
}

// UnpackAndDiscard extracts the zip at archive into dir, then removes the archive.
// Entries already written stay in place when a later entry fails.
func (g *Gateway) UnpackAndDiscard(archive, dir string) error {
	if err := extractZip(archive, dir); err != nil {
		hlog.Errorf("Unpacking %s into %s failed: %v", archive, dir, err)
		return err
	}
	if err := os.Remove(archive); err != nil {
		hlog.Errorf("Removing archive %s failed: %v", archive, err)
		return fmt.Errorf("failed to remove archive %s: %w", archive, err)
	}
	hlog.Infof("Unpacked %s into %s", archive, dir)
	return nil
}

// PresignedURL returns a GET URL for bucket/key valid for ttl.
func (g *Gateway) PresignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if g.presigner == nil {
		return "", fmt.Errorf("presigning is not configured")
	}
	req, err := g.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		hlog.CtxErrorf(ctx, "Presigning s3://%s/%s failed: %v", bucket, key, err)
		return "", fmt.Errorf("failed to presign s3://%s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}

func extractZip(archive, dir string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", archive, err)
	}
	defer r.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	clean := filepath.Clean(dir)
	root := clean + string(os.PathSeparator)

	for _, entry := range r.File {
		target := filepath.Join(dir, entry.Name)
		if target != clean && !strings.HasPrefix(target, root) {
			return fmt.Errorf("archive entry %q escapes %s", entry.Name, dir)
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", target, err)
			}
			continue
		}
		if err := writeEntry(entry, target); err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(entry *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(target), err)
	}
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("reading entry %s: %w", entry.Name, err)
	}
	defer src.Close()

	mode := entry.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("extracting %s: %w", entry.Name, err)
	}
	return out.Close()
}

package storage

import (
	"context"
	"log"

	"github.com/ironsheep/dataset-synth/internal/config"
)

// Open returns the sink selected by cfg: an S3 sink when a bucket is
// configured, otherwise a local sink rooted at dir. With S3, dir is appended
// to the configured prefix so separate runs do not collide.
func Open(ctx context.Context, cfg *config.Config, dir string) (Sink, error) {
	if cfg == nil || cfg.S3Bucket == "" {
		return NewLocalSink(dir), nil
	}

	adapter, err := NewS3Adapter(ctx, cfg.AWSRegion, cfg.S3Bucket)
	if err != nil {
		return nil, err
	}

	prefix := cfg.S3Prefix
	if dir != "" {
		if k, err := CleanKey(dir); err == nil {
			if prefix != "" {
				prefix += "/"
			}
			prefix += k
		}
	}

	log.Printf("Writing output to s3://%s/%s", cfg.S3Bucket, prefix)
	return NewS3Sink(adapter, cfg.S3Bucket, prefix), nil
}

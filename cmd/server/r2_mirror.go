package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"roomscene.ai/internal/persistence/r2s3"
)

// openMirror builds the scene-file mirror when RS_R2_MIRROR is set.
func openMirror(dataDir string, logger *log.Logger) (*r2s3.Mirror, error) {
	if !envBool("RS_R2_MIRROR", false) {
		return nil, nil
	}
	client, err := r2s3.New(r2s3.ClientConfig{
		Endpoint:        os.Getenv("RS_R2_ENDPOINT"),
		Bucket:          os.Getenv("RS_R2_BUCKET"),
		AccessKeyID:     os.Getenv("RS_R2_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("RS_R2_SECRET_ACCESS_KEY"),
		Region:          os.Getenv("RS_R2_REGION"),
	})
	if err != nil {
		return nil, fmt.Errorf("RS_R2_MIRROR=true: %w", err)
	}
	return r2s3.NewMirror(client, r2s3.MirrorConfig{
		DataDir:       dataDir,
		Prefix:        strings.TrimSpace(os.Getenv("RS_R2_PREFIX")),
		Workers:       envInt("RS_R2_UPLOAD_WORKERS", 2),
		QueueCapacity: envInt("RS_R2_QUEUE_CAPACITY", 1024),
		EnqueueWait:   time.Duration(envInt("RS_R2_ENQUEUE_WAIT_MS", 25)) * time.Millisecond,
		Logger:        logger,
	}), nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Package blob stores raw provider payloads in object storage so failed or
// disputed syncs can be audited against exactly what the provider returned.
// Capture is optional: a nil *Capture skips storage silently.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"propel/engine/internal/util"
)

type Capture struct {
	client *minio.Client
	bucket string
}

// New connects to object storage and ensures the bucket exists. Returns nil
// if the connection fails; callers proceed without payload capture.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) *Capture {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		log.Printf("blob: object storage unavailable at %s: %v", endpoint, err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		log.Printf("blob: check bucket %s: %v", bucket, err)
		return nil
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			log.Printf("blob: create bucket %s: %v", bucket, err)
			return nil
		}
	}
	return &Capture{client: client, bucket: bucket}
}

// Store saves one raw payload and returns its object key. Keys embed the
// document id, provider and a timestamp so listings read chronologically.
func (c *Capture) Store(ctx context.Context, documentID, provider string, payload []byte) (string, error) {
	if c == nil {
		return "", nil
	}

	key := fmt.Sprintf("pulls/%s/%s-%s-%s.txt",
		documentID, time.Now().UTC().Format("20060102T150405Z"), provider, util.NewID("cap"))

	_, err := c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "text/plain"})
	if err != nil {
		return "", fmt.Errorf("store payload %s: %w", key, err)
	}
	return key, nil
}

// Fetch reads a stored payload back by key.
func (c *Capture) Fetch(ctx context.Context, key string) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("payload capture disabled")
	}

	obj, err := c.client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch payload %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read payload %s: %w", key, err)
	}
	return data, nil
}

// List returns the stored payload keys for a document, oldest first.
func (c *Capture) List(ctx context.Context, documentID string) ([]string, error) {
	if c == nil {
		return nil, nil
	}

	var keys []string
	prefix := "pulls/" + documentID + "/"
	for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list payloads for %s: %w", documentID, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

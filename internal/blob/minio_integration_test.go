//go:build integration
// +build integration

package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

// startMinio runs a throwaway MinIO container and returns its endpoint.
func startMinio(t *testing.T) string {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("could not connect to docker: %v", err)
	}

	tag := os.Getenv("CLIP_MINIO_TEST_TAG")
	if tag == "" {
		tag = "RELEASE.2024-01-31T20-20-33Z"
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "minio/minio",
		Tag:        tag,
		Cmd:        []string{"server", "/data"},
		Env: []string{
			"MINIO_ROOT_USER=minio",
			"MINIO_ROOT_PASSWORD=minio123",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
	})
	if err != nil {
		t.Fatalf("could not start minio: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	endpoint := "localhost:" + resource.GetPort("9000/tcp")
	if err := pool.Retry(func() error {
		resp, err := http.Get("http://" + endpoint + "/minio/health/live")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("minio not ready: %d", resp.StatusCode)
		}
		return nil
	}); err != nil {
		t.Fatalf("minio not ready: %v", err)
	}
	return endpoint
}

func TestMinio_RoundTrip(t *testing.T) {
	ctx := context.Background()
	endpoint := startMinio(t)

	if _, err := NewMinio(ctx, MinioConfig{
		Endpoint: endpoint, AccessKey: "minio", SecretKey: "minio123", Bucket: "clips",
	}); err == nil {
		t.Fatal("expected error for missing bucket without CreateBucket")
	}

	m, err := NewMinio(ctx, MinioConfig{
		Endpoint:     "http://" + endpoint,
		AccessKey:    "minio",
		SecretKey:    "minio123",
		Bucket:       "clips",
		CreateBucket: true,
	})
	if err != nil {
		t.Fatalf("NewMinio: %v", err)
	}
	if err := m.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	ref, err := m.Put(ctx, "items/abc/0-hello.txt", []byte("hello world"), "text/plain")
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	data, err := m.Get(ctx, ref)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("got %q", data)
	}

	if err := m.Delete(ctx, ref); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.Delete(ctx, ref); err != nil {
		t.Fatalf("delete of missing object should succeed: %v", err)
	}
	if _, err := m.Get(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meigma/zipalign/core/testutil"
)

const webRoot = "/usr/share/nginx/html"

var (
	serverOnce sync.Once
	serverURL  string
	serverErr  error
)

// fixtures are the archives published by the shared web server.
var fixtures = map[string]func() []byte{
	"sample.apk": testutil.BuildSampleAPK,
	"large.apk":  buildLargeAPK,
}

// getServer returns the base URL of the shared web server, starting the
// container if needed. The container is shared across all tests.
func getServer(tb testing.TB) string {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}

	serverOnce.Do(func() {
		serverURL, serverErr = startServerContainer(context.Background())
	})

	if serverErr != nil {
		tb.Fatalf("start web server container: %v", serverErr)
	}

	return serverURL
}

// startServerContainer starts an nginx container serving every fixture and
// returns its base URL.
func startServerContainer(ctx context.Context) (string, error) {
	dir, err := os.MkdirTemp("", "zipalign-integration-")
	if err != nil {
		return "", fmt.Errorf("create fixture dir: %w", err)
	}

	files := make([]testcontainers.ContainerFile, 0, len(fixtures))
	for name, build := range fixtures {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, build(), 0o644); err != nil {
			return "", fmt.Errorf("write fixture %s: %w", name, err)
		}
		files = append(files, testcontainers.ContainerFile{
			HostFilePath:      path,
			ContainerFilePath: webRoot + "/" + name,
			FileMode:          0o644,
		})
	}

	req := testcontainers.ContainerRequest{
		Image:        "nginx:alpine",
		ExposedPorts: []string{"80/tcp"},
		Files:        files,
		WaitingFor:   wait.ForHTTP("/sample.apk").WithPort("80/tcp").WithStatusCodeMatcher(isOKStatus),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start web server container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve web server host: %w", err)
	}

	port, err := container.MappedPort(ctx, "80/tcp")
	if err != nil {
		return "", fmt.Errorf("resolve web server port: %w", err)
	}

	return fmt.Sprintf("http://%s:%s", host, port.Port()), nil
}

func isOKStatus(status int) bool {
	return status >= 200 && status < 300
}

// buildLargeAPK builds an archive spanning many cache blocks.
func buildLargeAPK() []byte {
	files := testutil.SampleAPK()
	for i := range 64 {
		data := make([]byte, 4096+i*97)
		for j := range data {
			data[j] = byte(i + j)
		}
		files = append(files, testutil.File{
			Name:   fmt.Sprintf("assets/chunk-%02d.bin", i),
			Data:   data,
			Stored: i%3 != 0,
		})
	}
	data, err := testutil.BuildArchive(files, "large apk")
	if err != nil {
		panic(err)
	}
	return data
}

// writeLocal writes a fixture to a temp dir and returns its path.
func writeLocal(tb testing.TB, name string) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), name)
	require.NoError(tb, os.WriteFile(path, fixtures[name](), 0o644))
	return path
}

// Package docker provides container-based integration tests for prewarm.
//
// The readiness poller is exercised against a real container that replays an
// extension host log over time, the way code-server's extension host does
// during a warm run. Requires a local Docker daemon; tests are skipped when
// one is unavailable.
package docker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcexec "github.com/testcontainers/testcontainers-go/exec"

	"github.com/ternarybob/prewarm/pkg/readiness"
)

// replayScript appends the extension's log lines on a schedule, then idles
// so the container outlives the poll session.
const replayScript = `
L=/tmp/exthost.log
touch $L
sleep 2
echo "[info] code intelligence engine starting" >> $L
sleep 1
echo "Found 120 source files" >> $L
echo "background worker pool started (4 workers)" >> $L
sleep 1
echo "indexing source files" >> $L
sleep 3
echo "indexing complete in 3.1s" >> $L
sleep 300
`

// genericContainer wraps testcontainers.GenericContainer, converting the
// panic testcontainers raises when no Docker daemon can be located into an
// error so callers reach their existing skip path.
func genericContainer(ctx context.Context, req testcontainers.GenericContainerRequest) (c testcontainers.Container, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("docker not available: %v", r)
		}
	}()
	return testcontainers.GenericContainer(ctx, req)
}

func startReplayContainer(t *testing.T) testcontainers.Container {
	t.Helper()
	ctx := context.Background()

	container, err := genericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "alpine:3.20",
			Cmd:   []string{"sh", "-c", replayScript},
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	return container
}

// containerSignal reads the replayed log out of the container on every poll.
func containerSignal(container testcontainers.Container) readiness.SignalSource {
	return readiness.SignalSourceFunc(func() readiness.Signal {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		code, reader, err := container.Exec(ctx,
			[]string{"cat", "/tmp/exthost.log"}, tcexec.Multiplexed())
		if err != nil || code != 0 {
			return ""
		}
		data, err := io.ReadAll(reader)
		if err != nil {
			return ""
		}
		return readiness.Signal(data)
	})
}

func TestPoller_AgainstReplayedContainerLog(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	container := startReplayContainer(t)
	source := containerSignal(container)

	var fires int
	trigger := readiness.TriggerFunc(func(ctx context.Context) error {
		fires++
		return nil
	})

	cfg := readiness.DefaultConfig()
	cfg.Interval = 500 * time.Millisecond

	poller := readiness.New(source, trigger, readiness.WithConfig(cfg))
	outcome := poller.Poll(context.Background(), 60*time.Second)

	assert.True(t, outcome.Ready, "poller should observe the replayed completion marker")
	assert.Zero(t, fires, "indexing progressed, so no stall recovery should fire")
	assert.Less(t, outcome.Elapsed, 60*time.Second)
}

func TestPoller_ContainerLogNeverCompletes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := genericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "alpine:3.20",
			Cmd:   []string{"sh", "-c", "touch /tmp/exthost.log && sleep 300"},
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	source := containerSignal(container)
	trigger := readiness.TriggerFunc(func(ctx context.Context) error { return nil })

	cfg := readiness.DefaultConfig()
	cfg.Interval = 500 * time.Millisecond

	poller := readiness.New(source, trigger, readiness.WithConfig(cfg))
	outcome := poller.Poll(context.Background(), 3*time.Second)

	assert.False(t, outcome.Ready, "an empty log can never become ready")
}

func TestContainerSignal_ReadsFullContent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	container := startReplayContainer(t)
	source := containerSignal(container)

	require.Eventually(t, func() bool {
		return strings.Contains(string(source.Read()), "code intelligence engine starting")
	}, 30*time.Second, time.Second)
}

//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const repoRootRel = ".."           // relative to ./e2e
const mainPkgRel = "./cmd/gateway" // gateway entrypoint

// TestSmoke_SimulatedSensorPublishes runs the gateway against a real broker
// with the simulated BLE central and asserts a decoded reading arrives on the
// sensors topic.
func TestSmoke_SimulatedSensorPublishes(t *testing.T) {
	repoRoot := repoRootPath(t)

	brokerHost, brokerPort := startMosquitto(t)

	bin := buildBinary(t, repoRoot)
	sqlitePath := filepath.Join(t.TempDir(), "rules.db")

	cmd := exec.Command(bin)
	cmd.Env = append(os.Environ(),
		"APP_ENV=dev",
		"LOG_LEVEL=info",
		"SENSOR_SIMULATE=true",
		"SENSOR_VENDOR=atmotube",
		"SCAN_TIMEOUT=10s",
		"MQTT_BROKER="+brokerHost,
		fmt.Sprintf("MQTT_PORT=%d", brokerPort),
		"MQTT_CLIENT_ID=pmscan-gateway-e2e",
		"SQLITE_PATH="+sqlitePath,
		"CONTEXT_EVAL_INTERVAL=1s",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	readings := subscribeReadings(t, brokerHost, brokerPort)

	if err := cmd.Start(); err != nil {
		t.Fatalf("start gateway: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	select {
	case payload := <-readings:
		var reading struct {
			PM25        *float64 `json:"pm25_ugm3"`
			SourceLabel string   `json:"source_label"`
		}
		if err := json.Unmarshal(payload, &reading); err != nil {
			t.Fatalf("decode reading: %v\n%s", err, payload)
		}
		if reading.PM25 == nil {
			t.Fatalf("reading has no PM2.5: %s", payload)
		}
		if reading.SourceLabel == "" {
			t.Fatalf("reading has no source label: %s", payload)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("no reading published within 30s")
	}

	stopGateway(t, cmd)
}

func startMosquitto(t *testing.T) (string, int) {
	t.Helper()

	ctx := context.Background()
	port := nat.Port("1883/tcp")

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2",
		ExposedPorts: []string{string(port)},
		// Default config rejects remote clients; allow anonymous for the test.
		Entrypoint: []string{"sh", "-c"},
		Cmd: []string{
			"printf 'listener 1883\\nallow_anonymous true\\n' > /mosquitto/config/mosquitto.conf && " +
				"exec mosquitto -c /mosquitto/config/mosquitto.conf",
		},
		WaitingFor: wait.ForListeningPort(port).WithStartupTimeout(30 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start mosquitto container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}

	return host, mapped.Int()
}

func subscribeReadings(t *testing.T, host string, port int) <-chan []byte {
	t.Helper()

	readings := make(chan []byte, 16)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", host, port))
	opts.SetClientID("pmscan-e2e-subscriber")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		t.Fatalf("subscriber connect: %v", token.Error())
	}
	t.Cleanup(func() { client.Disconnect(250) })

	token := client.Subscribe("sensors/+/readings", 1, func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case readings <- msg.Payload():
		default:
		}
	})
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		t.Fatalf("subscribe: %v", token.Error())
	}

	return readings
}

func repoRootPath(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	repo := filepath.Clean(filepath.Join(wd, repoRootRel))
	if _, err := os.Stat(filepath.Join(repo, "go.mod")); err != nil {
		t.Fatalf("repo root %q does not contain go.mod: %v", repo, err)
	}

	return repo
}

func buildBinary(t *testing.T, repoRoot string) string {
	t.Helper()

	tmp := t.TempDir()
	out := filepath.Join(tmp, "pmscan-gateway")

	build := exec.Command("go", "build", "-o", out, mainPkgRel)
	build.Dir = repoRoot
	build.Env = os.Environ()

	b, err := build.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(b))
	}

	return out
}

func stopGateway(t *testing.T, cmd *exec.Cmd) {
	t.Helper()

	_ = cmd.Process.Signal(syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		t.Fatalf("gateway did not exit in time")
	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				t.Fatalf("gateway exited non-zero: %v", err)
			}
			t.Fatalf("gateway wait error: %v", err)
		}
	}
}

// Package runtime manages the isolated rendering contexts as Docker
// containers running a headless renderer image. Each container serves one
// (scenario, channel) pair and dials back into the engine's websocket
// endpoint.
package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/pixelclass/render-judge/internal/config"
	"github.com/pixelclass/render-judge/internal/levels"
)

// Container labels used to find renderers this engine owns.
const (
	labelManaged  = "render-judge.managed"
	labelScenario = "render-judge.scenario"
	labelChannel  = "render-judge.channel"
	labelInstance = "render-judge.instance"
	labelStarted  = "render-judge.started"
)

// Renderer describes one managed renderer container.
type Renderer struct {
	ContainerID string
	ScenarioID  string
	Channel     string
	Instance    string
	StartedAt   time.Time
}

// Manager launches and stops renderer containers via the Docker API.
type Manager struct {
	docker *client.Client
	config config.RuntimeConfig
}

// NewManager creates a Docker-backed runtime manager.
func NewManager(cfg config.RuntimeConfig) (*Manager, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost(cfg.DockerHost),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Manager{docker: cli, config: cfg}, nil
}

// Ping checks Docker connectivity.
func (m *Manager) Ping(ctx context.Context) error {
	if _, err := m.docker.Ping(ctx); err != nil {
		return fmt.Errorf("docker ping failed: %w", err)
	}
	return nil
}

// Launch creates and starts a renderer container for one channel instance.
// The renderer learns its scenario, channel name and viewport from env vars
// and connects back to EngineWSURL on start-up.
func (m *Manager) Launch(ctx context.Context, scenario levels.Scenario, channelName, instance string) (string, error) {
	if err := m.pullImage(ctx, m.config.RendererImage); err != nil {
		return "", fmt.Errorf("failed to pull renderer image: %w", err)
	}

	containerName := fmt.Sprintf("renderer-%s-%s-%s", scenario.ID, channelName, instance)

	env := []string{
		fmt.Sprintf("ENGINE_WS_URL=%s", m.config.EngineWSURL),
		fmt.Sprintf("SCENARIO_ID=%s", scenario.ID),
		fmt.Sprintf("CHANNEL_NAME=%s", channelName),
		fmt.Sprintf("CHANNEL_INSTANCE=%s", instance),
		fmt.Sprintf("VIEWPORT_WIDTH=%d", scenario.Dimensions.Width),
		fmt.Sprintf("VIEWPORT_HEIGHT=%d", scenario.Dimensions.Height),
	}

	labels := map[string]string{
		labelManaged:  "true",
		labelScenario: scenario.ID,
		labelChannel:  channelName,
		labelInstance: instance,
		labelStarted:  time.Now().UTC().Format(time.RFC3339),
	}

	// Remote debugging port, only reachable inside the renderer network.
	exposedPorts := nat.PortSet{
		nat.Port(fmt.Sprintf("%d/tcp", m.config.DebugPort)): struct{}{},
	}

	containerConfig := &container.Config{
		Image:        m.config.RendererImage,
		Env:          env,
		ExposedPorts: exposedPorts,
		Labels:       labels,
	}

	hostConfig := &container.HostConfig{
		NetworkMode: container.NetworkMode(m.config.Network),
		AutoRemove:  false,
		Resources: container.Resources{
			Memory: m.config.MemoryLimitBytes,
		},
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyDisabled,
		},
	}

	resp, err := m.docker.ContainerCreate(ctx, containerConfig, hostConfig, &network.NetworkingConfig{}, nil, containerName)
	if err != nil {
		return "", fmt.Errorf("failed to create renderer container: %w", err)
	}

	if err := m.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = m.docker.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("failed to start renderer container: %w", err)
	}

	slog.Info("renderer launched",
		"scenario", scenario.ID,
		"channel", channelName,
		"instance", instance,
		"container", resp.ID[:12],
	)

	return resp.ID, nil
}

// pullImage pulls the renderer image according to the pull policy.
func (m *Manager) pullImage(ctx context.Context, imageName string) error {
	if m.config.PullPolicy == "never" {
		return nil
	}

	_, _, err := m.docker.ImageInspectWithRaw(ctx, imageName)
	if err == nil && m.config.PullPolicy == "if-not-present" {
		return nil
	}

	slog.Info("pulling renderer image", "image", imageName)
	out, err := m.docker.ImagePull(ctx, imageName, types.ImagePullOptions{})
	if err != nil {
		return err
	}
	defer out.Close()

	_, _ = io.Copy(io.Discard, out)
	return nil
}

// Stop stops and removes a renderer container.
func (m *Manager) Stop(ctx context.Context, containerID string) error {
	timeout := 10
	if err := m.docker.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		slog.Warn("failed to stop renderer container", "container", containerID, "error", err)
	}
	if err := m.docker.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove renderer container: %w", err)
	}
	return nil
}

// ListManaged returns all renderer containers this engine owns, running or
// not.
func (m *Manager) ListManaged(ctx context.Context) ([]Renderer, error) {
	f := filters.NewArgs()
	f.Add("label", labelManaged+"=true")

	containers, err := m.docker.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("failed to list renderer containers: %w", err)
	}

	out := make([]Renderer, 0, len(containers))
	for _, c := range containers {
		r := Renderer{
			ContainerID: c.ID,
			ScenarioID:  c.Labels[labelScenario],
			Channel:     c.Labels[labelChannel],
			Instance:    c.Labels[labelInstance],
		}
		if ts, err := time.Parse(time.RFC3339, c.Labels[labelStarted]); err == nil {
			r.StartedAt = ts
		}
		out = append(out, r)
	}
	return out, nil
}

// Close releases the Docker client.
func (m *Manager) Close() error {
	return m.docker.Close()
}

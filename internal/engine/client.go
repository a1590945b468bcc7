// Package engine wraps the Docker SDK behind the small surface the lifecycle
// manager needs: connect/health-check, start, inspect, kill, list images.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// Sentinel errors the caller can classify with errors.Is. Anything else from
// this package is an opaque engine failure.
var (
	// ErrDisconnected means no engine endpoint is configured or the client
	// never connected.
	ErrDisconnected = errors.New("engine: not connected")
	// ErrNotFound means the engine has no such container.
	ErrNotFound = errors.New("engine: container not found")
	// ErrImageNotFound means the requested image is not present on the engine.
	ErrImageNotFound = errors.New("engine: image not found")
	// ErrNoPublishedPort means the engine reports no host port for the
	// container's service port.
	ErrNoPublishedPort = errors.New("engine: no published port")
)

// cpuPeriod is the fixed CFS period base; the quota is expressed as a
// fraction of it.
const cpuPeriod = 100000

// StartSpec describes one container to create and start.
type StartSpec struct {
	Image        string
	Command      []string
	Env          map[string]string
	InternalPort int
	HostPort     int
	MemoryMB     int64   // 0 disables the memory cap
	CPU          float64 // fractional CPUs, 0 disables the quota
	Binds        []string
}

// Client is a swappable connection to one Docker engine endpoint. Connect
// replaces the handle wholesale; operations on a disconnected client fail
// with ErrDisconnected.
type Client struct {
	mu       sync.Mutex
	endpoint string
	api      *client.Client
}

// New returns a disconnected client for the given endpoint. An empty
// endpoint is valid: the client simply stays disconnected until settings
// provide one.
func New(endpoint string) *Client {
	return &Client{endpoint: endpoint}
}

// Connect dials the configured endpoint and verifies it with a ping. With an
// empty endpoint the client disconnects and returns nil.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.api != nil {
		c.api.Close()
		c.api = nil
	}
	if c.endpoint == "" {
		return nil
	}

	api, err := client.NewClientWithOpts(
		client.WithHost(c.endpoint),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return fmt.Errorf("engine: connect %s: %w", c.endpoint, err)
	}
	if _, err := api.Ping(ctx); err != nil {
		api.Close()
		return fmt.Errorf("engine: ping %s: %w", c.endpoint, err)
	}
	c.api = api
	return nil
}

// SetEndpoint replaces the endpoint for the next Connect. It does not dial.
func (c *Client) SetEndpoint(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoint = endpoint
}

// Connected reports whether a handle is established.
func (c *Client) Connected() bool {
	return c.handle() != nil
}

// Ping health-checks the current handle.
func (c *Client) Ping(ctx context.Context) bool {
	api := c.handle()
	if api == nil {
		return false
	}
	_, err := api.Ping(ctx)
	return err == nil
}

// Close releases the current handle.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api == nil {
		return nil
	}
	err := c.api.Close()
	c.api = nil
	return err
}

func (c *Client) handle() *client.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.api
}

// StartInstance creates and starts a detached container per spec. The
// container removes itself when it stops.
func (c *Client) StartInstance(ctx context.Context, spec StartSpec) (string, error) {
	api := c.handle()
	if api == nil {
		return "", ErrDisconnected
	}

	servicePort, err := nat.NewPort("tcp", strconv.Itoa(spec.InternalPort))
	if err != nil {
		return "", fmt.Errorf("engine: service port %d: %w", spec.InternalPort, err)
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	cfg := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Command,
		Env:          env,
		ExposedPorts: nat.PortSet{servicePort: struct{}{}},
	}
	hostCfg := &container.HostConfig{
		AutoRemove: true,
		Binds:      spec.Binds,
		PortBindings: nat.PortMap{
			servicePort: []nat.PortBinding{{
				HostIP:   "0.0.0.0",
				HostPort: strconv.Itoa(spec.HostPort),
			}},
		},
	}
	if spec.MemoryMB > 0 {
		hostCfg.Resources.Memory = spec.MemoryMB * 1024 * 1024
	}
	if spec.CPU > 0 {
		hostCfg.Resources.CPUQuota = int64(spec.CPU * cpuPeriod)
		hostCfg.Resources.CPUPeriod = cpuPeriod
	}

	created, err := api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrImageNotFound, spec.Image)
		}
		return "", fmt.Errorf("engine: create container: %w", err)
	}

	if err := api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		// An auto-remove container that failed to start may already be gone;
		// force-remove in case it lingers.
		api.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("engine: start container: %w", err)
	}
	return created.ID, nil
}

// PublishedPort asks the engine which host port it actually bound for the
// container's service port. The engine, not the allocator's probe, is
// authoritative.
func (c *Client) PublishedPort(ctx context.Context, id string) (int, error) {
	api := c.handle()
	if api == nil {
		return 0, ErrDisconnected
	}

	info, err := api.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return 0, fmt.Errorf("engine: inspect container: %w", err)
	}
	if info.NetworkSettings == nil {
		return 0, ErrNoPublishedPort
	}
	for _, bindings := range info.NetworkSettings.Ports {
		for _, binding := range bindings {
			if binding.HostPort == "" {
				continue
			}
			port, err := strconv.Atoi(binding.HostPort)
			if err != nil {
				continue
			}
			return port, nil
		}
	}
	return 0, ErrNoPublishedPort
}

// IsRunning reports whether the container is currently running. A container
// the engine no longer knows is simply not running.
func (c *Client) IsRunning(ctx context.Context, id string) (bool, error) {
	api := c.handle()
	if api == nil {
		return false, ErrDisconnected
	}

	info, err := api.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("engine: inspect container: %w", err)
	}
	return info.State != nil && info.State.Running, nil
}

// Kill stops the container with SIGKILL. A container that is already gone
// counts as success; auto-remove handles cleanup of the stopped container.
func (c *Client) Kill(ctx context.Context, id string) error {
	api := c.handle()
	if api == nil {
		return ErrDisconnected
	}

	if err := api.ContainerKill(ctx, id, "SIGKILL"); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("engine: kill container: %w", err)
	}
	return nil
}

// Images returns the sorted tag list of all images on the engine.
func (c *Client) Images(ctx context.Context) ([]string, error) {
	api := c.handle()
	if api == nil {
		return nil, ErrDisconnected
	}

	summaries, err := api.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("engine: list images: %w", err)
	}
	var tags []string
	for _, s := range summaries {
		for _, tag := range s.RepoTags {
			if tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	sort.Strings(tags)
	return tags, nil
}

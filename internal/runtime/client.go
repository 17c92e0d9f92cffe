// Package runtime wraps the Docker Engine API for Enclave sandbox operations.
// The daemon may be local (default socket), tcp://, or on a remote host
// reached over an SSH tunnel (ssh://user@host).
package runtime

import (
	"context"
	"fmt"
	"strings"

	dockerclient "github.com/docker/docker/client"

	"github.com/f9-o/enclave/internal/core/logger"
	"github.com/f9-o/enclave/pkg/errs"
	"github.com/f9-o/enclave/pkg/sshutil"
)

// Labels applied to every container Enclave provisions. The environment label
// is the anchor for recovery and the cleanup sweep.
const (
	LabelEnvironment = "enclave.environment"
	LabelType        = "enclave.type"
	LabelResource    = "enclave.resource" // compute | database
)

// Client wraps the Docker API client with Enclave-specific helpers.
type Client struct {
	docker *dockerclient.Client
	tunnel *sshutil.Tunnel // non-nil when the daemon is reached over SSH
	log    *logger.Logger
}

// NewClient creates a Docker API client for the given host endpoint.
// An empty host uses the environment / default socket; ssh:// hosts are
// reached by forwarding the remote daemon socket through an SSH tunnel.
func NewClient(host, sshKey, knownHosts string, log *logger.Logger) (*Client, error) {
	opts := []dockerclient.Opt{
		dockerclient.WithAPIVersionNegotiation(),
	}

	var tunnel *sshutil.Tunnel
	switch {
	case strings.HasPrefix(host, "ssh://"):
		t, err := sshutil.OpenTunnel(host, sshKey, knownHosts)
		if err != nil {
			return nil, errs.Wrap(err, errs.ErrRuntimeUnreachable, "runtime.tunnel").
				WithAdvice("Check the ssh:// host, key path and that your key is authorized on the remote")
		}
		tunnel = t
		opts = append(opts,
			dockerclient.WithHost("http://docker.remote"),
			dockerclient.WithDialContext(t.DialContext),
		)
	case host != "":
		opts = append(opts, dockerclient.WithHost(host))
	default:
		opts = append(opts, dockerclient.FromEnv)
	}

	dc, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		if tunnel != nil {
			_ = tunnel.Close()
		}
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Client{docker: dc, tunnel: tunnel, log: log}, nil
}

// Ping verifies daemon connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.docker.Ping(ctx); err != nil {
		return errs.Wrap(err, errs.ErrRuntimeUnreachable, "runtime.ping").
			WithAdvice("Is the Docker daemon running? Check runtime.host in enclave.yaml")
	}
	return nil
}

// Close releases the Docker API client and any SSH tunnel.
func (c *Client) Close() error {
	err := c.docker.Close()
	if c.tunnel != nil {
		if terr := c.tunnel.Close(); err == nil {
			err = terr
		}
	}
	return err
}

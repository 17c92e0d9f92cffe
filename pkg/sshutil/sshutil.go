// Package sshutil provides SSH client helpers for reaching a container
// runtime on a remote host (runtime.host: ssh://user@host).
package sshutil

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultPort is the standard SSH port.
const DefaultPort = 22

// ConnectTimeout is the default dial timeout for SSH connections.
const ConnectTimeout = 15 * time.Second

// RemoteDockerSocket is the Docker daemon socket path on the remote host.
const RemoteDockerSocket = "/var/run/docker.sock"

// ClientConfig builds an ssh.ClientConfig from a private key file.
// If knownHostsFile is non-empty, strict host key verification is enabled.
func ClientConfig(user, keyPath, knownHostsFile string) (*ssh.ClientConfig, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read key %q: %w", keyPath, err)
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	cfg := &ssh.ClientConfig{
		User:    user,
		Auth:    []ssh.AuthMethod{ssh.PublicKeys(signer)},
		Timeout: ConnectTimeout,
	}

	if knownHostsFile != "" {
		hostKeyCallback, err := knownhosts.New(knownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts %q: %w", knownHostsFile, err)
		}
		cfg.HostKeyCallback = hostKeyCallback
	} else {
		// Warn: insecure — only used for first-trust scenarios
		cfg.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec
	}

	return cfg, nil
}

// Dial establishes an SSH connection to addr (host:port) using cfg.
func Dial(addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %q: %w", addr, err)
	}
	return client, nil
}

// Tunnel is an established SSH connection used to forward Docker API traffic
// to the remote daemon socket.
type Tunnel struct {
	client *ssh.Client
}

// OpenTunnel parses an ssh:// URL (ssh://user@host[:port]) and connects.
// The private key defaults to ~/.ssh/id_ed25519; override with keyPath.
func OpenTunnel(rawURL, keyPath, knownHostsFile string) (*Tunnel, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "ssh" {
		return nil, fmt.Errorf("invalid ssh url %q", rawURL)
	}
	if u.User == nil || u.User.Username() == "" {
		return nil, fmt.Errorf("ssh url %q: user is required", rawURL)
	}

	if keyPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		keyPath = filepath.Join(home, ".ssh", "id_ed25519")
	}

	cfg, err := ClientConfig(u.User.Username(), keyPath, knownHostsFile)
	if err != nil {
		return nil, err
	}

	port := u.Port()
	if port == "" {
		port = fmt.Sprintf("%d", DefaultPort)
	}

	client, err := Dial(net.JoinHostPort(u.Hostname(), port), cfg)
	if err != nil {
		return nil, err
	}
	return &Tunnel{client: client}, nil
}

// DialContext forwards a connection to the remote Docker socket over the
// tunnel. Matches the signature the Docker API client expects for a custom
// dialer; network and addr from the client are ignored — every connection
// targets the remote daemon socket.
func (t *Tunnel) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := t.client.Dial("unix", RemoteDockerSocket)
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("forward to remote docker socket: %w", r.err)
		}
		return r.conn, nil
	}
}

// Close tears down the SSH connection.
func (t *Tunnel) Close() error {
	return t.client.Close()
}

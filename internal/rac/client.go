package rac

import (
	"context"
	"fmt"
	"strings"
)

// Normalized keys printed by the console.
const (
	KeyCluster   = "cluster"
	KeyInfobase  = "infobase"
	KeyUUID      = "uuid"
	KeyName      = "name"
	KeySession   = "session"
	KeyAppID     = "app_id"
	KeyStartedAt = "started_at"
	KeyUserName  = "user_name"
	KeyHost      = "host"
)

// ConnectionOptions identifies the administration server and credentials.
type ConnectionOptions struct {
	// Host is the administration server address (host[:port]).
	Host string

	// ClusterUser is the optional cluster administrator name.
	ClusterUser string

	// ClusterPassword is the optional cluster administrator password.
	ClusterPassword string
}

// Client issues typed console commands through a Runner.
type Client struct {
	runner Runner
	opts   ConnectionOptions
}

// NewClient creates a new console client.
func NewClient(runner Runner, opts ConnectionOptions) *Client {
	return &Client{runner: runner, opts: opts}
}

// ListClusters runs `cluster list`.
func (c *Client) ListClusters(ctx context.Context) ([]Record, error) {
	return c.query(ctx, []string{"cluster", "list"}, "")
}

// ListInfobases runs `infobase summary list` for a cluster.
func (c *Client) ListInfobases(ctx context.Context, clusterID string) ([]Record, error) {
	if strings.TrimSpace(clusterID) == "" {
		return nil, fmt.Errorf("cluster id is required")
	}
	return c.query(ctx, []string{"infobase", "summary", "list"}, clusterID)
}

// ListSessions runs `session list` for a cluster.
func (c *Client) ListSessions(ctx context.Context, clusterID string) ([]Record, error) {
	if strings.TrimSpace(clusterID) == "" {
		return nil, fmt.Errorf("cluster id is required")
	}
	return c.query(ctx, []string{"session", "list"}, clusterID)
}

// TerminateSession runs `session terminate`. The reason is shown to the
// disconnected user; double quotes are replaced because the console cannot
// take them inside an argument.
func (c *Client) TerminateSession(ctx context.Context, clusterID, sessionID, reason string) error {
	if strings.TrimSpace(clusterID) == "" {
		return fmt.Errorf("cluster id is required")
	}
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}

	args := []string{"session", "terminate", "--session=" + sessionID}
	if reason = SanitizeMessage(reason); reason != "" {
		args = append(args, "--error-message="+reason)
	}
	_, err := c.run(ctx, args, clusterID)
	return err
}

// SanitizeMessage prepares a user-visible message for the console command line.
func SanitizeMessage(message string) string {
	return strings.ReplaceAll(strings.TrimSpace(message), `"`, "'")
}

func (c *Client) query(ctx context.Context, command []string, clusterID string) ([]Record, error) {
	out, err := c.run(ctx, command, clusterID)
	if err != nil {
		return nil, err
	}
	return Decode(out), nil
}

func (c *Client) run(ctx context.Context, command []string, clusterID string) (string, error) {
	out, err := c.runner.Run(ctx, c.buildArgs(command, clusterID))
	if err != nil {
		return "", err
	}
	return out, nil
}

func (c *Client) buildArgs(command []string, clusterID string) []string {
	args := append([]string{}, command...)
	if clusterID != "" {
		args = append(args, "--cluster="+clusterID)
		if c.opts.ClusterUser != "" {
			args = append(args, "--cluster-user="+c.opts.ClusterUser)
			args = append(args, "--cluster-pwd="+c.opts.ClusterPassword)
		}
	}
	if host := strings.TrimSpace(c.opts.Host); host != "" {
		args = append(args, host)
	}
	return args
}

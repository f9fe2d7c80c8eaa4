package gitx

import (
	"fmt"
	"os/exec"
	"strings"
)

// Client runs git commands against one repository.
type Client struct {
	repoPath string
}

// NewClient creates a client rooted at repoPath.
func NewClient(repoPath string) *Client {
	return &Client{repoPath: repoPath}
}

func (c *Client) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = c.repoPath
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w (output: %s)",
			strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// IsRepo reports whether the path is inside a git repository.
func (c *Client) IsRepo() bool {
	_, err := c.run("rev-parse", "--git-dir")
	return err == nil
}

// IsClean reports whether the working tree has no uncommitted changes.
// Untracked files count as dirty; a half-finished workspace is exactly
// what the run gate exists to catch.
func (c *Client) IsClean() (bool, error) {
	output, err := c.run("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(output) == "", nil
}

// StatusSummary returns the porcelain status lines, for telling the
// operator what is dirty when a run refuses to start.
func (c *Client) StatusSummary() (string, error) {
	output, err := c.run("status", "--porcelain")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// Head returns the current commit hash.
func (c *Client) Head() (string, error) {
	output, err := c.run("rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// CurrentBranch returns the checked-out branch name, or "HEAD" when
// detached.
func (c *Client) CurrentBranch() (string, error) {
	output, err := c.run("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

package gitops

import (
	"os"
	"strings"

	"github.com/posprint/relkit/pkg/shell"
)

type Client struct {
	sh      *shell.Shell
	wd      string
	gitPath string
}

func WD(wd string) Option {
	return func(c *Client) {
		c.wd = wd
	}
}

func Commander(exec shell.Exec) Option {
	return func(c *Client) {
		c.sh = &shell.Shell{Exec: exec}
	}
}

type Option func(*Client)

func New(opt ...Option) *Client {
	c := &Client{}

	for _, o := range opt {
		o(c)
	}

	if c.sh == nil {
		c.sh = shell.New()
	}
	c.gitPath = "git"

	return c
}

// Status returns the porcelain status output, empty for a clean tree
func (c *Client) Status() (string, error) {
	stdout, _, err := c.capture("status", []string{"--porcelain"})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(stdout), nil
}

func (c *Client) IsClean() (bool, error) {
	status, err := c.Status()
	if err != nil {
		return false, err
	}
	return status == "", nil
}

func (c *Client) Add(files ...string) error {
	return c.git("add", files)
}

func (c *Client) Commit(msg string) error {
	return c.git("commit", []string{"-m", msg})
}

func (c *Client) Push(branch string) error {
	return c.git("push", []string{"origin", branch})
}

// TagExists reports whether the tag is already present locally
func (c *Client) TagExists(tag string) (bool, error) {
	stdout, _, err := c.capture("tag", []string{"-l", tag})
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(stdout) != "", nil
}

func (c *Client) TagAnnotated(tag, msg string) error {
	return c.git("tag", []string{"-a", tag, "-m", msg})
}

func (c *Client) PushTag(tag string) error {
	return c.git("push", []string{"origin", tag})
}

func (c *Client) DeleteTag(tag string) error {
	return c.git("tag", []string{"-d", tag})
}

func (c *Client) Head() (string, error) {
	stdout, _, err := c.capture("rev-parse", []string{"HEAD"})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(stdout), nil
}

func (c *Client) GetPushURL(name string) (string, error) {
	stdout, _, err := c.capture("remote", []string{"get-url", "--push", name})
	if err != nil {
		return "", err
	}
	return stdout, nil
}

// Repo parses "owner/repo" out of the origin push URL
func (c *Client) Repo() (string, error) {
	push, err := c.GetPushURL("origin")
	if err != nil {
		return "", err
	}
	p := strings.TrimSpace(push)
	p = strings.TrimSuffix(p, ".git")
	p = strings.TrimPrefix(p, "git@github.com:")
	p = strings.TrimPrefix(p, "https://github.com/")
	return p, nil
}

func (c *Client) git(cmd string, args []string) error {
	res := c.sh.Wait(&shell.Command{
		Name:   c.gitPath,
		Args:   append([]string{cmd}, args...),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Dir:    c.wd,
	})
	return res.Error
}

func (c *Client) capture(cmd string, args []string) (string, string, error) {
	res, err := c.sh.Capture(&shell.Command{
		Name: c.gitPath,
		Args: append([]string{cmd}, args...),
		Dir:  c.wd,
	})
	if res == nil {
		return "", "", err
	}
	return res.Stdout, res.Stderr, err
}

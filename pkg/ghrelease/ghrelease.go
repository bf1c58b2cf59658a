package ghrelease

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/go-github/v27/github"
	"golang.org/x/oauth2"
)

// Record is what gets submitted to the hosting platform for one release:
// the pushed tag it hangs off, a title, and the release notes.
type Record struct {
	TagName string
	Name    string
	Notes   string
}

type PublishError struct {
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publishing release: %v", e.Err)
}

// Publisher creates a hosting-platform release with its assets. The
// pipeline depends on this interface so tests can substitute a fake.
type Publisher interface {
	Publish(ctx context.Context, owner, repo string, rec Record, assetPaths []string) (string, error)
}

type Client struct {
	github *github.Client
}

func NewClient(ctx context.Context) *Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: os.Getenv("GITHUB_TOKEN")},
	)
	tc := oauth2.NewClient(ctx, ts)
	gc := github.NewClient(tc)

	return &Client{
		github: gc,
	}
}

// Publish creates the release for the already-pushed tag and uploads every
// asset, returning the release's URL.
func (c *Client) Publish(ctx context.Context, owner, repo string, rec Record, assetPaths []string) (string, error) {
	req := github.RepositoryRelease{
		TagName: &rec.TagName,
		Name:    &rec.Name,
		Body:    &rec.Notes,
	}

	rel, _, err := c.github.Repositories.CreateRelease(ctx, owner, repo, &req)
	if err != nil {
		return "", &PublishError{Err: err}
	}

	for _, p := range assetPaths {
		if err := c.uploadAsset(ctx, owner, repo, rel.GetID(), p); err != nil {
			return "", err
		}
	}

	return rel.GetHTMLURL(), nil
}

func (c *Client) uploadAsset(ctx context.Context, owner, repo string, releaseID int64, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &PublishError{Err: err}
	}
	defer f.Close()

	opt := &github.UploadOptions{Name: filepath.Base(path)}
	if _, _, err := c.github.Repositories.UploadReleaseAsset(ctx, owner, repo, releaseID, opt, f); err != nil {
		return &PublishError{Err: err}
	}

	return nil
}

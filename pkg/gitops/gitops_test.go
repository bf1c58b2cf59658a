package gitops

import (
	"testing"

	"github.com/posprint/relkit/pkg/shell"
)

func TestIsClean(t *testing.T) {
	expectations := map[shell.FakeInput]shell.FakeOutput{
		shell.NewFakeInput("git", []string{"status", "--porcelain"}, nil): {
			Stdout: "",
		},
	}

	c := New(Commander(shell.NewFake(expectations)))

	clean, err := c.IsClean()
	if err != nil {
		t.Fatal(err)
	}
	if !clean {
		t.Error("expected clean tree")
	}
}

func TestIsCleanDirty(t *testing.T) {
	expectations := map[shell.FakeInput]shell.FakeOutput{
		shell.NewFakeInput("git", []string{"status", "--porcelain"}, nil): {
			Stdout: " M main.py\n?? new_file.py\n",
		},
	}

	c := New(Commander(shell.NewFake(expectations)))

	clean, err := c.IsClean()
	if err != nil {
		t.Fatal(err)
	}
	if clean {
		t.Error("expected dirty tree")
	}
}

func TestTagExists(t *testing.T) {
	expectations := map[shell.FakeInput]shell.FakeOutput{
		shell.NewFakeInput("git", []string{"tag", "-l", "v1.2.16"}, nil): {
			Stdout: "v1.2.16\n",
		},
		shell.NewFakeInput("git", []string{"tag", "-l", "v1.2.17"}, nil): {
			Stdout: "",
		},
	}

	c := New(Commander(shell.NewFake(expectations)))

	exists, err := c.TagExists("v1.2.16")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("expected v1.2.16 to exist")
	}

	exists, err = c.TagExists("v1.2.17")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("expected v1.2.17 to not exist")
	}
}

func TestRepo(t *testing.T) {
	testcases := []struct {
		url      string
		expected string
	}{
		{url: "git@github.com:posprint/pos-printer.git\n", expected: "posprint/pos-printer"},
		{url: "https://github.com/posprint/pos-printer.git\n", expected: "posprint/pos-printer"},
	}

	for _, tc := range testcases {
		expectations := map[shell.FakeInput]shell.FakeOutput{
			shell.NewFakeInput("git", []string{"remote", "get-url", "--push", "origin"}, nil): {
				Stdout: tc.url,
			},
		}

		c := New(Commander(shell.NewFake(expectations)))

		repo, err := c.Repo()
		if err != nil {
			t.Fatal(err)
		}
		if repo != tc.expected {
			t.Errorf("unexpected repo for %q: expected=%s, got=%s", tc.url, tc.expected, repo)
		}
	}
}

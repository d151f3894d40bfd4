package gitops

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

// stubRunner records invocations and returns canned responses keyed by the
// first distinguishing argument sequence.
type stubRunner struct {
	calls     [][]string
	responses map[string]string
	errors    map[string]error
}

func newStubRunner() *stubRunner {
	return &stubRunner{
		responses: make(map[string]string),
		errors:    make(map[string]error),
	}
}

func (r *stubRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	key := strings.Join(args, " ")
	r.calls = append(r.calls, args)
	if err, ok := r.errors[key]; ok {
		return "", err
	}
	return r.responses[key], nil
}

func TestStatus_ParsesPorcelain(t *testing.T) {
	r := newStubRunner()
	r.responses["status --porcelain"] = " M src/app.ts\n?? new-file.txt"
	c := NewClientWithRunner(r)

	paths, err := c.Status(context.Background(), "/repo")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(paths) != 2 || paths[0] != "src/app.ts" || paths[1] != "new-file.txt" {
		t.Errorf("paths = %v", paths)
	}
}

func TestStatus_CleanTree(t *testing.T) {
	r := newStubRunner()
	c := NewClientWithRunner(r)

	paths, err := c.Status(context.Background(), "/repo")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("paths = %v, want empty", paths)
	}
}

func TestCommitExists(t *testing.T) {
	r := newStubRunner()
	r.errors["cat-file -e deadbeef^{commit}"] = fmt.Errorf("git cat-file: not a valid object")
	c := NewClientWithRunner(r)

	if c.CommitExists(context.Background(), "/repo", "deadbeef") {
		t.Error("missing commit reported as existing")
	}
	if !c.CommitExists(context.Background(), "/repo", "a1b2c3d") {
		t.Error("existing commit reported as missing")
	}
}

func TestCheckoutBranchAt_Args(t *testing.T) {
	r := newStubRunner()
	c := NewClientWithRunner(r)

	if err := c.CheckoutBranchAt(context.Background(), "/repo", "main", "a1b2c3d"); err != nil {
		t.Fatalf("CheckoutBranchAt: %v", err)
	}
	want := []string{"checkout", "-B", "main", "a1b2c3d"}
	got := r.calls[len(r.calls)-1]
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("args = %v, want %v", got, want)
	}
}

func TestHeadHash(t *testing.T) {
	r := newStubRunner()
	r.responses["rev-parse HEAD"] = "a1b2c3d4e5f67890"
	c := NewClientWithRunner(r)

	hash, err := c.HeadHash(context.Background(), "/repo")
	if err != nil {
		t.Fatalf("HeadHash: %v", err)
	}
	if hash != "a1b2c3d4e5f67890" {
		t.Errorf("hash = %q", hash)
	}
}

func TestCurrentBranch_Detached(t *testing.T) {
	r := newStubRunner()
	r.responses["rev-parse --abbrev-ref HEAD"] = "HEAD"
	c := NewClientWithRunner(r)

	branch, err := c.CurrentBranch(context.Background(), "/repo")
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "HEAD" {
		t.Errorf("branch = %q", branch)
	}
}

func TestRestorePaths_BestEffort(t *testing.T) {
	r := newStubRunner()
	r.errors["checkout -- missing.log"] = fmt.Errorf("git checkout: pathspec did not match")
	c := NewClientWithRunner(r)

	// Must not fail even when a path is untracked.
	c.RestorePaths(context.Background(), "/repo", []string{"missing.log", "dev.log"})
	if len(r.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(r.calls))
	}
}

func TestCommit_Error(t *testing.T) {
	r := newStubRunner()
	r.errors["commit -m msg"] = fmt.Errorf("git commit: exit status 1")
	c := NewClientWithRunner(r)

	if err := c.Commit(context.Background(), "/repo", "msg"); err == nil {
		t.Fatal("expected commit error")
	}
}

package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/odvcencio/mango/pkg/object"
	"github.com/odvcencio/mango/pkg/remote"
)

const helloID = "b6fc4c620b67d95f953a5c1c1230aaab5db5a1b0"

func TestParseRefSpec(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "create", input: "refs/heads/main::" + helloID, want: "refs/heads/main <null> " + helloID},
		{name: "delete", input: "refs/heads/main:" + helloID + ":", want: "refs/heads/main " + helloID + " <null>"},
		{name: "symbolic new", input: "HEAD::ref: refs/heads/main", want: "HEAD <null> ref: refs/heads/main"},
		{name: "missing fields", input: "refs/heads/main", wantErr: true},
		{name: "one colon", input: "refs/heads/main:" + helloID, wantErr: true},
		{name: "empty name", input: " ::" + helloID, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseRefSpec(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRefSpec(%q): %v", tc.input, err)
			}
			if s := fmt.Sprintf("%s %s %s", got.Name, show(got.Old), show(got.New)); s != tc.want {
				t.Fatalf("parseRefSpec(%q) = %q, want %q", tc.input, s, tc.want)
			}
		})
	}
}

func show(h *object.Hash) string {
	if h == nil {
		return "<null>"
	}
	return string(*h)
}

func TestParseKind(t *testing.T) {
	for _, k := range []string{"blob", "tree", "commit", "tag"} {
		if _, err := parseKind(k); err != nil {
			t.Fatalf("parseKind(%q): %v", k, err)
		}
	}
	if _, err := parseKind("entity"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestParseObjectID(t *testing.T) {
	if _, err := parseObjectID(helloID); err != nil {
		t.Fatalf("parseObjectID: %v", err)
	}
	for _, bad := range []string{"", "abc", strings.ToUpper(helloID)} {
		if _, err := parseObjectID(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

// writeConfig points a fresh fs blob store and sqlite ledger at a temp dir.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mango.toml")
	body := fmt.Sprintf(`[blobstore]
backend = "fs"
path = %q

[ledger]
backend = "sqlite"
dsn = %q

[log]
level = "error"
`, filepath.Join(dir, "blobs"), filepath.Join(dir, "ledger", "ledger.db"))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func runMango(t *testing.T, stdin []byte, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(bytes.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runMango(t, nil, args...)
	if err != nil {
		t.Fatalf("mango %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestHashObjectCmd(t *testing.T) {
	file := writeFile(t, "hello.txt", "hello")
	out := mustRun(t, "hash-object", file)
	if strings.TrimSpace(out) != helloID {
		t.Fatalf("hash-object = %q, want %s", out, helloID)
	}
	out = mustRun(t, "hash-object", "--kind", "tree", file)
	if strings.TrimSpace(out) == helloID {
		t.Fatal("kind must change the identifier")
	}
}

func TestPushThenRead(t *testing.T) {
	cfg := writeConfig(t)
	file := writeFile(t, "hello.txt", "hello")

	out := mustRun(t, "--config", cfg, "push", "--ref", "refs/heads/master::"+helloID, file)
	if out != "1 objects stored, 1 ref updates applied\n" {
		t.Fatalf("push output = %q", out)
	}

	out = mustRun(t, "--config", cfg, "refs")
	want := helloID + " refs/heads/master\n@refs/heads/master HEAD\n"
	if out != want {
		t.Fatalf("refs = %q, want %q", out, want)
	}

	if out := mustRun(t, "--config", cfg, "has", helloID); strings.TrimSpace(out) != helloID {
		t.Fatalf("has = %q", out)
	}
	if out := mustRun(t, "--config", cfg, "cat-object", helloID); out != "hello" {
		t.Fatalf("cat-object = %q", out)
	}
	if out := mustRun(t, "--config", cfg, "cat-object", "-t", helloID); out != "blob\n" {
		t.Fatalf("cat-object -t = %q", out)
	}
	if out := mustRun(t, "--config", cfg, "cat-object", "-s", helloID); out != "5\n" {
		t.Fatalf("cat-object -s = %q", out)
	}

	out = mustRun(t, "--config", cfg, "snapshots")
	if n := len(strings.Fields(out)); n != 1 {
		t.Fatalf("snapshots = %q, want one locator", out)
	}
}

func TestPushReplayConflicts(t *testing.T) {
	cfg := writeConfig(t)
	spec := "refs/heads/master::" + helloID

	mustRun(t, "--config", cfg, "push", "--ref", spec)
	_, err := runMango(t, nil, "--config", cfg, "push", "--ref", spec)
	if !errors.Is(err, remote.ErrRefConflict) {
		t.Fatalf("replayed push error = %v, want ErrRefConflict", err)
	}

	// Ref-only pushes write no snapshot.
	if out := mustRun(t, "--config", cfg, "snapshots"); out != "" {
		t.Fatalf("snapshots = %q, want none", out)
	}
}

func TestPushNothing(t *testing.T) {
	cfg := writeConfig(t)
	if _, err := runMango(t, nil, "--config", cfg, "push"); err == nil {
		t.Fatal("expected error for empty push")
	}
}

func TestHasMissingObject(t *testing.T) {
	cfg := writeConfig(t)
	if _, err := runMango(t, nil, "--config", cfg, "has", helloID); err == nil {
		t.Fatal("expected error for missing object")
	}
}

func TestReceiveFramedStream(t *testing.T) {
	cfg := writeConfig(t)
	obj := object.New(object.TypeBlob, []byte("hello"))
	id := obj.Hash()

	var stream bytes.Buffer
	fw := remote.NewFrameWriter(&stream)
	if err := fw.WriteProgress("sending 1 object"); err != nil {
		t.Fatalf("WriteProgress: %v", err)
	}
	if err := fw.WriteObject(obj); err != nil {
		t.Fatalf("WriteObject: %v", err)
	}
	if err := fw.WriteRef(remote.RefUpdate{Name: "refs/heads/master", New: &id}); err != nil {
		t.Fatalf("WriteRef: %v", err)
	}

	if _, err := runMango(t, stream.Bytes(), "--config", cfg, "receive"); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if out := mustRun(t, "--config", cfg, "cat-object", string(id)); out != "hello" {
		t.Fatalf("cat-object = %q", out)
	}
	out := mustRun(t, "--config", cfg, "refs")
	if !strings.HasPrefix(out, string(id)+" refs/heads/master\n") {
		t.Fatalf("refs = %q", out)
	}
}

func TestReceiveProducerError(t *testing.T) {
	cfg := writeConfig(t)
	var stream bytes.Buffer
	fw := remote.NewFrameWriter(&stream)
	if err := fw.WriteError("upstream gave up"); err != nil {
		t.Fatalf("WriteError: %v", err)
	}
	_, err := runMango(t, stream.Bytes(), "--config", cfg, "receive")
	if err == nil || !strings.Contains(err.Error(), "upstream gave up") {
		t.Fatalf("receive error = %v, want producer message", err)
	}
}

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielpatrickdp/mrm-sim/internal/mrm"
	"github.com/danielpatrickdp/mrm-sim/internal/navigation"
	"github.com/danielpatrickdp/mrm-sim/internal/policy"
	"github.com/danielpatrickdp/mrm-sim/internal/remote"
	"github.com/danielpatrickdp/mrm-sim/internal/replay"
)

// isolateEnv clears the MRM_* overrides so the host environment cannot leak in.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"MRM_DB", "MRM_LOG_LEVEL", "MRM_OTEL_ENDPOINT", "MRM_POLICY_ADDR"} {
		t.Setenv(k, "")
	}
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionJSON(t *testing.T) {
	out, err := runCmd(t, "version", "--json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("parse %q: %v", out, err)
	}
	if got["version"] != version {
		t.Fatalf("expected version %q, got %q", version, got["version"])
	}
}

func TestSimulateJSON(t *testing.T) {
	isolateEnv(t)
	out, err := runCmd(t, "simulate", "--json", "--batch", "6", "--horizon", "4")
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	var got simulateOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Batch != 6 || got.Horizon != 4 || len(got.Returns) != 6 {
		t.Fatalf("unexpected output: %+v", got)
	}
	if got.Reparameterization != mrm.FullyReparameterized.String() {
		t.Fatalf("expected default reparameterization, got %q", got.Reparameterization)
	}
}

func TestSimulateRejectsBadReparam(t *testing.T) {
	isolateEnv(t)
	if _, err := runCmd(t, "simulate", "--reparam", "sometimes"); err == nil {
		t.Fatal("expected error for unknown reparameterization")
	}
}

func TestTrainExportReplay(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")

	out, err := runCmd(t, "train", "--json", "--db", db, "--epochs", "3", "--batch", "4", "--horizon", "5")
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	var trained map[string]string
	if err := json.Unmarshal([]byte(out), &trained); err != nil {
		t.Fatalf("parse train output %q: %v", out, err)
	}
	runID := trained["run_id"]
	if runID == "" || trained["status"] != "finished" {
		t.Fatalf("unexpected train output: %v", trained)
	}

	out, err = runCmd(t, "runs", "list", "--db", db)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	if !strings.Contains(out, runID) {
		t.Fatalf("run %s missing from list:\n%s", runID, out)
	}

	out, err = runCmd(t, "runs", "show", runID, "--db", db)
	if err != nil {
		t.Fatalf("runs show: %v", err)
	}
	if !strings.Contains(out, "best epoch:") {
		t.Fatalf("expected best epoch line:\n%s", out)
	}

	fixturePath := filepath.Join(dir, "fixture.json")
	if _, err := runCmd(t, "runs", "export-fixture", runID, "--db", db, "--out", fixturePath); err != nil {
		t.Fatalf("export-fixture: %v", err)
	}
	f, err := replay.LoadFixture(fixturePath)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if f.Epochs != 3 || len(f.Expected.Actions) != 3 || f.Expected.MeanReturn == nil {
		t.Fatalf("unexpected fixture: %+v", f)
	}

	out, err = runCmd(t, "replay", fixturePath, "--json")
	if err != nil {
		t.Fatalf("replay: %v\n%s", err, out)
	}
	var report map[string]any
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("parse replay output: %v", err)
	}
	if report["passed"] != true {
		t.Fatalf("expected replay to pass: %v", report)
	}
}

func TestRunsShowUnknown(t *testing.T) {
	isolateEnv(t)
	db := filepath.Join(t.TempDir(), "runs.db")
	if _, err := runCmd(t, "runs", "show", "no-such-run", "--db", db); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestExportRequiresOut(t *testing.T) {
	isolateEnv(t)
	db := filepath.Join(t.TempDir(), "runs.db")
	if _, err := runCmd(t, "runs", "export-fixture", "x", "--db", db); err == nil {
		t.Fatal("expected error without --out")
	}
}

func TestSimulateAgainstRemotePolicy(t *testing.T) {
	isolateEnv(t)
	nav := navigation.DefaultConfig()
	m, err := navigation.NewModel(nav)
	if err != nil {
		t.Fatalf("navigation: %v", err)
	}
	pol, err := policy.NewLinear(m.StateSize(), m.ActionSize(), policy.DefaultConfig())
	if err != nil {
		t.Fatalf("NewLinear: %v", err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	srv := remote.NewGRPCServer(remote.NewServer(pol, nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	out, err := runCmd(t, "simulate", "--json", "--batch", "3", "--horizon", "4", "--policy-addr", lis.Addr().String())
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	var got simulateOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got.Returns) != 3 {
		t.Fatalf("expected 3 returns, got %v", got.Returns)
	}

	// Random search needs tunable parameters, which a remote policy lacks.
	db := filepath.Join(t.TempDir(), "runs.db")
	if _, err := runCmd(t, "train", "--db", db, "--epochs", "1", "--batch", "2", "--horizon", "2",
		"--policy-addr", lis.Addr().String()); err == nil {
		t.Fatal("expected random search to reject a remote policy")
	}
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const seedYAML = `employees:
  - id: "4471"
    name: Dana
    last_name: Levi
    division: R&D
    videos:
      - start: "2025-01-05 09:00:00"
        finish: "2025-01-05 10:30:00"
  - id: "1001"
    name: Noa
    last_name: Cohen
    division: CISO
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInitSeedColumns(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "employees.db")
	seed := filepath.Join(dir, "employees.yaml")
	if err := os.WriteFile(seed, []byte(seedYAML), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	if out, err := execute(t, "init", "--db", db); err != nil || !strings.Contains(out, "Schema ready") {
		t.Fatalf("init: %v %q", err, out)
	}
	out, err := execute(t, "seed", "--db", db, "--file", seed)
	if err != nil || !strings.Contains(out, "Seeded 2 employees") {
		t.Fatalf("seed: %v %q", err, out)
	}
	out, err = execute(t, "columns", "--db", db)
	if err != nil {
		t.Fatalf("columns: %v", err)
	}
	cols := strings.Fields(out)
	if len(cols) != 12 || cols[0] != "EMPLOYEE_ID" {
		t.Fatalf("columns %v", cols)
	}
}

func TestSeedRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	seed := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(seed, []byte("employees:\n  - name: NoID\n    division: Ops\n"), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := execute(t, "seed", "--db", filepath.Join(dir, "x.db"), "--file", seed); err == nil {
		t.Fatal("expected seed to fail")
	}
}

func TestCheckSQL(t *testing.T) {
	out, err := execute(t, "check-sql", "SELECT EMPLOYEE_NAME FROM employees WHERE EMPLOYEE_ID = '4471'")
	if err != nil || strings.TrimSpace(out) != "OK" {
		t.Fatalf("safe statement: %v %q", err, out)
	}
	out, err = execute(t, "check-sql", "DELETE FROM employees")
	if err == nil || !strings.Contains(out, "REJECTED") {
		t.Fatalf("unsafe statement: %v %q", err, out)
	}
}

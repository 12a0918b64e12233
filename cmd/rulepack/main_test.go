package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the CLI with quiet logging and returns exit code, stdout and stderr
func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"--log-level", "error"}, args...)
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProcess_File(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "core.rules"), "R1 event.kind == \"login\"\n\nR2 true\n")

	code, stdout, stderr := execute(t, "process", path)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Result: Processed rule pack: "+path+" [file] 2 rules: R1, R2\n", stdout)
	assert.Empty(t, stderr)
}

func TestProcess_MissingFile(t *testing.T) {
	code, stdout, stderr := execute(t, "process", filepath.Join(t.TempDir(), "missing.rules"))
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Error: ")
	assert.Contains(t, stderr, "source not found")
}

func TestProcess_BadTags(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "core.rules"), "R1 true\n")

	code, _, stderr := execute(t, "process", path, "--type", "url")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid load type")

	code, _, stderr = execute(t, "process", path, "--mode", "explode")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid process mode")

	code, _, stderr = execute(t, "process", path, "--format", "yaml")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid output format")
}

func TestProcess_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.rules"), "B1 true\n")
	writeFile(t, filepath.Join(dir, "a.rules"), "A1 true\n")

	code, stdout, stderr := execute(t, "process", dir, "--type", "dir")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Result: Processed rule pack: "+dir+" [dir] 2 rules: A1, B1\n", stdout)
}

func TestProcess_JSON(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "core.rules"), "R1 true\n")

	code, stdout, _ := execute(t, "process", path, "--format", "json")
	require.Equal(t, 0, code)

	var resp ProcessResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, path, resp.Identifier)
	assert.Equal(t, "file", resp.LoadType)
	assert.Equal(t, "summarize", resp.Mode)
	assert.Equal(t, []string{"R1"}, resp.Rules)
	assert.Nil(t, resp.Error)
	assert.NotEmpty(t, resp.Duration)
}

func TestProcess_JSONError(t *testing.T) {
	code, stdout, stderr := execute(t, "process", filepath.Join(t.TempDir(), "missing.rules"), "--format", "json")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Error: ")

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "source not found", resp.Kind)
}

func TestProcess_NamedFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, filepath.Join(dir, "rulepack.toml"), `
[named]
core = "R1 true\n\nR2 false\n"
`)

	code, stdout, stderr := execute(t, "--config", cfg, "process", "core", "--type", "name")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Result: Processed rule pack: core [name] 2 rules: R1, R2\n", stdout)

	code, _, stderr = execute(t, "--config", cfg, "process", "missing", "--type", "name")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "source not found")
}

func TestProcess_ClassFromRegistry(t *testing.T) {
	dir := t.TempDir()
	classes := writeFile(t, filepath.Join(dir, "classes.toml"), `
[[pack]]
path = "games.COC7"

[[pack.rule]]
id = "sanity"
pattern = "state.sanity < 30"
`)
	cfg := writeFile(t, filepath.Join(dir, "rulepack.toml"), "[classes]\nfile = \""+filepath.ToSlash(classes)+"\"\n")

	code, stdout, stderr := execute(t, "--config", cfg, "process", "games.COC7", "--type", "class")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Result: Processed rule pack: games.COC7 [class] 1 rule: sanity\n", stdout)
}

func TestProcess_ValidateMode(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "core.rules"), "R1 true\n\nR2 event.kind ==\n")

	code, stdout, stderr := execute(t, "process", path, "--mode", "validate")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Result: Validated rule pack: "+path+" [file] 2 rules, 1 invalid: R2: ")
}

func TestBatch_MixedResults(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, filepath.Join(dir, "good.rules"), "R1 true\n")
	dup := writeFile(t, filepath.Join(dir, "dup.rules"), "R1 true\n\nR1 false\n")
	missing := filepath.Join(dir, "missing.rules")

	code, stdout, stderr := execute(t, "batch", good, dup, missing, "--concurrency", "2")
	assert.Equal(t, 1, code)
	assert.Equal(t, "Result: Processed rule pack: "+good+" [file] 1 rule: R1\n", stdout)
	assert.Contains(t, stderr, "duplicate rule id")
	assert.Contains(t, stderr, "source not found")
}

func TestBatch_JSON(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a.rules"), "A1 true\n")
	b := writeFile(t, filepath.Join(dir, "b.rules"), "B1 true\n")

	code, stdout, _ := execute(t, "batch", a, b, filepath.Join(dir, "missing.rules"), "--format", "json")
	assert.Equal(t, 1, code)

	var resp BatchResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Results, 3)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, []string{"A1"}, resp.Results[0].Rules)
	assert.Equal(t, []string{"B1"}, resp.Results[1].Rules)
	require.NotNil(t, resp.Results[2].Error)
	assert.Equal(t, "source not found", resp.Results[2].ErrorKind)
	for _, r := range resp.Results {
		assert.NotEmpty(t, r.RequestID)
	}
}

func TestEval_Facts(t *testing.T) {
	dir := t.TempDir()
	pack := writeFile(t, filepath.Join(dir, "core.rules"), "adult event.age >= 18.0\npriority=5\n\nminor event.age < 18.0\n\nvip user.tier == \"gold\"\npriority=1\n")
	facts := writeFile(t, filepath.Join(dir, "facts.json"), `{"event":{"age":21},"user":{"tier":"gold"}}`)

	code, stdout, stderr := execute(t, "eval", pack, "--facts", facts)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Result: Evaluated rule pack: "+pack+" [file] 2 of 3 rules matched\n")
	assert.Contains(t, stdout, "  adult (priority 5): matched\n")
	assert.Contains(t, stdout, "  minor (priority 0): no match\n")
	assert.Contains(t, stdout, "  vip (priority 1): matched\n")
}

func TestEval_JSON(t *testing.T) {
	dir := t.TempDir()
	pack := writeFile(t, filepath.Join(dir, "core.rules"), "later true\npriority=10\n\nstop true\nblock=true\n")
	facts := writeFile(t, filepath.Join(dir, "facts.json"), `{}`)

	code, stdout, _ := execute(t, "eval", pack, "--facts", facts, "--format", "json")
	require.Equal(t, 0, code)

	var resp EvaluateResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "stop", resp.Results[0].RuleID)
	assert.Equal(t, 1, resp.Matched)
}

func TestEval_BadFacts(t *testing.T) {
	dir := t.TempDir()
	pack := writeFile(t, filepath.Join(dir, "core.rules"), "R1 true\n")
	facts := writeFile(t, filepath.Join(dir, "facts.json"), `[1, 2]`)

	code, _, stderr := execute(t, "eval", pack, "--facts", facts)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid facts")
}

func TestStore_RequiresDatabase(t *testing.T) {
	t.Setenv("RULEPACK_STORE_DATABASE_URL", "")

	code, _, stderr := execute(t, "store", "list")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "no named store database configured")
}

func TestStore_AddRejectsUnparsableContent(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "dup.rules"), "R1 true\n\nR1 false\n")

	code, _, stderr := execute(t, "store", "add", "core", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "duplicate rule id")
}

func TestFactVariables(t *testing.T) {
	vars := factVariables(map[string]any{"user": 1, "event": 2, "account": 3})
	assert.Equal(t, []string{"event", "state", "account", "user"}, vars)
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/exprmatch/internal/store"
)

const (
	equalityFilter  = `{"$expr": {"$eq": ["$status", "active"]}}`
	partialOrFilter = `{"$expr": {"$or": [{"$eq": ["$a", 1]}, {"$gt": ["$b", 2]}]}}`
)

// writeFile writes content to name under dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// optimizeResponse mirrors CLIResponse with a typed payload.
type optimizeResponse struct {
	Status string         `json:"status"`
	Data   OptimizeResult `json:"data"`
	Error  *CLIError      `json:"error"`
}

func TestOptimizeCommand_Stdin(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewOptimizeCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(equalityFilter))
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, `"$match"`)
	assert.Contains(t, output, `"status": "active"`)
	assert.NotContains(t, output, "$expr")
}

func TestOptimizeCommand_File(t *testing.T) {
	path := writeFile(t, t.TempDir(), "filter.json", equalityFilter)

	buf := &bytes.Buffer{}
	cmd := NewOptimizeCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.NoError(t, err)

	var response optimizeResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Nil(t, response.Error)
	assert.Equal(t, "converted", response.Data.Kind)
	assert.JSONEq(t, `[{"$match":{"status":"active"}}]`, string(response.Data.Stages))
	assert.Empty(t, response.Data.ID)
}

func TestOptimizeCommand_MissingFile(t *testing.T) {
	cmd := NewOptimizeCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"/nonexistent/filter.json"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "input file not found")
}

func TestOptimizeCommand_MissingFileJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewOptimizeCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"/nonexistent/filter.json"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var response CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "error", response.Status)
	require.NotNil(t, response.Error)
	assert.Equal(t, ErrCodeNotFound, response.Error.Code)
}

func TestOptimizeCommand_InvalidDocumentsJSON(t *testing.T) {
	dir := t.TempDir()
	filter := writeFile(t, dir, "filter.json", equalityFilter)
	docs := writeFile(t, dir, "docs.json", `{"not": "an array"}`)

	buf := &bytes.Buffer{}
	cmd := NewOptimizeCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--verify", docs, filter})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var response CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	require.NotNil(t, response.Error)
	assert.Equal(t, ErrCodeInput, response.Error.Code)
	assert.Contains(t, response.Error.Message, "invalid documents")
}

func TestOptimizeCommand_InvalidFilter(t *testing.T) {
	cmd := NewOptimizeCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(`[1, 2]`))
	cmd.SetArgs([]string{"-"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid filter in <stdin>")
}

func TestOptimizeCommand_Policy(t *testing.T) {
	dir := t.TempDir()
	policy := writeFile(t, dir, "policy.cue", `or_split: "sound"`)
	filter := writeFile(t, dir, "filter.json", partialOrFilter)

	buf := &bytes.Buffer{}
	cmd := NewOptimizeCommand(&RootOptions{Format: "json", Config: policy})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{filter})

	err := cmd.Execute()
	require.NoError(t, err)

	var response optimizeResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "split", response.Data.Kind)
	assert.False(t, response.Data.Unsound)
	assert.JSONEq(t,
		`[{"$match":{"$or":[{"$or":[{"a":1}]},{"$expr":{"$gt":["$b",2]}}]}}]`,
		string(response.Data.Stages))
}

func TestOptimizeCommand_InvalidPolicy(t *testing.T) {
	dir := t.TempDir()
	policy := writeFile(t, dir, "policy.cue", `or_split: "sometimes"`)

	cmd := NewOptimizeCommand(&RootOptions{Format: "text", Config: policy})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(equalityFilter))
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load policy")
}

func TestOptimizeCommand_VerifyEquivalent(t *testing.T) {
	dir := t.TempDir()
	filter := writeFile(t, dir, "filter.json", equalityFilter)
	docs := writeFile(t, dir, "docs.json", `[{"status": "active"}, {"status": "closed"}, {"n": 1}]`)

	buf := &bytes.Buffer{}
	cmd := NewOptimizeCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--verify", docs, filter})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ Equivalent on 3 document(s)")
}

func TestOptimizeCommand_VerifyMismatch(t *testing.T) {
	dir := t.TempDir()
	filter := writeFile(t, dir, "filter.json", partialOrFilter)
	docs := writeFile(t, dir, "docs.json", `[{"a": 1, "b": 0}, {"a": 0, "b": 5}]`)

	buf := &bytes.Buffer{}
	cmd := NewOptimizeCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--verify", docs, filter})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var response optimizeResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "error", response.Status)
	require.NotNil(t, response.Error)
	assert.Equal(t, ErrCodeEquivalence, response.Error.Code)
	assert.True(t, response.Data.Unsound)
	assert.Equal(t, 2, response.Data.Verified)
	require.Len(t, response.Data.Mismatches, 1)

	m := response.Data.Mismatches[0]
	assert.Equal(t, 1, m.Index)
	assert.True(t, m.Original)
	assert.False(t, m.Rewritten)
	assert.JSONEq(t, `{"a":0,"b":5}`, string(m.Document))
}

func TestOptimizeCommand_VerifyMismatchText(t *testing.T) {
	dir := t.TempDir()
	filter := writeFile(t, dir, "filter.json", partialOrFilter)
	docs := writeFile(t, dir, "docs.json", `[{"a": 0, "b": 5}]`)

	buf := &bytes.Buffer{}
	cmd := NewOptimizeCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--verify", docs, filter})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ Rewrite differs on 1 of 1 document(s)")
	assert.Contains(t, buf.String(), `[0] {"a":0,"b":5} original=true rewritten=false`)
}

func TestOptimizeCommand_Record(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "rewrites.db")
	filter := writeFile(t, dir, "filter.json", equalityFilter)

	buf := &bytes.Buffer{}
	cmd := NewOptimizeCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, filter})

	err := cmd.Execute()
	require.NoError(t, err)

	var response optimizeResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	require.NotEmpty(t, response.Data.ID)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	rec, err := st.ReadRewrite(context.Background(), response.Data.ID)
	require.NoError(t, err)
	assert.Equal(t, "converted", string(rec.Kind))
	assert.Equal(t, int64(1), rec.Seq)
}

func TestOptimizeCommand_RecordTwice(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "rewrites.db")
	filter := writeFile(t, dir, "filter.json", equalityFilter)

	var ids []string
	for i := 0; i < 2; i++ {
		buf := &bytes.Buffer{}
		cmd := NewOptimizeCommand(&RootOptions{Format: "json"})
		cmd.SetOut(buf)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--db", dbPath, filter})
		require.NoError(t, cmd.Execute())

		var response optimizeResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
		ids = append(ids, response.Data.ID)
	}

	// Identical input under the same policy is one log entry.
	assert.Equal(t, ids[0], ids[1])

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	records, err := st.ListRewrites(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestOptimizeCommand_KeepsDecomposedText(t *testing.T) {
	decomposed := "e\u0301"

	tests := []struct {
		name   string
		filter string
		want   string
	}{
		{
			name:   "converted",
			filter: `{"$expr": {"$eq": ["$name", "` + decomposed + `"]}}`,
			want:   `"name": "` + decomposed + `"`,
		},
		{
			name:   "passthrough",
			filter: `{"nam` + decomposed + `": "caf` + decomposed + `"}`,
			want:   `"nam` + decomposed + `": "caf` + decomposed + `"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			cmd := NewOptimizeCommand(&RootOptions{Format: "text"})
			cmd.SetOut(buf)
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetIn(strings.NewReader(tt.filter))
			cmd.SetArgs([]string{})

			require.NoError(t, cmd.Execute())
			assert.Contains(t, buf.String(), tt.want)
			assert.NotContains(t, buf.String(), "\u00e9")
		})
	}
}

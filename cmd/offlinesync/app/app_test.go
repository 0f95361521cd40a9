package app

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type received struct {
	method string
	path   string
	body   string
}

func newAPI(t *testing.T) (*httptest.Server, chan received) {
	t.Helper()

	calls := make(chan received, 16)
	r := chi.NewRouter()
	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/api/tasks", func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		calls <- received{req.Method, req.URL.Path, string(body)}
		w.WriteHeader(http.StatusCreated)
	})
	r.Delete("/api/broken/{id}", func(w http.ResponseWriter, req *http.Request) {
		calls <- received{req.Method, req.URL.Path, ""}
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, calls
}

// setup points the CLI at a fresh database and the given server.
func setup(t *testing.T, baseURL string) {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	cfgPath := filepath.Join(dir, "config.toml")
	cfg := fmt.Sprintf(`
[database]
path = %q

[server]
base_url = %q
request_timeout = "2s"

[network]
probe_interval = "100ms"
probe_attempts = 1

[log]
level = "error"
`, filepath.Join(dir, "data", "offlinesync.db"), baseURL)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	t.Setenv("OFFLINESYNC_CONFIG", cfgPath)
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := NewRootCmd()
	resetFlags(root)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestEnqueueAndSync(t *testing.T) {
	srv, calls := newAPI(t)
	setup(t, srv.URL+"/api")

	_, err := run(t, "enqueue", "delete broken", "/broken/1", "-X", "DELETE", "-p", "low", "--max-retries", "1")
	require.NoError(t, err)
	id, err := run(t, "enqueue", "create task", "/tasks", "-p", "high", "-d", `{"title":"write tests"}`)
	require.NoError(t, err)
	require.NotEmpty(t, strings.TrimSpace(id))

	out, err := run(t, "queue", "list", "--format", "json")
	require.NoError(t, err)
	items := gjson.Parse(out).Array()
	require.Len(t, items, 2)
	assert.Equal(t, "high", items[0].Get("priority").String())
	assert.Equal(t, "/broken/1", items[1].Get("endpoint").String())

	out, err = run(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "succeeded: 1, failed: 1")

	first := <-calls
	assert.Equal(t, "/api/tasks", first.path)
	assert.JSONEq(t, `{"title":"write tests"}`, first.body)
	second := <-calls
	assert.Equal(t, http.MethodDelete, second.method)

	out, err = run(t, "queue", "list", "--format", "json")
	require.NoError(t, err)
	assert.Empty(t, gjson.Parse(out).Array())

	out, err = run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "queued items:  0")
	assert.Contains(t, out, "offline mode:  false")
	assert.NotContains(t, out, "never")
}

func TestSyncOfflineKeepsQueue(t *testing.T) {
	srv, _ := newAPI(t)
	url := srv.URL
	srv.Close()
	setup(t, url)

	_, err := run(t, "enqueue", "create task", "/tasks", "-d", `{"n":1}`)
	require.NoError(t, err)

	out, err := run(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "offline: 1 item(s) remain queued")

	out, err = run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "offline mode:  true")
	assert.Contains(t, out, "last sync:     never")
}

func TestEnqueueValidation(t *testing.T) {
	setup(t, "http://localhost:1")

	_, err := run(t, "enqueue", "a", "/a", "-d", "{not json")
	require.Error(t, err)

	_, err = run(t, "enqueue", "a", "/a", "-X", "TRACE")
	require.Error(t, err)

	_, err = run(t, "enqueue", "a", "/a", "-p", "urgent")
	require.Error(t, err)
}

func TestCacheCommands(t *testing.T) {
	setup(t, "http://localhost:1")

	_, err := run(t, "cache", "put", "profile", `{"name":"ada","langs":["go","c"]}`)
	require.NoError(t, err)

	out, err := run(t, "cache", "get", "profile")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"ada","langs":["go","c"]}`, strings.TrimSpace(out))

	out, err = run(t, "cache", "get", "profile", "--path", "langs.0")
	require.NoError(t, err)
	assert.Equal(t, `"go"`, strings.TrimSpace(out))

	out, err = run(t, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "profile")
	assert.Contains(t, out, "1 item(s)")
	assert.Contains(t, out, "schema version 1")

	_, err = run(t, "cache", "clear")
	require.NoError(t, err)
	_, err = run(t, "cache", "get", "profile")
	require.ErrorContains(t, err, "cache miss")
}

func TestResetAndMigrate(t *testing.T) {
	setup(t, "http://localhost:1")

	_, err := run(t, "enqueue", "create", "/tasks")
	require.NoError(t, err)
	_, err = run(t, "cache", "put", "k", `1`)
	require.NoError(t, err)

	out, err := run(t, "reset")
	require.NoError(t, err)
	assert.NotContains(t, out, "removed")

	out, err = run(t, "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "removed 1 cache entries")

	out, err = run(t, "migrate", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version: 1")
}

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

// cliEnv runs the root command in-process against temporary directories.
type cliEnv struct {
	configDir string
	dataDir   string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	root := t.TempDir()
	return &cliEnv{
		configDir: filepath.Join(root, "config"),
		dataDir:   filepath.Join(root, "data"),
	}
}

func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config-dir", e.configDir, "--data-dir", e.dataDir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, "", args...)
	require.NoError(t, err, "clusterstore %s", strings.Join(args, " "))
	return out
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitSuccess},
		{"not found", errors.New(errors.NotFound, "x"), exitUserError},
		{"wrapped invalid path", errors.Wrap(errors.New(errors.InvalidPath, "x"), "get"), exitUserError},
		{"illegal mutation", errors.New(errors.IllegalMutation, "x"), exitUserError},
		{"configuration", errors.New(errors.Configuration, "x"), exitUserError},
		{"pool exhausted", errors.New(errors.PoolExhausted, "x"), exitSysError},
		{"connection", errors.New(errors.ConnectionError, "x"), exitSysError},
		{"uncoded", os.ErrPermission, exitSysError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestDecodeRecord(t *testing.T) {
	rec, err := decodeRecord(types.PropertyCluster, []byte(`{"name":"Type","value":"Doc","mutable":true}`))
	require.NoError(t, err)
	assert.Equal(t, &types.Property{Name: "Type", Value: "Doc", Mutable: true}, rec)

	_, err = decodeRecord(types.PropertyCluster, []byte(`{"name":`))
	assert.True(t, errors.Is(err, errors.InvalidData))

	_, err = decodeRecord(types.ClusterType("Bogus"), []byte(`{}`))
	assert.True(t, errors.Is(err, errors.InvalidPath))
}

func TestParseProps(t *testing.T) {
	props, err := parseProps([]string{"Type=Doc", "Note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, []types.Property{{Name: "Type", Value: "Doc"}, {Name: "Note", Value: "a=b"}}, props)

	_, err = parseProps([]string{"=x"})
	assert.True(t, errors.Is(err, errors.InvalidData))
	_, err = parseProps([]string{"Type"})
	assert.True(t, errors.Is(err, errors.InvalidData))
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		v, err := loadConfig(filepath.Join(t.TempDir(), "missing"))
		require.NoError(t, err)
		cfg, err := decodeConfig(v)
		require.NoError(t, err)
		assert.Equal(t, types.DefaultConfig(), cfg)
	})

	t.Run("file and environment", func(t *testing.T) {
		dir := t.TempDir()
		yaml := "dialect: sqlite\nread_only: true\nname_length: 32\nacquire_timeout: 5s\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, configFileExt), []byte(yaml), 0o644))
		t.Setenv("CLUSTERSTORE_MAX_POOL_SIZE", "7")

		v, err := loadConfig(dir)
		require.NoError(t, err)
		cfg, err := decodeConfig(v)
		require.NoError(t, err)
		assert.True(t, cfg.ReadOnly)
		assert.Equal(t, 32, cfg.NameLength)
		assert.Equal(t, 5*time.Second, cfg.AcquireTimeout)
		assert.Equal(t, 7, cfg.MaxPoolSize)
	})

	t.Run("malformed file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, configFileExt), []byte("dialect: [\n"), 0o644))
		_, err := loadConfig(dir)
		assert.True(t, errors.Is(err, errors.Configuration))
	})
}

func TestInitWritesConfigOnce(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun(t, "init")
	assert.Contains(t, out, "clusterstore initialized")

	path := filepath.Join(env.configDir, configFileExt)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, defaultConfigYAML, string(data))

	require.NoError(t, os.WriteFile(path, []byte("dialect: sqlite\nname_length: 40\n"), 0o644))
	env.mustRun(t, "init")
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name_length: 40")
}

func TestClusterCommands(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "init")
	id := uuid.New().String()

	env.mustRun(t, "register", id, "--address", "host:1")

	out, err := env.run(t, `{"name":"Type","value":"Doc"}`, "put", id, "Property")
	require.NoError(t, err)
	assert.Contains(t, out, "stored Property/Type")

	out = env.mustRun(t, "get", id, "Property/Type")
	var p types.Property
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, types.Property{Name: "Type", Value: "Doc"}, p)

	out = env.mustRun(t, "--json", "list", id)
	var clusters []string
	require.NoError(t, json.Unmarshal([]byte(out), &clusters))
	assert.Equal(t, []string{"Property"}, clusters)

	_, err = env.run(t, `{"name":"Type","value":"Other"}`, "put", id, "Property", "--insert")
	assert.True(t, errors.Is(err, errors.Conflict))
	assert.Equal(t, exitUserError, exitCode(err))

	outcome := `{"schemaName":"Foo","schemaVersion":0,"eventId":1,"data":"<a/>"}`
	_, err = env.run(t, outcome, "put", id, "Outcome")
	require.NoError(t, err)
	_, err = env.run(t, outcome, "put", id, "Outcome")
	assert.True(t, errors.Is(err, errors.IllegalMutation))

	out = env.mustRun(t, "--json", "delete", id, "Property")
	assert.JSONEq(t, `{"rows":1}`, out)

	_, err = env.run(t, "", "get", id, "Property/Type")
	assert.True(t, errors.Is(err, errors.NotFound))

	out = env.mustRun(t, "--json", "erase", id)
	assert.JSONEq(t, `{"rows":2}`, out)
}

func TestArgumentErrors(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "", "get", "not-a-uuid", "Property/Type")
	assert.True(t, errors.Is(err, errors.InvalidData))

	_, err = env.run(t, "", "get", uuid.New().String())
	assert.True(t, errors.Is(err, errors.InvalidData))
	assert.Equal(t, exitUserError, exitCode(err))

	_, err = env.run(t, "", "get", uuid.New().String(), "Bogus/x")
	assert.Equal(t, exitUserError, exitCode(err))

	_, err = env.run(t, "", "export", t.TempDir(), "--from", "yesterday")
	assert.True(t, errors.Is(err, errors.InvalidData))
}

func TestPathCommands(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "init")
	id := uuid.New().String()
	env.mustRun(t, "register", id)
	_, err := env.run(t, `{"name":"Type","value":"Doc"}`, "put", id, "Property")
	require.NoError(t, err)

	env.mustRun(t, "path", "add", "/domain/docs/report", "--target", id)
	env.mustRun(t, "path", "add", "/domain/empty")

	out := env.mustRun(t, "path", "resolve", "/domain/docs/report")
	assert.Equal(t, id+"\n", out)

	_, err = env.run(t, "", "path", "resolve", "/domain/empty")
	assert.True(t, errors.Is(err, errors.NotFound))

	var nodes []types.NamingNode
	out = env.mustRun(t, "--json", "path", "children", "/domain")
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	assert.Equal(t, []string{"/domain/docs", "/domain/empty"}, nodePaths(nodes))

	out = env.mustRun(t, "--json", "path", "search", "/domain", "report", "--exact")
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	assert.Equal(t, []string{"/domain/docs/report"}, nodePaths(nodes))

	out = env.mustRun(t, "--json", "path", "search", "/domain", "--prop", "Type=Doc")
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	assert.Equal(t, []string{"/domain/docs/report"}, nodePaths(nodes))

	out = env.mustRun(t, "--json", "path", "aliases", id)
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	assert.Equal(t, []string{"/domain/docs/report"}, nodePaths(nodes))

	_, err = env.run(t, "", "path", "rm", "/domain/docs")
	assert.True(t, errors.Is(err, errors.IllegalMutation))

	out = env.mustRun(t, "--json", "path", "rm", "/domain", "--tree")
	assert.JSONEq(t, `{"rows":4}`, out)
}

func TestRoleCommands(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "init")
	jim := uuid.New().String()
	env.mustRun(t, "register", jim, "--agent", "jim", "--password", "secret")

	env.mustRun(t, "role", "create", "/role/User")
	env.mustRun(t, "role", "create", "/role/User/Clerk", "--joblist", "--perm", "Doc:*:read", "--perm", "Doc:*:write")

	_, err := env.run(t, "", "role", "create", "/role/User")
	assert.True(t, errors.Is(err, errors.Conflict))
	_, err = env.run(t, "", "role", "create", "/role/Ghost/Clerk")
	assert.True(t, errors.Is(err, errors.NotFound))

	var role types.Role
	out := env.mustRun(t, "--json", "role", "show", "Clerk")
	require.NoError(t, json.Unmarshal([]byte(out), &role))
	assert.Equal(t, types.Role{Path: "/role/User/Clerk", JobList: true, Permissions: []string{"Doc:*:read", "Doc:*:write"}}, role)

	env.mustRun(t, "role", "grant", jim, "/role/User/Clerk")
	_, err = env.run(t, "", "role", "grant", uuid.New().String(), "/role/User/Clerk")
	assert.True(t, errors.Is(err, errors.NotFound))

	var agents []string
	out = env.mustRun(t, "--json", "role", "agents", "/role/User/Clerk")
	require.NoError(t, json.Unmarshal([]byte(out), &agents))
	assert.Equal(t, []string{jim}, agents)

	var roles []types.Role
	out = env.mustRun(t, "--json", "role", "of", jim)
	require.NoError(t, json.Unmarshal([]byte(out), &roles))
	assert.Equal(t, []types.Role{role}, roles)

	_, err = env.run(t, "", "role", "rm", "/role/User")
	assert.True(t, errors.Is(err, errors.IllegalMutation))

	env.mustRun(t, "role", "revoke", jim, "/role/User/Clerk")
	_, err = env.run(t, "", "role", "revoke", jim, "/role/User/Clerk")
	assert.True(t, errors.Is(err, errors.NotFound))

	env.mustRun(t, "role", "rm", "/role/User/Clerk")
	_, err = env.run(t, "", "role", "show", "/role/User/Clerk")
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestExportImportCommands(t *testing.T) {
	src := newCLIEnv(t)
	src.mustRun(t, "init")
	id := uuid.New().String()
	src.mustRun(t, "register", id, "--agent", "alice", "--password", "secret")
	src.mustRun(t, "path", "add", "/agents/alice", "--target", id)

	dump := t.TempDir()
	var counts map[string]int64
	out := src.mustRun(t, "--json", "export", dump)
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	assert.Equal(t, int64(1), counts["ITEM"])
	assert.Equal(t, int64(1), counts["ITEM_PROPERTY"])
	assert.Equal(t, int64(2), counts["DOMAIN_PATH"])

	dst := newCLIEnv(t)
	dst.mustRun(t, "init")
	out = dst.mustRun(t, "--json", "import", dump, "--batch", "1")
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	assert.Equal(t, int64(2), counts["DOMAIN_PATH"])

	assert.Equal(t, id+"\n", dst.mustRun(t, "path", "resolve", "/agents/alice"))

	out = dst.mustRun(t, "stats")
	assert.Contains(t, out, "DOMAIN_PATH")
	assert.Contains(t, out, "sqlite")
}

func nodePaths(nodes []types.NamingNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Path
	}
	return out
}

package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
jwt:
  access_secret: a-secret
  refresh_secret: r-secret
  access_ttl: 10m
authorization:
  enabled_features: [obligated-debt]
  override_role: "R&D-Lightstage"
users:
  - id: "1"
    username: john
    password: changeme
    roles: [IL-LM-SUP]
`

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	s, err := Parse([]byte(baseYAML), noEnv)
	require.NoError(t, err)

	assert.Equal(t, ":8080", s.Server.Addr)
	assert.Equal(t, DriverMemory, s.Store.Driver)
	assert.Equal(t, 10*time.Minute, s.JWT.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, s.JWT.RefreshTTL)
	assert.Equal(t, "gg", s.Store.RedisPrefix)

	cfg := s.EngineConfig()
	assert.Equal(t, []byte("a-secret"), cfg.JWT.AccessSecret)
	assert.Equal(t, []string{"obligated-debt"}, cfg.Authorization.EnabledFeatures)
	assert.Equal(t, "R&D-Lightstage", cfg.Authorization.OverrideRole)
	assert.True(t, cfg.Password.UpgradeOnLogin)
}

func TestParseEnvOverrides(t *testing.T) {
	s, err := Parse([]byte(baseYAML), envMap(map[string]string{
		"GOGUARD_ACCESS_SECRET":      "env-access",
		"GOGUARD_ENABLED_FEATURES":   "a, b,,c",
		"GOGUARD_STORE_DRIVER":       "redis",
		"GOGUARD_MAX_LOGIN_ATTEMPTS": "3",
		"GOGUARD_STORE_TIMEOUT":      "750ms",
	}))
	require.NoError(t, err)

	assert.Equal(t, "env-access", s.JWT.AccessSecret)
	assert.Equal(t, []string{"a", "b", "c"}, s.Authorization.EnabledFeatures)
	assert.Equal(t, DriverRedis, s.Store.Driver)
	assert.Equal(t, 3, s.Security.MaxLoginAttempts)
	assert.Equal(t, 15*time.Minute, s.Security.LoginCooldown)
	assert.Equal(t, 750*time.Millisecond, s.Store.Timeout)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]struct {
		yaml string
		env  map[string]string
	}{
		"missing secrets":     {yaml: "store: {driver: memory}\n"},
		"unknown key":         {yaml: baseYAML + "bogus: 1\n"},
		"unknown driver":      {yaml: baseYAML, env: map[string]string{"GOGUARD_STORE_DRIVER": "mongo"}},
		"postgres without db": {yaml: baseYAML, env: map[string]string{"GOGUARD_STORE_DRIVER": "postgres"}},
		"bad duration":        {yaml: baseYAML, env: map[string]string{"GOGUARD_ACCESS_TTL": "soon"}},
		"bad attempts":        {yaml: baseYAML, env: map[string]string{"GOGUARD_MAX_LOGIN_ATTEMPTS": "-1"}},
		"same listener":       {yaml: baseYAML, env: map[string]string{"GOGUARD_ADDR": ":1", "GOGUARD_METRICS_ADDR": ":1"}},
		"user without secret": {yaml: baseYAML + "  - username: ghost\n"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml), envMap(tc.env))
			assert.Error(t, err)
		})
	}
}

func TestParseMissingSecretsIsConfigError(t *testing.T) {
	_, err := Parse([]byte("store: {driver: memory}\n"), noEnv)
	require.Error(t, err)
	assert.True(t, errors.Is(err, goGuard.ErrConfig))
}

func TestSeedRecords(t *testing.T) {
	s, err := Parse([]byte(baseYAML+"  - username: maria\n    password_hash: \"$argon2id$stub\"\n"), noEnv)
	require.NoError(t, err)

	recs, err := s.SeedRecords(func(p string) (string, error) { return "hashed:" + p, nil })
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "1", recs[0].ID)
	assert.Equal(t, "hashed:changeme", recs[0].PasswordHash)
	assert.Equal(t, []string{"IL-LM-SUP"}, recs[0].Roles)
	assert.NotEmpty(t, recs[1].ID)
	assert.Equal(t, "$argon2id$stub", recs[1].PasswordHash)

	_, err = s.SeedRecords(func(string) (string, error) { return "", errors.New("too short") })
	assert.Error(t, err)
}

func TestLoadAndPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	t.Setenv(EnvName, "test")
	t.Setenv("GOGUARD_REFRESH_SECRET", "from-env")

	path := Path(dir)
	assert.Equal(t, filepath.Join(dir, "config", "config.test.yaml"), path)
	require.NoError(t, os.WriteFile(path, []byte(baseYAML), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", s.JWT.RefreshSecret)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestDevConfigLoads(t *testing.T) {
	s, err := Load(filepath.Join("..", "..", "config", "config.dev.yaml"))
	require.NoError(t, err)
	assert.Len(t, s.Users, 2)
	assert.Equal(t, ":9090", s.Server.MetricsAddr)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestFromMap_Defaults(t *testing.T) {
	t.Parallel()

	c, err := FromMap(map[string]string{})
	require.NoError(t, err)

	require.Equal(t, "postgres", c.DB.Kind)
	require.Equal(t, "refresh", c.Import.PlanConflict)
	require.Equal(t, "bulk", c.Import.ContactPolicy)
	require.EqualValues(t, 1, c.Import.StatusFallbackID)
	require.Equal(t, "none", c.Metrics.Backend)
	require.Equal(t, logrus.InfoLevel, c.LogrusLevel())
	require.Equal(t,
		"host=localhost port=5432 user=postgres dbname=tsmx password= sslmode=disable",
		c.DB.ConnectionString())
}

func TestConnectionString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		db   DatabaseOptions
		want string
	}{
		{
			name: "dsn override",
			db:   DatabaseOptions{Kind: "postgres", DSN: "postgres://u@h/db"},
			want: "postgres://u@h/db",
		},
		{
			name: "sqlite file",
			db:   DatabaseOptions{Kind: "sqlite", Name: "/tmp/import.db"},
			want: "/tmp/import.db",
		},
		{
			name: "sqlserver",
			db:   DatabaseOptions{Kind: "sqlserver", Host: "db", User: "sa", Password: "p@ss", Name: "tsmx"},
			want: "sqlserver://sa:p%40ss@db:1433?database=tsmx",
		},
		{
			name: "postgres explicit port",
			db:   DatabaseOptions{Kind: "postgres", Host: "pg", Port: "6543", User: "u", Name: "n", Password: "p", SSLMode: "require"},
			want: "host=pg port=6543 user=u dbname=n password=p sslmode=require",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.db.ConnectionString(); got != tt.want {
				t.Fatalf("ConnectionString()=%q want %q", got, tt.want)
			}
		})
	}
}

func TestFromMap_RejectsUnknownEnums(t *testing.T) {
	t.Parallel()

	bad := []map[string]string{
		{"DB_KIND": "oracle"},
		{"IMPORT_PLAN_CONFLICT": "merge"},
		{"IMPORT_CONTACT_POLICY": "sometimes"},
		{"IMPORT_STATUS_FALLBACK_ID": "-1"},
		{"METRICS_BACKEND": "statsd"},
		{"LOG_LEVEL": "chatty"},
		{"IMPORT_STATUS_FALLBACK_ID": "one"},
	}
	for _, environ := range bad {
		if _, err := FromMap(environ); err == nil {
			t.Fatalf("FromMap(%v) expected error", environ)
		}
	}
}

func TestFromMap_Overrides(t *testing.T) {
	t.Parallel()

	c, err := FromMap(map[string]string{
		"DB_KIND":               "sqlite",
		"DB_NAME":               "import.db",
		"IMPORT_PLAN_CONFLICT":  "keep",
		"IMPORT_CONTACT_POLICY": "per_row",
		"S3_PATH_STYLE":         "true",
		"LOG_LEVEL":             "debug",
	})
	require.NoError(t, err)
	require.Equal(t, "import.db", c.DB.Storage().DSN)
	require.Equal(t, "sqlite", c.DB.Storage().Kind)
	require.Equal(t, "keep", c.Import.PlanConflict)
	require.True(t, c.S3.PathStyle)
	require.Equal(t, logrus.DebugLevel, c.LogrusLevel())
}

// Not parallel: Load mutates the process environment.
func TestLoad_ReadsEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("IMPORT_JOB=from_file\nIMPORT_SHEET=Clientes\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("IMPORT_JOB")
		_ = os.Unsetenv("IMPORT_SHEET")
	})

	n, err := LoadEnv([]string{path, filepath.Join(dir, "missing.env")})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	c, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, "from_file", c.Import.Job)
	require.Equal(t, "Clientes", c.Import.Sheet)
}

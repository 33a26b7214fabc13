package table

import (
	"os"
	"path/filepath"
	"testing"

	"go.miragespace.co/sqlrepo/pool"
	"go.miragespace.co/sqlrepo/spec/store"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const usersConfig = `
version: 1
connection: app
tables:
  - name: users
    columns:
      name: text
      age: int
      score: REAL
      avatar: blob
`

func TestConfig(t *testing.T) {
	as := require.New(t)

	cfg, err := NewConfig(writeFile(t, "config.yaml", usersConfig))
	as.NoError(err)
	as.Equal("app", cfg.Connection)

	schema, err := cfg.Schema("users")
	as.NoError(err)
	// declaration order is kept, with the implicit id first
	as.Equal([]string{"id", "name", "age", "score", "avatar"}, schema.ColumnNames())
	col, ok := schema.Column("age")
	as.True(ok)
	as.Equal(store.Integer, col.Type)

	_, err = cfg.Schema("posts")
	as.Error(err)

	as.Len(cfg.Schemas(), 1)
}

func TestConfigDefaults(t *testing.T) {
	as := require.New(t)

	cfg, err := NewConfig(writeFile(t, "config.yaml", `
version: 1
tables:
  - name: notes
    columns:
      body: text
`))
	as.NoError(err)
	as.Equal(pool.MemoryName, cfg.Connection)
}

func TestConfigInvalid(t *testing.T) {
	as := require.New(t)

	cases := map[string]string{
		"version": `
version: 2
tables:
  - name: notes
    columns: {body: text}
`,
		"no tables": `
version: 1
`,
		"column type": `
version: 1
tables:
  - name: notes
    columns: {body: json}
`,
		"table name": `
version: 1
tables:
  - name: "notes; DROP TABLE x"
    columns: {body: text}
`,
		"duplicate table": `
version: 1
tables:
  - name: notes
    columns: {body: text}
  - name: notes
    columns: {title: text}
`,
		"connection": `
version: 1
connection: ../../etc/passwd
tables:
  - name: notes
    columns: {body: text}
`,
		"columns shape": `
version: 1
tables:
  - name: notes
    columns: [body]
`,
	}
	for name, content := range cases {
		_, err := NewConfig(writeFile(t, "config.yaml", content))
		as.Error(err, name)
	}

	_, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	as.Error(err)
}

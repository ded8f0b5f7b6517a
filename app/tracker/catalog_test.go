package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
		wantErr string
	}{
		{name: "list", content: "processes:\n  - Laser cut\n  - Welding\n", want: []string{"Laser cut", "Welding"}},
		{name: "trim and dedup", content: "processes:\n  - ' Lathe '\n  - Lathe\n  - ''\n  - lathe\n", want: []string{"Lathe", "lathe"}},
		{name: "empty list", content: "processes: []\n", wantErr: "has no processes"},
		{name: "broken yaml", content: "processes: [\n", wantErr: "failed to parse catalog"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "catalog.yml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			got, err := LoadCatalog(path)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("no path", func(t *testing.T) {
		got, err := LoadCatalog("")
		require.NoError(t, err)
		assert.Equal(t, DefaultProcesses, got)
		got[0] = "changed"
		assert.Equal(t, "Raw material order", DefaultProcesses[0], "defaults not shared")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yml"))
		assert.ErrorContains(t, err, "failed to read catalog")
	})
}

func TestDocumentSchema(t *testing.T) {
	s := DocumentSchema()
	require.NotNil(t, s)
	assert.Equal(t, "jobtrack project document", s.Title)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, `"jobs"`)
	assert.Contains(t, body, `"processes"`)
	assert.Contains(t, body, `"In Progress"`)

	cs := CatalogSchema()
	data, err = json.Marshal(cs)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"processes"`)
}

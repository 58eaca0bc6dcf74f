package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTemplate_Embedded(t *testing.T) {
	for _, name := range []string{RiskCard, IndexCard} {
		tmpl, err := GetTemplate(name, "")
		require.NoError(t, err, name)
		assert.Equal(t, TemplateTypeReport, tmpl.Type)
		assert.NotEmpty(t, tmpl.Title)
		assert.Contains(t, tmpl.Body, "{{ .AssetID }}")
	}

	names, err := ListEmbeddedTemplates()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{RiskCard, IndexCard}, names)
}

func TestGetTemplate_UserOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, RiskCard+".toml"),
		[]byte("type = \"report\"\ntitle = \"custom\"\nbody = \"# {{ .AssetID }}\"\n"), 0o644))

	tmpl, err := GetTemplate(RiskCard, dir)
	require.NoError(t, err)
	assert.Equal(t, "custom", tmpl.Title)

	// names without an override fall back to the embedded copy
	tmpl, err = GetTemplate(IndexCard, dir)
	require.NoError(t, err)
	assert.Contains(t, tmpl.Title, "market card")
}

func TestGetTemplate_Errors(t *testing.T) {
	_, err := GetTemplate("missing", "")
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.toml"), []byte("type = \"prompt\"\nbody = \"x\"\n"), 0o644))
	_, err = GetTemplate("bad", dir)
	assert.Error(t, err)
}

package unitpool

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want Config
	}{
		{
			name: "comma separated",
			yaml: "name: app\nshared: com.acme.shared.,, org.lib. \ndelegateFirst: true\n",
			want: Config{Name: "app", Shared: Prefixes{"com.acme.shared.", "org.lib."}, DelegateFirst: true},
		},
		{
			name: "sequence",
			yaml: "shared:\n  - com.acme.shared.\n  - \"\"\nfilter: [javax.]\n",
			want: Config{Shared: Prefixes{"com.acme.shared."}, Filter: Prefixes{"javax."}},
		},
		{
			name: "empty document",
			yaml: "",
			want: Config{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeConfig(strings.NewReader(tt.yaml))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeConfigRejectsMapping(t *testing.T) {
	_, err := DecodeConfig(strings.NewReader("shared:\n  a: b\n"))
	require.Error(t, err)
}

func TestParsePrefixes(t *testing.T) {
	assert.Equal(t, Prefixes{"a.", "b."}, ParsePrefixes("a.,,b.,"))
	assert.Empty(t, ParsePrefixes(""))
}

func TestWithConfig(t *testing.T) {
	reg := NewRegistry()
	c, err := NewContainer(reg, NewCatalog(), WithConfig(Config{
		Name:   "storefront",
		Shared: Prefixes{"com.acme.shared."},
		Filter: Prefixes{"javax."},
	}))
	require.NoError(t, err)

	assert.Equal(t, "storefront", c.Name())
	assert.True(t, c.Shared("com.acme.shared.Codec"))
	assert.False(t, c.Shared("com.acme.app.Main"))
	assert.True(t, c.filter("javax.Servlet"))
}

func TestLoadPoolFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
shared: com.acme.shared.
system: [core.String]
containers:
  - name: base
    units: [lib.Util]
  - name: app1
    parent: base
    delegateFirst: true
    units: [com.acme.shared.Codec]
`), 0o644))

	pf, err := LoadPoolFile(path)
	require.NoError(t, err)
	assert.Equal(t, Prefixes{"com.acme.shared."}, pf.Shared)
	assert.Equal(t, []string{"core.String"}, pf.System)
	require.Len(t, pf.Containers, 2)
	assert.Equal(t, "app1", pf.Containers[1].Name)
	assert.Equal(t, "base", pf.Containers[1].Parent)
	assert.True(t, pf.Containers[1].DelegateFirst)
	assert.Equal(t, []string{"com.acme.shared.Codec"}, pf.Containers[1].Units)
}

func TestPoolFileValidate(t *testing.T) {
	tests := []struct {
		name string
		pf   PoolFile
	}{
		{name: "missing name", pf: PoolFile{Containers: []ContainerFile{{}}}},
		{name: "duplicate", pf: PoolFile{Containers: []ContainerFile{
			{Config: Config{Name: "a"}},
			{Config: Config{Name: "a"}},
		}}},
		{name: "unknown parent", pf: PoolFile{Containers: []ContainerFile{
			{Config: Config{Name: "a"}, Parent: "b"},
		}}},
		{name: "self parent", pf: PoolFile{Containers: []ContainerFile{
			{Config: Config{Name: "a"}, Parent: "a"},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.pf.Validate())
		})
	}
}

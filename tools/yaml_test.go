package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexlayer.io/mcp/mcp"
)

func TestPodsFromBuild(t *testing.T) {
	pods := PodsFromBuild(
		map[string]string{"server": "ttl.sh/server-abc:1h", "client": "ttl.sh/client-abc:1h"},
		map[string]int{"client": 80},
	)

	require.Len(t, pods, 2)
	assert.Equal(t, Pod{
		Name:         "client",
		Image:        "ttl.sh/client-abc:1h",
		Path:         "/",
		ServicePorts: []int{80},
		Vars:         map[string]string{"API_URL": "http://server.pod:5000"},
	}, pods[0])
	assert.Equal(t, Pod{
		Name:         "server",
		Image:        "ttl.sh/server-abc:1h",
		Path:         "/api",
		ServicePorts: []int{5000},
	}, pods[1])

	single := PodsFromBuild(map[string]string{"server": "ttl.sh/server-abc:1h"}, nil)
	require.Len(t, single, 1)
	assert.Equal(t, "/", single[0].Path)
	assert.Nil(t, single[0].Vars)
}

func TestParseYAML(t *testing.T) {
	manifest, err := ParseYAML([]byte(`
application:
  name: shop
  pods:
    - name: web
      image: ttl.sh/web:1h
      path: /
      servicePorts: [3000]
      vars:
        NODE_ENV: production
`))
	require.NoError(t, err)
	assert.Equal(t, "shop", manifest.Application.Name)
	require.Len(t, manifest.Application.Pods, 1)
	assert.Equal(t, []int{3000}, manifest.Application.Pods[0].ServicePorts)
	assert.Equal(t, "production", manifest.Application.Pods[0].Vars["NODE_ENV"])

	out, err := manifest.Marshal()
	require.NoError(t, err)
	again, err := ParseYAML(out)
	require.NoError(t, err)
	assert.Equal(t, manifest, again)
}

func TestParseYAML_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "Syntax", input: "application: [", wantErr: "invalid YAML"},
		{name: "BadName", input: "application:\n  name: My_Shop\n  pods: [{name: web, image: x, servicePorts: [80]}]", wantErr: "application name"},
		{name: "NoPods", input: "application:\n  name: shop\n", wantErr: "no pods"},
		{name: "NoImage", input: "application:\n  name: shop\n  pods: [{name: web, servicePorts: [80]}]", wantErr: "no image"},
		{name: "NoPorts", input: "application:\n  name: shop\n  pods: [{name: web, image: x}]", wantErr: "no servicePorts"},
		{name: "BadPort", input: "application:\n  name: shop\n  pods: [{name: web, image: x, servicePorts: [70000]}]", wantErr: "invalid port"},
		{name: "Duplicate", input: "application:\n  name: shop\n  pods: [{name: web, image: x, servicePorts: [80]}, {name: web, image: y, servicePorts: [81]}]", wantErr: "duplicate pod"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGenerateYAML_FromImages(t *testing.T) {
	f := newFixture(t)
	repo := t.TempDir()

	result, err := f.call(t, "nexlayer_generate_yaml", map[string]any{
		"applicationName": " Shop ",
		"client":          "ttl.sh/client-abc:1h",
		"server":          "ttl.sh/server-abc:1h",
		"ports":           map[string]int{"client": 80, "server": 4000},
		"repoPath":        repo,
		"write":           true,
	})
	require.NoError(t, err)

	written, err := os.ReadFile(filepath.Join(repo, YAMLFileName))
	require.NoError(t, err)
	manifest, err := ParseYAML(written)
	require.NoError(t, err)
	assert.Equal(t, "shop", manifest.Application.Name)
	require.Len(t, manifest.Application.Pods, 2)
	assert.Equal(t, "http://server.pod:4000", manifest.Application.Pods[0].Vars["API_URL"])

	assert.Contains(t, result.Text, "name: shop")
	assert.Contains(t, result.Text, "Written to "+filepath.Join(repo, YAMLFileName))
	assert.Equal(t, "Generated nexlayer.yaml with 2 pod(s)", result.Message)
	assert.Equal(t, "shop", result.StepData["applicationName"])
}

func TestGenerateYAML_ExplicitPods(t *testing.T) {
	f := newFixture(t)

	result, err := f.call(t, "nexlayer_generate_yaml", map[string]any{
		"applicationName": "blog",
		"url":             "blog.example.com",
		"pods": []map[string]any{
			{"name": "web", "image": "ghcr.io/acme/blog:1", "servicePorts": []int{8080}},
			{"name": "db", "image": "postgres:16", "servicePorts": []int{5432}, "vars": map[string]string{"POSTGRES_DB": "blog"}},
		},
	})
	require.NoError(t, err)

	data := result.Data.(map[string]interface{})
	manifest := data["manifest"].(*NexlayerYAML)
	assert.Equal(t, "blog.example.com", manifest.Application.URL)
	assert.Len(t, manifest.Application.Pods, 2)
	assert.Equal(t, "", data["path"])
}

func TestGenerateYAML_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.call(t, "nexlayer_generate_yaml", map[string]any{"client": "x"})
	assertCategory(t, err, mcp.CategoryValidation)

	_, err = f.call(t, "nexlayer_generate_yaml", map[string]any{"applicationName": "shop"})
	assertCategory(t, err, mcp.CategoryValidation)

	_, err = f.call(t, "nexlayer_generate_yaml", map[string]any{"applicationName": "shop_1", "client": "x"})
	assertCategory(t, err, mcp.CategoryValidation)

	_, err = f.call(t, "nexlayer_generate_yaml", map[string]any{"applicationName": "shop", "client": "x", "write": true})
	assertCategory(t, err, mcp.CategoryValidation)
}

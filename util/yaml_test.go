package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type yamlParentType struct {
	Name     string        `yaml:"name"`
	Interval time.Duration `yaml:"interval"`
}

func TestYAMLMarshal(t *testing.T) {
	y, err := MarshalYaml(&yamlParentType{
		Name:     "succ",
		Interval: 3 * time.Second,
	})
	assert.Nil(t, err)
	assert.Equal(t, "name: succ\ninterval: 3s\n", y)
}

func TestYAMLUnmarshal(t *testing.T) {
	var yp yamlParentType

	assert.Nil(t, UnmarshalYamlString("name: hi\ninterval: 10m\n", &yp))
	assert.Equal(t, "hi", yp.Name)
	assert.Equal(t, 10*time.Minute, yp.Interval)

	assert.ErrorContains(t, UnmarshalYamlString("name: hi\nunknown: 1\n", &yp), "field unknown not found")
	assert.ErrorIs(t, UnmarshalYamlString("", &yp), errEmptyYamlDocument)
}

func TestYAMLUnmarshalFile(t *testing.T) {
	var yp yamlParentType

	path := filepath.Join(t.TempDir(), "sample.yml")
	assert.NoError(t, os.WriteFile(path, []byte("name: file\ninterval: 1s\n"), 0o600))
	assert.NoError(t, UnmarshalYamlFile(path, &yp))
	assert.Equal(t, "file", yp.Name)

	assert.NoError(t, os.WriteFile(path, []byte("name: [\n"), 0o600))
	assert.ErrorContains(t, UnmarshalYamlFile(path, &yp), path+": ")

	assert.Error(t, UnmarshalYamlFile(path+".missing", &yp))
}

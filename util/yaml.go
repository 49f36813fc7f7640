package util

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var errEmptyYamlDocument = errors.New("empty YAML document")

// MarshalYaml marshals the given source to a YAML string
func MarshalYaml(source interface{}) (string, error) {
	writer := &bytes.Buffer{}
	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(source); err != nil {
		return "", err
	}
	if err := encoder.Close(); err != nil {
		return "", err
	}
	return writer.String(), nil
}

// UnmarshalYamlFile loads and unmarshals YAML from file to interface or pointer to struct
//
// Errors are prefixed by the path
func UnmarshalYamlFile(path string, output interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := UnmarshalYamlReader(file, output); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// UnmarshalYamlReader loads and unmarshals YAML from IO reader to interface or pointer to struct
//
// Unknown fields are rejected, and so is an empty document
func UnmarshalYamlReader(reader io.Reader, output interface{}) error {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	if err := decoder.Decode(output); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyYamlDocument
		}
		return err
	}
	return nil
}

// UnmarshalYamlString loads and unmarshals YAML in string to interface or pointer to struct
func UnmarshalYamlString(contents string, output interface{}) error {
	return UnmarshalYamlReader(strings.NewReader(contents), output)
}

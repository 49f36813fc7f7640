// Package testdata provides access to shared sample records and config for testing
package testdata

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
)

var absoluteDirPath string

func init() {
	_, thisFile, _, _ := runtime.Caller(0)
	absoluteDirPath = filepath.Dir(thisFile)
}

// GetConfigPath returns the path of sample config, which refers to ${TMPDIR} and secrets in env
func GetConfigPath() string {
	return filepath.Join(absoluteDirPath, "config_sample.yml")
}

// GetInputPattern returns the glob pattern of all sample input files, one record per line
func GetInputPattern() string {
	return filepath.Join(absoluteDirPath, "development", "*-input.log")
}

// ListInputFiles lists sample input files in name order
func ListInputFiles(t *testing.T) []string {
	inFiles, globErr := filepath.Glob(GetInputPattern())
	if globErr != nil {
		t.Fatalf("failed to scan test files at %s: %v", GetInputPattern(), globErr)
	}
	if len(inFiles) == 0 {
		t.Fatalf("failed to find test files at %s: no match", GetInputPattern())
	}
	sort.Strings(inFiles)
	return inFiles
}

// ReadInputRecords reads non-empty lines from the sample input file as records
func ReadInputRecords(t *testing.T, path string) []string {
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer file.Close()

	records := make([]string, 0, 16)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			records = append(records, line)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return records
}

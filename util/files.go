package util

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"
)

// EnsureDir creates the given directory and its parents if they don't exist
func EnsureDir(path string) error {
	stat, serr := os.Stat(path)
	switch {
	case serr == nil && stat.IsDir():
		return nil
	case serr == nil:
		return fmt.Errorf("not a directory: %s", path)
	case !os.IsNotExist(serr):
		return serr
	}
	return os.MkdirAll(path, 0o755)
}

// IsWritableDir checks whether the given directory exists and can be written by the current process
func IsWritableDir(path string) bool {
	stat, serr := os.Stat(path)
	if serr != nil || !stat.IsDir() {
		return false
	}
	return unix.Access(path, unix.W_OK|unix.X_OK) == nil
}

// ListFiles lists non-dir files or first level files under the directories in the given path pattern
func ListFiles(directoryOrFilePattern string) ([]string, error) {
	inputList, gerr := filepath.Glob(directoryOrFilePattern)
	if gerr != nil {
		return nil, gerr
	}
	pathList := make([]string, 0, len(inputList)*2+10)
	for _, input := range inputList {
		stat, serr := os.Stat(input)
		if serr != nil {
			return nil, serr
		}
		if !stat.IsDir() {
			pathList = append(pathList, input)
			continue
		}
		fileList, rerr := os.ReadDir(input)
		if rerr != nil {
			return nil, rerr
		}
		for _, file := range fileList {
			if !file.IsDir() {
				pathList = append(pathList, filepath.Join(input, file.Name()))
			}
		}
	}
	sort.Strings(pathList)
	return pathList, nil
}

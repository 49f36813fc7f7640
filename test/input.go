package test

import (
	"bytes"
	"os"

	"github.com/relex/gotils/logger"
	"github.com/relex/slog-relay/util"
)

// loadInputRecords loads sample files into non-empty lines, one record per line
func loadInputRecords(inputPath string) []string {
	pathList, gerr := util.ListFiles(inputPath)
	if gerr != nil {
		logger.Fatal(gerr)
	} else if len(pathList) == 0 {
		logger.Fatal("no input files")
	}
	records := make([]string, 0, 1000)
	for _, path := range pathList {
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Fatalf("error reading %s: %v", path, err)
		}
		numLoaded := 0
		for _, line := range bytes.Split(content, []byte("\n")) {
			line = bytes.TrimSuffix(line, []byte("\r"))
			if len(line) == 0 {
				continue
			}
			records = append(records, string(line))
			numLoaded++
		}
		logger.Infof("loaded %s: %d records, %d bytes", path, numLoaded, len(content))
	}
	return records
}

package shared

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/gzip"
)

// GzipCompressionLevel is used for all compressed requests
//
// BestSpeed uses 30% more space and roughly same percentage in time saving
const GzipCompressionLevel = gzip.BestSpeed

// GzipCompress compresses the given data as a gzip stream
func GzipCompress(data []byte) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, len(data)/4+64))
	writer, err := gzip.NewWriterLevel(buf, GzipCompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish compression: %w", err)
	}
	return buf.Bytes(), nil
}

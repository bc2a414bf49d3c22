package rescache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/prn-tf/rescache/internal/domain"
)

// encodingGzip is the only content-encoding this implementation knows
// how to produce or consume.
const encodingGzip = "gzip"

// compress gzips body if it is at least minSize bytes, returning the
// bytes to store and the content-encoding tag to record alongside them
// ("" for raw).
func compress(body []byte, minSize int64) ([]byte, string, error) {
	if int64(len(body)) < minSize {
		return body, "", nil
	}

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(body); err != nil {
		return nil, "", fmt.Errorf("failed to gzip body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return buf.Bytes(), encodingGzip, nil
}

// decompress reverses compress given the stored content-encoding tag.
// An empty encoding returns stored unchanged. Any encoding other than
// "gzip" fails the read.
func decompress(stored []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "":
		return stored, nil
	case encodingGzip:
		r, err := gzip.NewReader(bytes.NewReader(stored))
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip reader: %w", err)
		}
		defer r.Close()

		body, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress body: %w", err)
		}
		return body, nil
	default:
		return nil, domain.WrapError(domain.ErrUnknownEncoding, encoding)
	}
}

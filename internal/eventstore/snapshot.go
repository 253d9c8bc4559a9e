package eventstore

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
)

// compressSnapshotBody brotli-compresses a snapshot's JSON body before it is
// written to the object store. Snapshots hold full aggregate state and are
// written far less often than events are read, so trading CPU for size here
// is a clear win on the object-store bill.
func compressSnapshotBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressSnapshotBody(compressed []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(compressed))
	return io.ReadAll(r)
}

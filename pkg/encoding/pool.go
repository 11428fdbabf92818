// Package encoding serializes gRPC and REST payloads through pooled buffers.
package encoding

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
)

// maxPooledBuffer keeps outlier payloads from pinning memory in the pool
const maxPooledBuffer = 64 * 1024

var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// GetBuffer retrieves an empty bytes.Buffer from the pool
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a bytes.Buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// EncodeJSON encodes v to JSON using a pooled buffer. The result is a copy
// without the trailing newline json.Encoder writes.
func EncodeJSON(v interface{}) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	result := make([]byte, len(out))
	copy(result, out)
	return result, nil
}

// WriteJSON writes v with the given status. An encoding failure becomes a bare 500.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		http.Error(w, `{"code":"K500","message":"internal server error"}`, http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

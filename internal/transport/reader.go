package transport

import (
	"bytes"
	"io"
)

func newReader(body []byte) io.Reader {
	return bytes.NewReader(body)
}

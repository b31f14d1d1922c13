package httpclient

import (
	"bytes"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"gitlab.com/tozd/go/errors"
)

// decodeBody transparently reverses Content-Encoding: br, gzip, or deflate,
// matching spec.md's "on end concatenate and transparently decode". An
// unrecognised or absent encoding is returned unchanged.
func decodeBody(contentEncoding string, data []byte) ([]byte, errors.E) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "br":
		out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return out, nil
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return out, nil
	case "deflate":
		r := flate.NewReader(bytes.NewReader(data))
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return out, nil
	default:
		return data, nil
	}
}

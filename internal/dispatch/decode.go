package dispatch

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"mirror-proxy/internal/model"
)

// MaxBodySize caps upstream bodies, before and after decompression.
const MaxBodySize = 64 << 20

// readResponse drains and closes resp, decoding any content encoding it
// understands. Unknown encodings leave body and header untouched.
func readResponse(resp *http.Response) (*model.Response, error) {
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	header := resp.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if enc := header.Get("Content-Encoding"); enc != "" {
		if body, err := DecodeBody(raw, enc); err == nil {
			raw = body
			header.Del("Content-Encoding")
			header.Del("Content-Length")
		}
	}

	return &model.Response{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       raw,
	}, nil
}

// DecodeBody reverses a Content-Encoding header value. Stacked encodings
// ("gzip, br") are undone last-applied first.
func DecodeBody(body []byte, encoding string) ([]byte, error) {
	codings := strings.Split(encoding, ",")
	for i := len(codings) - 1; i >= 0; i-- {
		var err error
		body, err = decodeOne(body, strings.ToLower(strings.TrimSpace(codings[i])))
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

func decodeOne(body []byte, coding string) ([]byte, error) {
	switch coding {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		return readLimited(zr)
	case "deflate":
		// Servers disagree on whether deflate means zlib-wrapped or raw.
		if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer zr.Close()
			if out, err := readLimited(zr); err == nil {
				return out, nil
			}
		}
		fr := flate.NewReader(bytes.NewReader(body))
		defer fr.Close()
		return readLimited(fr)
	case "br":
		return readLimited(brotli.NewReader(bytes.NewReader(body)))
	case "zstd":
		d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(MaxBodySize))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer d.Close()
		return d.DecodeAll(body, nil)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", coding)
	}
}

func readLimited(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, MaxBodySize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > MaxBodySize {
		return nil, fmt.Errorf("decoded body exceeds %d bytes", MaxBodySize)
	}
	return out, nil
}

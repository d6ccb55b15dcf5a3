// Package json frames the JSON documents stored in one input object.
//
// Two layouts are accepted:
//
//   - The whole object is one valid JSON value. An array yields one document
//     per element; anything else yields a single document.
//   - Otherwise the object is read as newline-delimited JSON: every non-blank
//     line is one document.
//
// Framing never rejects a document for its content. Decoding (and counting of
// malformed documents) is left to the caller, so one bad line costs one record
// instead of the whole object.
package json

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/ypatankar/datalake/internal/config"
)

// DefaultMaxDocumentBytes bounds a single NDJSON line.
const DefaultMaxDocumentBytes = 16 << 20

// Options tunes document framing.
type Options struct {
	// MaxDocumentBytes is the largest NDJSON line accepted. Longer lines fail
	// the whole object with bufio.ErrTooLong.
	MaxDocumentBytes int
}

// FromConfigOptions reads Options from the input.parser.options bag.
func FromConfigOptions(o config.Options) Options {
	return Options{
		MaxDocumentBytes: o.Int("max_document_bytes", DefaultMaxDocumentBytes),
	}
}

// Document is one framed JSON document.
type Document struct {
	// Line is 1-based: the array element index for array roots, the physical
	// line for NDJSON input, and 1 for a single-value object.
	Line int
	Raw  json.RawMessage
}

// ReadDocuments frames every document in r. The returned slice is nil for
// empty or blank input.
func ReadDocuments(r io.Reader, opt Options) ([]Document, error) {
	if opt.MaxDocumentBytes <= 0 {
		opt.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "json parser: read")
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if json.Valid(trimmed) {
		return frameValue(trimmed)
	}
	return frameLines(data, opt.MaxDocumentBytes)
}

func frameValue(v []byte) ([]Document, error) {
	if v[0] != '[' {
		return []Document{{Line: 1, Raw: json.RawMessage(v)}}, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(v, &elems); err != nil {
		return nil, errors.Wrap(err, "json parser: decode array root")
	}
	out := make([]Document, 0, len(elems))
	for i, e := range elems {
		out = append(out, Document{Line: i + 1, Raw: e})
	}
	return out, nil
}

func frameLines(data []byte, max int) ([]Document, error) {
	var out []Document
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, min(64*1024, max)), max)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		raw := make(json.RawMessage, len(b))
		copy(raw, b)
		out = append(out, Document{Line: line, Raw: raw})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "json parser: scan line %d", line+1)
	}
	return out, nil
}

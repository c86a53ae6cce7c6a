package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// parseActivity checks that body is exactly one JSON object and returns it
// compacted. A leading UTF-8 byte order mark is ignored.
func parseActivity(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, utf8BOM))
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, errors.New("activity is not a JSON object")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("compact activity: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeTranscript joins compacted activities into one JSON array.
func encodeTranscript(activities []json.RawMessage) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, a := range activities {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(a)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

// encodeIndentedTranscript is encodeTranscript with null-valued object
// members dropped at every depth, indented by two spaces. Member order and
// number literals are preserved.
func encodeIndentedTranscript(activities []json.RawMessage) ([]byte, error) {
	var compact bytes.Buffer
	compact.WriteByte('[')
	for i, a := range activities {
		if i > 0 {
			compact.WriteByte(',')
		}
		dec := json.NewDecoder(bytes.NewReader(a))
		dec.UseNumber()
		if _, err := writeWithoutNulls(dec, &compact); err != nil {
			return nil, fmt.Errorf("rewrite activity %d: %w", i, err)
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("rewrite activity %d: trailing data", i)
		}
	}
	compact.WriteByte(']')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("indent transcript: %w", err)
	}
	return out.Bytes(), nil
}

// writeWithoutNulls copies the next JSON value from dec into buf and
// reports whether that value was a null literal.
func writeWithoutNulls(dec *json.Decoder, buf *bytes.Buffer) (bool, error) {
	tok, err := dec.Token()
	if err != nil {
		return false, err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			buf.WriteByte('{')
			first := true
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return false, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return false, fmt.Errorf("unexpected object key %v", keyTok)
				}
				var member bytes.Buffer
				isNull, err := writeWithoutNulls(dec, &member)
				if err != nil {
					return false, err
				}
				if isNull {
					continue
				}
				if !first {
					buf.WriteByte(',')
				}
				first = false
				if err := writeString(buf, key); err != nil {
					return false, err
				}
				buf.WriteByte(':')
				buf.Write(member.Bytes())
			}
			if _, err := dec.Token(); err != nil {
				return false, err
			}
			buf.WriteByte('}')
		case '[':
			buf.WriteByte('[')
			first := true
			for dec.More() {
				if !first {
					buf.WriteByte(',')
				}
				first = false
				if _, err := writeWithoutNulls(dec, buf); err != nil {
					return false, err
				}
			}
			if _, err := dec.Token(); err != nil {
				return false, err
			}
			buf.WriteByte(']')
		default:
			return false, fmt.Errorf("unexpected delimiter %q", v)
		}
	case string:
		if err := writeString(buf, v); err != nil {
			return false, err
		}
	case json.Number:
		buf.WriteString(v.String())
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case nil:
		buf.WriteString("null")
		return true, nil
	default:
		return false, fmt.Errorf("unexpected token %T", tok)
	}
	return false, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

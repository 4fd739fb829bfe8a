package stomp

import (
	"bytes"
	"strconv"
)

// Decoder incrementally parses FrameOrKeepAlive values out of a byte
// buffer supplied by the transport. It is safe to call Decode repeatedly
// against the same growing buffer as more bytes arrive (spec §4.1).
//
// Grounded on _examples/original_source/src/parser.rs's parse_frame: ran
// out of input before completing a structure => "need more bytes" (0
// consumed, nil error); an explicit disallowed byte with input remaining
// => a protocol error the caller should treat as unrecoverable.
type Decoder struct{}

// Decode attempts to parse one FrameOrKeepAlive from the front of buf.
//
// Return contract:
//   - (item, n, nil) with n > 0: one item parsed, consumed n bytes.
//   - (zero, 0, nil): not enough bytes yet; call again once more arrive.
//   - (zero, 0, err): unrecoverable protocol error; the caller should close
//     the transport.
func (Decoder) Decode(buf []byte) (FrameOrKeepAlive, int, error) {
	if len(buf) == 0 {
		return FrameOrKeepAlive{}, 0, nil
	}

	if buf[0] == '\n' {
		return FrameOrKeepAlive{KeepAlive: true}, 1, nil
	}
	if buf[0] == '\r' && len(buf) >= 2 && buf[1] == '\n' {
		return FrameOrKeepAlive{KeepAlive: true}, 2, nil
	}
	if buf[0] == '\r' && len(buf) < 2 {
		return FrameOrKeepAlive{}, 0, nil
	}

	pos := 0

	cmdLine, n, ok, err := readLine(buf, pos)
	if err != nil {
		return FrameOrKeepAlive{}, 0, err
	}
	if !ok {
		return FrameOrKeepAlive{}, 0, nil
	}
	pos += n

	command, err := ParseCommand(string(cmdLine))
	if err != nil {
		return FrameOrKeepAlive{}, 0, err
	}

	headers := NewHeaders()
	for {
		// An immediate (possibly CR-prefixed) LF at this position ends the
		// header block.
		if pos < len(buf) && buf[pos] == '\n' {
			pos++
			break
		}
		if pos+1 < len(buf) && buf[pos] == '\r' && buf[pos+1] == '\n' {
			pos += 2
			break
		}
		if pos >= len(buf) {
			return FrameOrKeepAlive{}, 0, nil
		}

		name, n, ok, err := readHeaderComponent(buf, pos, false)
		if err != nil {
			return FrameOrKeepAlive{}, 0, err
		}
		if !ok {
			return FrameOrKeepAlive{}, 0, nil
		}
		pos += n

		if pos >= len(buf) {
			return FrameOrKeepAlive{}, 0, nil
		}
		if buf[pos] != ':' {
			return FrameOrKeepAlive{}, 0, protocolErrorf("header line missing ':' separator")
		}
		pos++ // consume ':'

		value, n, ok, err := readHeaderComponent(buf, pos, true)
		if err != nil {
			return FrameOrKeepAlive{}, 0, err
		}
		if !ok {
			return FrameOrKeepAlive{}, 0, nil
		}
		pos += n

		headers.Set(string(name), string(value))
	}

	contentLength, hasContentLength, err := contentLengthOf(headers)
	if err != nil {
		return FrameOrKeepAlive{}, 0, err
	}

	var body []byte
	if hasContentLength {
		if pos+contentLength+1 > len(buf) {
			return FrameOrKeepAlive{}, 0, nil
		}
		body = buf[pos : pos+contentLength]
		pos += contentLength
		if buf[pos] != 0 {
			return FrameOrKeepAlive{}, 0, protocolErrorf("expected NUL terminator after content-length body")
		}
		pos++
	} else {
		nul := bytes.IndexByte(buf[pos:], 0)
		if nul < 0 {
			return FrameOrKeepAlive{}, 0, nil
		}
		body = buf[pos : pos+nul]
		pos += nul + 1
	}

	frame := &Frame{Command: command, Headers: headers, Body: append([]byte(nil), body...)}
	return FrameOrKeepAlive{Frame: frame}, pos, nil
}

func contentLengthOf(h Headers) (int, bool, error) {
	raw, ok := h.Get(HeaderContentLength)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false, protocolErrorf("invalid content-length %q", raw)
	}
	return n, true, nil
}

// readLine reads an unescaped command line starting at buf[pos], stopping
// at the first raw LF (a preceding CR is stripped). Commands are fixed
// uppercase tokens and carry no escape sequences (spec §4.1).
func readLine(buf []byte, pos int) (line []byte, consumed int, ok bool, err error) {
	idx := bytes.IndexByte(buf[pos:], '\n')
	if idx < 0 {
		return nil, 0, false, nil
	}
	end := pos + idx
	line = buf[pos:end]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return line, idx + 1, true, nil
}

// readHeaderComponent decodes one escaped run (a header name or value)
// starting at buf[pos]. allowRawColon controls whether an unescaped ':'
// terminates the run without being consumed (false, for names) or is
// accepted as a literal byte
// (true, for values — brokers emit literal colons in session ids, spec
// §4.1). An unescaped LF always terminates the run; a CR directly before
// it is stripped.
func readHeaderComponent(buf []byte, pos int, allowRawColon bool) (out []byte, consumed int, ok bool, err error) {
	start := pos
	var b []byte
	for {
		if pos >= len(buf) {
			return nil, 0, false, nil
		}
		c := buf[pos]
		switch {
		case c == '\n':
			if n := len(b); n > 0 && b[n-1] == '\r' {
				b = b[:n-1]
			}
			return b, pos - start + 1, true, nil
		case c == ':' && !allowRawColon:
			// Leave the ':' for the caller to check and consume.
			return b, pos - start, true, nil
		case c == '\\':
			if pos+1 >= len(buf) {
				return nil, 0, false, nil
			}
			switch buf[pos+1] {
			case 'n':
				b = append(b, '\n')
			case 'r':
				b = append(b, '\r')
			case 'c':
				b = append(b, ':')
			case '\\':
				b = append(b, '\\')
			default:
				return nil, 0, false, protocolErrorf("invalid escape sequence \\%c", buf[pos+1])
			}
			pos += 2
		default:
			b = append(b, c)
			pos++
		}
	}
}

// escapeInto appends the escaped wire form of s to dst, applying the four
// reserved-byte substitutions (spec §4.1).
func escapeInto(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			dst = append(dst, '\\', '\\')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\n':
			dst = append(dst, '\\', 'n')
		case ':':
			dst = append(dst, '\\', 'c')
		default:
			dst = append(dst, s[i])
		}
	}
	return dst
}

// Encoder serializes frames and keep-alives to their exact wire form.
type Encoder struct{}

// EncodeKeepAlive appends a single keep-alive LF to dst.
func (Encoder) EncodeKeepAlive(dst []byte) []byte {
	return append(dst, '\n')
}

// Encode appends the wire form of f to dst. It always terminates with
// exactly one trailing NUL. If f.Body contains a NUL byte and no
// content-length header is present, serialization fails (spec §8).
func (e Encoder) Encode(dst []byte, f *Frame) ([]byte, error) {
	headerBlock, body, err := e.EncodeSplit(f)
	if err != nil {
		return dst, err
	}
	dst = append(dst, headerBlock...)
	dst = append(dst, body...)
	return dst, nil
}

// EncodeSplit serializes f into two independent byte slices — the command
// and header block (through the blank line) and the body plus its trailing
// NUL — so a caller can hand both to a vectorised writer without an
// intermediate copy (spec §6, SPEC_FULL.md domain stack).
func (Encoder) EncodeSplit(f *Frame) (headerBlock, body []byte, err error) {
	if _, ok := f.Headers.Get(HeaderContentLength); !ok && bytes.IndexByte(f.Body, 0) >= 0 {
		return nil, nil, protocolErrorf("body contains NUL but content-length header is absent")
	}

	headerBlock = append(headerBlock, []byte(f.Command)...)
	headerBlock = append(headerBlock, '\n')
	f.Headers.Each(func(k, v string) {
		headerBlock = escapeInto(headerBlock, k)
		headerBlock = append(headerBlock, ':')
		headerBlock = escapeInto(headerBlock, v)
		headerBlock = append(headerBlock, '\n')
	})
	headerBlock = append(headerBlock, '\n')

	body = append(body, f.Body...)
	body = append(body, 0)
	return headerBlock, body, nil
}

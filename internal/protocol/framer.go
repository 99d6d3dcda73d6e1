// Package protocol frames and decodes the GC2 sensor's line-oriented
// wire format, and encodes records back into it for emulation.
package protocol

import "bytes"

// Message terminators. The sensor ends every message with newline+tab;
// some line-oriented bridges substitute a blank line.
var (
	terminator         = []byte("\n\t")
	fallbackTerminator = []byte("\n\n")
)

// maxBufferedBytes bounds the partial-message buffer. A stream that
// produces this much data without a terminator is corrupt; the buffer
// is dropped and framing resynchronizes on the next terminator.
const maxBufferedBytes = 64 * 1024

// Framer splits an arbitrarily fragmented byte stream into complete
// messages. Reads may split or coalesce messages at any byte; whatever
// trails the last terminator stays buffered for the next push.
type Framer struct {
	buf bytes.Buffer
}

// Push appends a chunk and returns the raw payload of every message
// completed by it, terminators stripped. Empty messages (terminator
// runs) are skipped.
func (f *Framer) Push(chunk []byte) [][]byte {
	f.buf.Write(chunk)

	var msgs [][]byte
	for {
		data := f.buf.Bytes()
		end, skip := nextTerminator(data)
		if end < 0 {
			break
		}
		raw := make([]byte, end)
		copy(raw, data[:end])
		f.buf.Next(end + skip)
		if len(bytes.TrimSpace(raw)) > 0 {
			msgs = append(msgs, raw)
		}
	}

	if f.buf.Len() > maxBufferedBytes {
		f.buf.Reset()
	}
	return msgs
}

// Pending returns the number of buffered bytes awaiting a terminator.
func (f *Framer) Pending() int { return f.buf.Len() }

// Reset discards any buffered partial message, for reuse across
// connections.
func (f *Framer) Reset() { f.buf.Reset() }

func nextTerminator(data []byte) (end, skip int) {
	end = -1
	skip = 0
	if i := bytes.Index(data, terminator); i >= 0 {
		end, skip = i, len(terminator)
	}
	if i := bytes.Index(data, fallbackTerminator); i >= 0 && (end < 0 || i < end) {
		end, skip = i, len(fallbackTerminator)
	}
	return end, skip
}

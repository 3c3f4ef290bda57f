package llm

import (
	"encoding/json"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// sseDecoder turns raw event-stream bytes into content deltas.
//
// Bytes arrive in arbitrary chunks: incomplete UTF-8 sequences are held
// back until the next chunk, and the trailing partial line stays buffered
// until its newline arrives. A line that fails to parse but looks like
// the head of a truncated JSON object is carried over and retried joined
// with the next line, once.
// maxCarry bounds the truncated line kept for the next join.
const maxCarry = 64 << 10

type sseDecoder struct {
	utf8    transform.Transformer
	pending []byte
	buf     string
	carry   string
	logger  *slog.Logger
}

func newSSEDecoder(logger *slog.Logger) *sseDecoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &sseDecoder{
		utf8:   unicode.UTF8.NewDecoder(),
		logger: logger,
	}
}

// Write consumes a chunk and returns the deltas of every line it completed.
func (d *sseDecoder) Write(chunk []byte) []string {
	d.buf += d.decode(chunk, false)
	lines := strings.Split(d.buf, "\n")
	d.buf = lines[len(lines)-1]
	return d.lines(lines[:len(lines)-1])
}

// Flush processes whatever is buffered once the body is exhausted.
func (d *sseDecoder) Flush() []string {
	d.buf += d.decode(nil, true)
	rest := d.buf
	d.buf = ""
	return d.lines(strings.Split(rest, "\n"))
}

func (d *sseDecoder) decode(chunk []byte, atEOF bool) string {
	src := append(d.pending, chunk...)
	dst := make([]byte, 3*len(src)+utf8.UTFMax)
	var out []byte
	for {
		nDst, nSrc, err := d.utf8.Transform(dst, src, atEOF)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]
		if err != transform.ErrShortDst || nSrc == 0 && nDst == 0 {
			break
		}
	}
	d.pending = append([]byte(nil), src...)
	return string(out)
}

func (d *sseDecoder) lines(lines []string) []string {
	var deltas []string
	for _, line := range lines {
		if delta, ok := d.line(line); ok && delta != "" {
			deltas = append(deltas, delta)
		}
	}
	return deltas
}

func (d *sseDecoder) line(raw string) (string, bool) {
	line := strings.TrimSpace(raw)
	if line == "" || line == "data: [DONE]" || line == "[DONE]" {
		return "", false
	}
	if rest, ok := strings.CutPrefix(line, "data:"); ok {
		line = strings.TrimSpace(rest)
	}
	if line == "" {
		return "", false
	}

	if d.carry != "" {
		carried := d.carry
		d.carry = ""
		for _, joined := range []string{carried + "\n" + line, carried + line} {
			if delta, err := parseChunkContent(joined); err == nil {
				return delta, true
			}
		}
		d.logger.Debug("dropping truncated stream line", "line", carried)
	}

	delta, err := parseChunkContent(line)
	if err != nil {
		if strings.HasPrefix(line, "{") && !strings.HasSuffix(line, "}") && len(line) <= maxCarry {
			d.carry = line
		} else {
			d.logger.Debug("skipping undecodable stream line", "line", line, "error", err)
		}
		return "", false
	}
	return delta, true
}

// parseChunkContent extracts choices[0].delta.content, falling back to
// choices[0].message.content when the delta carries no content.
func parseChunkContent(data string) (string, error) {
	var chunk oaiChatResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", err
	}
	if len(chunk.Choices) == 0 {
		return "", nil
	}
	choice := chunk.Choices[0]
	if choice.Delta != nil && choice.Delta.Content != nil {
		return *choice.Delta.Content, nil
	}
	if choice.Message != nil && choice.Message.Content != nil {
		return *choice.Message.Content, nil
	}
	return "", nil
}

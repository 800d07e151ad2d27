// Package partialjson implements tolerant parsing of incomplete JSON text
// and a pipeline middleware that opportunistically attaches parsed values to
// streamed object/tool-call fragments.
//
// Repair rule (load-bearing, keep in sync with tests): a buffer parses iff,
// after closing every open brace/bracket and discarding any unterminated
// trailing string, trailing number, partial literal, and any object key left
// without a completed value, the remainder is valid JSON. An unterminated
// string is dropped whole, never truncated: `{"name":"Jo` parses to {}, not
// to {"name":"Jo"}.
package partialjson

import (
	"bytes"
	"encoding/json"
)

// Parse attempts a tolerant parse of a JSON prefix. It returns the decoded
// value and true when the buffer is complete JSON or repairable under the
// package rule, and (nil, false) while the prefix is not yet parseable.
func Parse(data []byte) (any, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, false
	}
	if json.Valid(trimmed) {
		var v any
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return nil, false
		}
		return v, true
	}
	repaired, ok := Repair(trimmed)
	if !ok {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(repaired, &v); err != nil {
		return nil, false
	}
	return v, true
}

type scanMode int

const (
	modeValue scanMode = iota // expecting the start of a value
	modeKey                   // inside an object, expecting a key or '}'
	modeColon                 // after a key, expecting ':'
	modeAfter                 // after a complete value, expecting ',' or a closer
)

type frame struct {
	open        byte // '{' or '['
	memberStart int  // start of the in-progress member (object: its key), -1 when none
}

// Repair completes an open JSON prefix per the package rule. It returns
// false for malformed input (as opposed to merely incomplete input, which is
// repaired).
func Repair(data []byte) ([]byte, bool) {
	n := len(data)
	i := skipWS(data, 0)
	if i >= n {
		return nil, false
	}

	var stack []frame
	mode := modeValue

	// Set when scanning ends mid-token; dropFrom marks where the incomplete
	// tail begins.
	dropFrom := -1

	for i < n {
		i = skipWS(data, i)
		if i >= n {
			break
		}
		c := data[i]

		switch mode {
		case modeValue:
			switch {
			case c == '{':
				stack = append(stack, frame{open: '{', memberStart: -1})
				mode = modeKey
				i++
			case c == '[':
				stack = append(stack, frame{open: '[', memberStart: -1})
				mode = modeValue
				i++
			case c == '"':
				start := i
				end, terminated := scanString(data, i)
				if !terminated {
					dropFrom = valueDropPoint(stack, start)
					i = n
					break
				}
				i = end
				mode = modeAfter
			case c == '-' || (c >= '0' && c <= '9'):
				start := i
				i = scanNumber(data, i)
				if i >= n {
					// A number at the buffer tail may still grow; treat it
					// as unterminated.
					dropFrom = valueDropPoint(stack, start)
					break
				}
				mode = modeAfter
			case c == 't' || c == 'f' || c == 'n':
				start := i
				end, complete, ok := scanLiteral(data, i)
				if !ok {
					return nil, false
				}
				if !complete {
					dropFrom = valueDropPoint(stack, start)
					i = n
					break
				}
				i = end
				mode = modeAfter
			default:
				return nil, false
			}

		case modeKey:
			switch c {
			case '}':
				var ok bool
				stack, ok = pop(stack, '}')
				if !ok {
					return nil, false
				}
				mode = modeAfter
				i++
			case '"':
				stack[len(stack)-1].memberStart = i
				end, terminated := scanString(data, i)
				if !terminated {
					dropFrom = stack[len(stack)-1].memberStart
					i = n
					break
				}
				i = end
				mode = modeColon
			default:
				return nil, false
			}

		case modeColon:
			if c != ':' {
				return nil, false
			}
			mode = modeValue
			i++

		case modeAfter:
			switch c {
			case ',':
				if len(stack) == 0 {
					return nil, false
				}
				top := &stack[len(stack)-1]
				top.memberStart = -1
				if top.open == '{' {
					mode = modeKey
				} else {
					mode = modeValue
				}
				i++
			case '}', ']':
				var ok bool
				stack, ok = pop(stack, c)
				if !ok {
					return nil, false
				}
				i++
			default:
				return nil, false
			}
		}
	}

	if dropFrom < 0 {
		switch mode {
		case modeAfter, modeKey:
			// Nothing dangling beyond possibly a trailing comma.
			dropFrom = n
		case modeColon:
			// Key scanned, value never started.
			dropFrom = stack[len(stack)-1].memberStart
		case modeValue:
			if len(stack) == 0 {
				return nil, false
			}
			if top := stack[len(stack)-1]; top.open == '{' {
				dropFrom = top.memberStart
			} else {
				dropFrom = n
			}
		}
	}

	out := append([]byte(nil), data[:dropFrom]...)
	out = trimDanglingSeparator(out)
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, false
	}
	for j := len(stack) - 1; j >= 0; j-- {
		if stack[j].open == '{' {
			out = append(out, '}')
		} else {
			out = append(out, ']')
		}
	}
	return out, true
}

// valueDropPoint picks where to cut when a value token is incomplete: an
// object member loses its key too, array/top-level elements are cut at the
// token itself.
func valueDropPoint(stack []frame, tokenStart int) int {
	if len(stack) > 0 {
		if top := stack[len(stack)-1]; top.open == '{' && top.memberStart >= 0 {
			return top.memberStart
		}
	}
	return tokenStart
}

func trimDanglingSeparator(out []byte) []byte {
	out = bytes.TrimRight(out, " \t\r\n")
	if len(out) > 0 && out[len(out)-1] == ',' {
		out = out[:len(out)-1]
		out = bytes.TrimRight(out, " \t\r\n")
	}
	return out
}

func skipWS(data []byte, i int) int {
	for i < len(data) {
		switch data[i] {
		case ' ', '\t', '\r', '\n':
			i++
		default:
			return i
		}
	}
	return i
}

// scanString starts at the opening quote and returns the index just past the
// closing quote, or terminated=false when the buffer ends first.
func scanString(data []byte, i int) (end int, terminated bool) {
	i++
	for i < len(data) {
		switch data[i] {
		case '\\':
			i += 2
		case '"':
			return i + 1, true
		default:
			i++
		}
	}
	return len(data), false
}

func scanNumber(data []byte, i int) int {
	for i < len(data) {
		switch c := data[i]; {
		case c >= '0' && c <= '9',
			c == '-', c == '+', c == '.', c == 'e', c == 'E':
			i++
		default:
			return i
		}
	}
	return i
}

// scanLiteral matches true/false/null. complete=false means the buffer ended
// inside a literal prefix; ok=false means the bytes cannot become a literal.
func scanLiteral(data []byte, i int) (end int, complete, ok bool) {
	for _, lit := range []string{"true", "false", "null"} {
		rem := len(data) - i
		if rem >= len(lit) {
			if string(data[i:i+len(lit)]) == lit {
				return i + len(lit), true, true
			}
			continue
		}
		if string(data[i:]) == lit[:rem] {
			return len(data), false, true
		}
	}
	return 0, false, false
}

package insight

import (
	"encoding/json"
	"strconv"
	"strings"
)

type frame struct {
	object    bool
	expectKey bool
}

// Repair closes a truncated JSON document so it can be decoded. Open strings
// are terminated, a dangling key gets a null value, unfinished escapes and
// literals are dropped and open containers are closed in order.
func Repair(prefix string) string {
	var (
		stack      []frame
		inString   bool
		escaped    bool
		isKey      bool
		keyPending bool
		strStart   int
		uStart     = -1
		uLeft      int
		highStart  = -1
		highEnd    = -1
	)

	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if inString {
			if uLeft > 0 {
				uLeft--
				if uLeft == 0 {
					if isHighSurrogate(prefix[uStart+2 : i+1]) {
						highStart, highEnd = uStart, i+1
					}
					uStart = -1
				}
				continue
			}
			if escaped {
				escaped = false
				if c == 'u' {
					uStart, uLeft = i-1, 4
				}
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
				keyPending = isKey
			}
			continue
		}
		switch c {
		case '"':
			inString = true
			strStart = i
			isKey = len(stack) > 0 && stack[len(stack)-1].object && stack[len(stack)-1].expectKey
		case '{':
			stack = append(stack, frame{object: true, expectKey: true})
			keyPending = false
		case '[':
			stack = append(stack, frame{})
			keyPending = false
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			keyPending = false
		case ':':
			if len(stack) > 0 && stack[len(stack)-1].object {
				stack[len(stack)-1].expectKey = false
			}
			keyPending = false
		case ',':
			if len(stack) > 0 && stack[len(stack)-1].object {
				stack[len(stack)-1].expectKey = true
			}
			keyPending = false
		}
	}

	out := prefix
	if inString {
		if isKey {
			out = out[:strStart]
		} else {
			end := len(out)
			switch {
			case uStart >= 0:
				end = uStart
			case escaped:
				end--
			}
			// a high surrogate decodes to U+FFFD until its low half arrives
			if highStart >= 0 && highEnd == end {
				end = highStart
			}
			out = out[:end] + `"`
		}
	} else {
		out = strings.TrimRight(out, " \t\r\n")
		out = strings.TrimRight(out, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789.+-")
		if keyPending && strings.HasSuffix(out, `"`) {
			out += ":null"
		}
	}

	for {
		out = strings.TrimRight(out, " \t\r\n")
		if strings.HasSuffix(out, ",") {
			out = out[:len(out)-1]
			continue
		}
		break
	}
	if strings.HasSuffix(out, ":") {
		out += "null"
	}

	var b strings.Builder
	b.WriteString(out)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].object {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

func isHighSurrogate(hex string) bool {
	v, err := strconv.ParseUint(hex, 16, 16)
	return err == nil && v >= 0xD800 && v <= 0xDBFF
}

// ParsePartial decodes whatever prefix of the object has arrived so far. It
// returns false while nothing decodable is available yet.
func ParsePartial(prefix string) (Result, bool) {
	s := strings.TrimSpace(prefix)
	i := strings.IndexByte(s, '{')
	if i < 0 {
		return Result{}, false
	}
	var out Result
	if err := json.Unmarshal([]byte(Repair(s[i:])), &out); err != nil {
		return Result{}, false
	}
	return out, true
}

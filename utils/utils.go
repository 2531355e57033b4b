package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatDataForLog renders raw line data for debug logs: printable ASCII as is, control
// characters escaped, everything else as \xNN. Data without any text is shown as hex.
func FormatDataForLog(data []byte) string {
	if len(data) == 0 {
		return "no data"
	}

	var printable strings.Builder
	hasText := false

	for _, b := range data {
		switch {
		case b >= 32 && b <= 126:
			printable.WriteByte(b)
			hasText = true
		case b == '\n':
			printable.WriteString("\\n")
			hasText = true
		case b == '\r':
			printable.WriteString("\\r")
			hasText = true
		case b == '\t':
			printable.WriteString("\\t")
			hasText = true
		default:
			fmt.Fprintf(&printable, "\\x%02X", b)
		}
	}

	var result string
	if hasText {
		result = `"` + printable.String() + `"`
	} else {
		hexStr := make([]string, len(data))
		for i, b := range data {
			hexStr[i] = fmt.Sprintf("0x%02X", b)
		}
		result = fmt.Sprintf("[%s]", strings.Join(hexStr, " "))
	}

	return fmt.Sprintf("%s (%d bytes)", result, len(data))
}

// TagLines prefixes text with "name: " and repeats the tag after every newline, so that
// multi-line input stays attributed once merged with other devices.
func TagLines(name, text string) string {
	tag := name + ": "
	return tag + strings.ReplaceAll(text, "\n", "\n"+tag)
}

// UntagLines reverses TagLines for one source and returns the bare lines.
func UntagLines(name, text string) []string {
	tag := name + ": "
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, tag)
	}
	return lines
}

// ParseEscapes interprets the backslash escapes an operator may type in the send box:
// \n \r \t \\ and \xNN. Unknown escapes are kept literally.
func ParseEscapes(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			out = append(out, c)
			continue
		}
		switch s[i+1] {
		case 'n':
			out = append(out, '\n')
			i++
		case 'r':
			out = append(out, '\r')
			i++
		case 't':
			out = append(out, '\t')
			i++
		case '\\':
			out = append(out, '\\')
			i++
		case 'x':
			if i+3 < len(s) {
				if v, err := strconv.ParseUint(s[i+2:i+4], 16, 8); err == nil {
					out = append(out, byte(v))
					i += 3
					continue
				}
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out
}

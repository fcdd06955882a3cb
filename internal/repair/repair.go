// Package repair implements best-effort syntactic repair of near-valid JSON
// text. It targets the mistakes people actually make when hand-editing a
// config file: trailing commas, a missing comma between lines, unquoted keys,
// and single-quoted files.
package repair

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultWindowRadius is the number of bytes shown on each side of the error
// offset in diagnostic output.
const DefaultWindowRadius = 25

var (
	// ",  }" or ",\n]" -> "}" / "]"
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

	// A value end (closing quote or digit) followed by a newline and the start
	// of the next member without a separating comma.
	missingCommaRe = regexp.MustCompile(`(["\d])(\s*\n\s*)(["{\[])`)

	// Bare identifier used as an object key: `{ key:` or `, key:`.
	unquotedKeyRe = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
)

// UnrepairableError is returned when the repaired text still fails to parse.
// Offset is the byte offset reported by the parser (-1 if unavailable) and
// Window is the surrounding text for diagnostic display.
type UnrepairableError struct {
	Err    error
	Offset int64
	Window string
}

func (e *UnrepairableError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("JSON could not be repaired: %v (near offset %d: %q)", e.Err, e.Offset, e.Window)
	}
	return fmt.Sprintf("JSON could not be repaired: %v", e.Err)
}

func (e *UnrepairableError) Unwrap() error { return e.Err }

// Transform applies the four repair passes in fixed order and returns the
// rewritten text. It is pure and performs no parsing.
func Transform(text string) string {
	out := trailingCommaRe.ReplaceAllString(text, "$1")
	out = missingCommaRe.ReplaceAllString(out, "$1,$2$3")

	// Quoting one key can expose the next ("{a:1,b:2}"), so run to fixpoint.
	for {
		next := unquotedKeyRe.ReplaceAllString(out, `$1"$2":`)
		if next == out {
			break
		}
		out = next
	}

	// Whole-file heuristic: only rewrite quotes when the file appears to use
	// single quotes exclusively.
	if strings.Contains(out, "'") && !strings.Contains(out, `"`) {
		out = strings.ReplaceAll(out, "'", `"`)
	}

	return out
}

// Repair transforms text and makes a single parse attempt on the result. On
// success it returns the repaired text; otherwise an *UnrepairableError
// carrying the parse error, its byte offset and a diagnostic window.
func Repair(text string) (string, error) {
	repaired := Transform(text)

	var probe interface{}
	err := json.Unmarshal([]byte(repaired), &probe)
	if err == nil {
		return repaired, nil
	}

	offset := int64(-1)
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		offset = syntaxErr.Offset
	}

	window := ""
	if offset >= 0 {
		window = Window(repaired, offset, DefaultWindowRadius)
	}

	return "", &UnrepairableError{Err: err, Offset: offset, Window: window}
}

// Window returns the slice of text within radius bytes of offset, clamped to
// the text bounds. It is a pure function so diagnostics stay testable.
func Window(text string, offset int64, radius int) string {
	if len(text) == 0 || radius <= 0 {
		return ""
	}

	start := offset - int64(radius)
	if start < 0 {
		start = 0
	}
	end := offset + int64(radius)
	if end > int64(len(text)) {
		end = int64(len(text))
	}
	if start >= int64(len(text)) {
		start = int64(len(text)) - 1
	}

	return text[start:end]
}

package testutil

import (
	"bufio"
	"strings"
	"testing"
)

// ParseSSEData parses a data-framed SSE stream into its data payloads.
// The chat stream frames every event as "data: <json>" followed by a blank
// line; multiple data lines within one event are joined with newline, and
// comment lines starting with ":" are ignored.
func ParseSSEData(t *testing.T, body string) []string {
	t.Helper()

	var events []string
	var dataLines []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "data: "):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))

		case line == "":
			if len(dataLines) > 0 {
				events = append(events, strings.Join(dataLines, "\n"))
				dataLines = nil
			}

		case strings.HasPrefix(line, ":"):
			// comment, ignored

		default:
			t.Fatalf("SSE parse error at line %d: unexpected line %q", lineNum, line)
		}
	}

	if err := scanner.Err(); err != nil {
		t.Fatalf("SSE scan error: %v", err)
	}

	if len(dataLines) > 0 {
		t.Fatal("SSE stream ended without terminating blank line")
	}

	return events
}

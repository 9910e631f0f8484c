package testutil

import "testing"

func TestParseSSEData(t *testing.T) {
	body := "data: {\"chunk\": \"Hello\"}\n\n" +
		": keepalive\n" +
		"data: {\"chunk\": \" world\"}\n\n" +
		"data: {\"done\": true}\n\n"

	events := ParseSSEData(t, body)

	if len(events) != 3 {
		t.Fatalf("parsed %d events, want 3", len(events))
	}
	if events[0] != `{"chunk": "Hello"}` {
		t.Errorf("first event = %q", events[0])
	}
	if events[2] != `{"done": true}` {
		t.Errorf("terminal event = %q", events[2])
	}
}

func TestParseSSEDataMultiline(t *testing.T) {
	body := "data: line one\ndata: line two\n\n"

	events := ParseSSEData(t, body)

	if len(events) != 1 {
		t.Fatalf("parsed %d events, want 1", len(events))
	}
	if events[0] != "line one\nline two" {
		t.Errorf("multi-line data = %q", events[0])
	}
}

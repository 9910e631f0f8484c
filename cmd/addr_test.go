package cmd

import "testing"

func TestValidateAddr(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"port only", ":8000", false},
		{"localhost", "localhost:8000", false},
		{"ip and port", "127.0.0.1:8000", false},
		{"auto-assign port", ":0", false},
		{"missing port", "127.0.0.1", true},
		{"empty port", "127.0.0.1:", true},
		{"non-numeric port", ":http", true},
		{"port out of range", ":70000", true},
		{"bare string", "not-an-addr", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAddr(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAddr(%q) = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

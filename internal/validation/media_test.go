package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateMediaURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"Empty", "", false},
		{"Whitespace Only", "   ", false},
		{"HTTPS", "https://cdn.example.com/a.png", false},
		{"HTTP With Query", "http://example.com/img?id=4", false},
		{"Relative Path", "/uploads/a.png", true},
		{"No Scheme", "example.com/a.png", true},
		{"FTP", "ftp://example.com/a.png", true},
		{"Javascript", "javascript:alert(1)", true},
		{"Too Long", "https://example.com/" + strings.Repeat("a", 2048), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateMediaURL(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeScope(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme Corp.", "Acme_Corp_"},
		{"acme-corp_2", "acme-corp_2"},
		{"", ""},
		{"a/b\\c", "a_b_c"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeScope(tt.in))
		})
	}
}

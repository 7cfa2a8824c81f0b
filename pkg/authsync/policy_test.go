package authsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveFallback(t *testing.T) {
	tests := []struct {
		name      string
		condition Condition
		want      FallbackAction
	}{
		{
			name:      "visible and embedded redirects",
			condition: Condition{Visible: true, Embedded: true},
			want:      RedirectToSignIn,
		},
		{
			name:      "standalone development suppresses",
			condition: Condition{Visible: true, Embedded: false},
			want:      SuppressRedirect,
		},
		{
			name:      "speculative preload suppresses",
			condition: Condition{Visible: false, Embedded: true},
			want:      SuppressRedirect,
		},
		{
			name:      "hidden standalone suppresses",
			condition: Condition{Visible: false, Embedded: false},
			want:      SuppressRedirect,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveFallback(tt.condition))
		})
	}
}

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSafeExtension(t *testing.T) {
	tests := []struct {
		mimeType string
		want     string
	}{
		{"image/jpeg", ".jpg"},
		{"image/png", ".png"},
		{"image/png; charset=binary", ".png"},
		{" IMAGE/JPEG ", ".jpg"},
		{"text/plain", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GetSafeExtension(tt.mimeType), tt.mimeType)
	}
}

func TestGetExtensionFromFilename(t *testing.T) {
	assert.Equal(t, ".jpg", GetExtensionFromFilename("Photo.JPG"))
	assert.Equal(t, ".png", GetExtensionFromFilename("dir/a.b.png"))
	assert.Equal(t, "", GetExtensionFromFilename("noext"))
}

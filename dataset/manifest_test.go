package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labels.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadManifest(t *testing.T) {
	// Columns may come in any order; extras are ignored
	path := writeManifest(t, "captcha_answer,uniq_id,source\na1b2c,img1,gen\n00000,img2,gen\n")

	samples, err := LoadManifest(path)
	require.NoError(t, err)

	require.Len(t, samples, 2)
	assert.Equal(t, Sample{ID: "img1", Label: "a1b2c"}, samples[0])
	assert.Equal(t, Sample{ID: "img2", Label: "00000"}, samples[1])
}

func TestLoadManifestSkipsBlankRows(t *testing.T) {
	path := writeManifest(t, "uniq_id,captcha_answer\nimg1,a1b2c\n\n,,\nimg2,00000\n")

	samples, err := LoadManifest(path)
	require.NoError(t, err)

	require.Len(t, samples, 2)
	assert.Equal(t, "img1", samples[0].ID)
	assert.Equal(t, "img2", samples[1].ID)
}

func TestLoadManifestHeaderOnly(t *testing.T) {
	path := writeManifest(t, "uniq_id,captcha_answer\n")

	samples, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestLoadManifestMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.csv")

	_, err := LoadManifest(path)
	var manifestErr *InvalidManifestError
	require.ErrorAs(t, err, &manifestErr)
	assert.Equal(t, path, manifestErr.Path)
}

func TestLoadManifestRejectsBadContent(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"missing required columns", "id,answer\nimg1,a1b2c\n"},
		{"row too short", "uniq_id,captcha_answer\nimg1\n"},
		{"empty uniq_id", "uniq_id,captcha_answer\n,a1b2c\n"},
		{"empty captcha_answer", "uniq_id,captcha_answer\nimg1,\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeManifest(t, tc.content)
			_, err := LoadManifest(path)
			var manifestErr *InvalidManifestError
			require.True(t, errors.As(err, &manifestErr), "got %v", err)
			assert.NotEmpty(t, manifestErr.Reason)
		})
	}
}

package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = string(body)
	}
	return out
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestBuildTranscriptOnly(t *testing.T) {
	dir := t.TempDir()
	srt := filepath.Join(dir, "My_Clip.srt")
	require.NoError(t, os.WriteFile(srt, []byte("1\nhello\n"), 0o644))

	data, err := Build("My Clip.mp4", srt, filepath.Join(dir, "My_Clip_translated.srt"), false)
	require.NoError(t, err)

	files := readZip(t, data)
	assert.Equal(t, []string{"My Clip.srt"}, keys(files))
	assert.Equal(t, "1\nhello\n", files["My Clip.srt"])
}

func TestBuildWithTranslation(t *testing.T) {
	dir := t.TempDir()
	srt := filepath.Join(dir, "My_Clip.srt")
	translated := filepath.Join(dir, "My_Clip_translated.srt")
	require.NoError(t, os.WriteFile(srt, []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(translated, []byte("hola"), 0o644))

	data, err := Build("My Clip.mp4", srt, translated, true)
	require.NoError(t, err)

	files := readZip(t, data)
	assert.Equal(t, []string{"My Clip.srt", "My Clip_translated.srt"}, keys(files))
	assert.Equal(t, "hola", files["My Clip_translated.srt"])
}

func TestBuildMissingArtifact(t *testing.T) {
	dir := t.TempDir()
	srt := filepath.Join(dir, "a.srt")

	_, err := Build("a.mp4", srt, "", false)
	assert.ErrorIs(t, err, ErrMissingArtifact)

	require.NoError(t, os.WriteFile(srt, []byte("x"), 0o644))
	_, err = Build("a.mp4", srt, filepath.Join(dir, "a_translated.srt"), true)
	assert.ErrorIs(t, err, ErrMissingArtifact)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "My Clip_subtitles.zip", FileName("My Clip.mp4"))
	assert.Equal(t, "noext_subtitles.zip", FileName("noext"))
	assert.Equal(t, "passwd_subtitles.zip", FileName("../../etc/passwd"))
}

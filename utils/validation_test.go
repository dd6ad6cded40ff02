package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "sensors.csv", want: "sensors.csv"},
		{name: "spaces", in: "my data 2024.csv", want: "my_data_2024.csv"},
		{name: "traversal", in: "../../etc/passwd.csv", want: "passwd.csv"},
		{name: "windows_path", in: `C:\Users\me\data.csv`, want: "data.csv"},
		{name: "non_ascii_stem", in: "센서.csv", want: "dataset.csv"},
		{name: "special_chars", in: "a$b%c.csv", want: "abc.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestIsCSVFile(t *testing.T) {
	assert.True(t, IsCSVFile("a.csv"))
	assert.True(t, IsCSVFile("A.CSV"))
	assert.False(t, IsCSVFile("a.xlsx"))
	assert.False(t, IsCSVFile("csv"))
}

func TestVerifyFileExists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.csv"), []byte("a;b"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	assert.True(t, VerifyFileExists(dir, "x.csv"))
	assert.False(t, VerifyFileExists(dir, "missing.csv"))
	assert.False(t, VerifyFileExists(dir, "sub"))
}

func TestIsValidSessionID(t *testing.T) {
	assert.True(t, IsValidSessionID(GenerateMessageID()))
	assert.False(t, IsValidSessionID("../etc"))
}

func TestWorkspaceWebPath(t *testing.T) {
	assert.Equal(t, "/workspaces/abc/figure-1.png", WorkspaceWebPath("abc", "figure-1.png"))
}

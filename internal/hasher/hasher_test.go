package hasher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("Hello, World!"), 0644))

	digest, err := MD5{}.HashFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, "65a8e27d8879283831b664bd8b7f0ad4", digest)
}

func TestHashFileEmpty(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(filePath, nil, 0644))

	digest, err := MD5{}.HashFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", digest)
}

func TestHashFileMissing(t *testing.T) {
	_, err := MD5{}.HashFile("/non/existent/file.txt")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open file")
}

package gate_test

import (
	"os"
	"path/filepath"
	"testing"

	"askallery/internal/gate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Allows(t *testing.T) {
	p := gate.NewPolicy([]string{" cat ", ""}, []string{"dog"})

	ok, _ := p.Allows("A Cat on a mat")
	assert.True(t, ok)

	ok, reason := p.Allows("cat and DOG")
	assert.False(t, ok)
	assert.Contains(t, reason, "DOG")

	ok, reason = p.Allows("bird")
	assert.False(t, ok)
	assert.Equal(t, "label contains no mandatory keyword", reason)
}

func TestDefaultPolicy(t *testing.T) {
	p := gate.DefaultPolicy()
	assert.Equal(t, []string{"ASUKA"}, p.Mandatory)
	assert.Equal(t, []string{"WWE", "LUCHADORA", "WRESTLER"}, p.Forbidden)
}

func TestLoadPolicyFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("full file", func(t *testing.T) {
		path := filepath.Join(dir, "full.yml")
		require.NoError(t, os.WriteFile(path, []byte("mandatory: [rei, asuka]\nforbidden:\n  - eva\n"), 0o600))

		p, err := gate.LoadPolicyFile(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"REI", "ASUKA"}, p.Mandatory)
		assert.Equal(t, []string{"EVA"}, p.Forbidden)
	})

	t.Run("missing lists fall back", func(t *testing.T) {
		path := filepath.Join(dir, "partial.yml")
		require.NoError(t, os.WriteFile(path, []byte("forbidden: []\n"), 0o600))

		p, err := gate.LoadPolicyFile(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"ASUKA"}, p.Mandatory)
		assert.Empty(t, p.Forbidden)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yml")
		require.NoError(t, os.WriteFile(path, []byte("mandatory: [unclosed"), 0o600))

		_, err := gate.LoadPolicyFile(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := gate.LoadPolicyFile(filepath.Join(dir, "nope.yml"))
		assert.Error(t, err)
	})
}

package gate_test

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/jpeg"
	"testing"

	"askallery/internal/gate"
	"askallery/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareForStorage_BoundsLargestSide(t *testing.T) {
	src := testutil.TinyJPEG(t, 400, 200)

	out, err := gate.PrepareForStorage(src, gate.PrepareOptions{Quality: 70, MaxDimension: 100})
	require.NoError(t, err)
	assert.Equal(t, 100, out.Width)
	assert.Equal(t, 50, out.Height)
	assert.Equal(t, "jpeg", out.SourceFormat)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestPrepareForStorage_KeepsSmallImages(t *testing.T) {
	out, err := gate.PrepareForStorage(testutil.TinyJPEG(t, 30, 60), gate.PrepareOptions{})
	require.NoError(t, err)
	assert.Equal(t, 30, out.Width)
	assert.Equal(t, 60, out.Height)
}

func TestPrepareForStorage_FlattensAlphaOntoWhite(t *testing.T) {
	out, err := gate.PrepareForStorage(testutil.TinyPNG(t, 16, 16), gate.PrepareOptions{Quality: 100})
	require.NoError(t, err)
	assert.Equal(t, "png", out.SourceFormat)

	img, err := jpeg.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	r, g, b, _ := img.At(8, 8).RGBA()
	// Half transparent red over white comes out pink rather than dark red.
	assert.Greater(t, r>>8, uint32(200))
	assert.Greater(t, g>>8, uint32(90))
	assert.Greater(t, b>>8, uint32(90))
}

func TestPrepareForStorage_RejectsGarbage(t *testing.T) {
	_, err := gate.PrepareForStorage([]byte("not an image"), gate.PrepareOptions{})
	assert.ErrorIs(t, err, gate.ErrUnsupportedImage)
}

// pngWithDeclaredSize rewrites the IHDR of a tiny PNG so its header claims
// w x h pixels. The pixel data stays that of the original image.
func pngWithDeclaredSize(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := testutil.TinyPNG(t, 1, 1)
	require.Equal(t, "IHDR", string(data[12:16]))
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestCheckDimensions(t *testing.T) {
	assert.NoError(t, gate.CheckDimensions(testutil.TinyJPEG(t, 100, 50), 0))
	assert.NoError(t, gate.CheckDimensions(testutil.TinyJPEG(t, 100, 50), 5000))

	err := gate.CheckDimensions(testutil.TinyJPEG(t, 100, 51), 5000)
	assert.ErrorIs(t, err, gate.ErrImageTooLarge)

	err = gate.CheckDimensions(pngWithDeclaredSize(t, 30000, 30000), 0)
	assert.ErrorIs(t, err, gate.ErrImageTooLarge)

	err = gate.CheckDimensions([]byte("not an image"), 0)
	assert.ErrorIs(t, err, gate.ErrUnsupportedImage)
}

func TestPrepareForStorage_RejectsOversizedHeaderBeforeDecoding(t *testing.T) {
	_, err := gate.PrepareForStorage(pngWithDeclaredSize(t, 30000, 30000), gate.PrepareOptions{})
	assert.ErrorIs(t, err, gate.ErrImageTooLarge)

	_, err = gate.PrepareForStorage(testutil.TinyPNG(t, 40, 40), gate.PrepareOptions{MaxPixels: 1000})
	assert.ErrorIs(t, err, gate.ErrImageTooLarge)
}

package zipalign

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/zipalign/core/testutil"
)

func TestArchiveEntries(t *testing.T) {
	t.Parallel()

	a, err := OpenArchive(testutil.NewMockByteSource(testutil.BuildSampleAPK()))
	require.NoError(t, err)
	assert.Equal(t, "sample apk", a.Comment())

	files := testutil.SampleAPK()
	require.Equal(t, len(files), a.Len())

	var i int
	for entry, err := range a.Entries() {
		require.NoError(t, err)
		f := files[i]
		assert.Equal(t, f.Name, entry.Name)
		assert.Equal(t, f.Stored, entry.Stored(), f.Name)
		assert.Equal(t, f.Comment, entry.Comment, f.Name)
		assert.Equal(t, uint64(len(f.Data)), entry.UncompressedSize, f.Name)
		assert.Equal(t, testutil.FixtureTime, entry.Modified, f.Name)
		if len(f.Extra) > 0 {
			assert.Equal(t, f.Extra, entry.Extra, f.Name)
		}
		assert.Equal(t, f.Name == "res/", entry.IsDir(), f.Name)
		i++
	}
	assert.Equal(t, len(files), i)
}

func TestArchiveEntriesStopEarly(t *testing.T) {
	t.Parallel()

	a, err := OpenArchive(testutil.NewMockByteSource(testutil.BuildSampleAPK()))
	require.NoError(t, err)

	var seen int
	for range a.Entries() {
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestArchiveReadRaw(t *testing.T) {
	t.Parallel()

	data := testutil.BuildSampleAPK()
	a, err := OpenArchive(testutil.NewMockByteSource(data))
	require.NoError(t, err)

	b, err := a.ReadRaw(0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("PK\x03\x04"), b)

	_, err = a.ReadRaw(a.Size()-2, 4)
	require.ErrorIs(t, err, ErrMalformed)

	_, err = a.ReadRaw(a.Size()+10, 1)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestOpenArchiveMalformed(t *testing.T) {
	t.Parallel()

	_, err := OpenArchive(testutil.NewMockByteSource([]byte("PK")))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestOpenFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "app.apk")
	require.NoError(t, os.WriteFile(path, testutil.BuildSampleAPK(), 0o600))

	f, err := OpenFile(path)
	require.NoError(t, err)
	assert.Equal(t, len(testutil.SampleAPK()), f.Len())
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err = OpenFile(dir)
	require.Error(t, err)

	_, err = OpenFile(filepath.Join(dir, "missing.apk"))
	require.Error(t, err)
}

package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/shread/internal/config"
)

func TestLocal_SaveRestore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewLocal(filepath.Join(dir, "archive"))

	src := filepath.Join(dir, "SNODAS_20200201.tar")
	require.NoError(t, os.WriteFile(src, []byte("tarball"), 0o644))
	require.NoError(t, store.Save(ctx, "snodas", src))
	assert.FileExists(t, filepath.Join(dir, "archive", "snodas", "SNODAS_20200201.tar"))

	dst := filepath.Join(dir, "work", "SNODAS_20200201.tar")
	ok, err := store.Restore(ctx, "snodas", "SNODAS_20200201.tar", dst)
	require.NoError(t, err)
	assert.True(t, ok)
	data, _ := os.ReadFile(dst)
	assert.Equal(t, "tarball", string(data))

	ok, err = store.Restore(ctx, "snodas", "SNODAS_20200202.tar", dst)
	require.NoError(t, err)
	assert.False(t, ok)
}

type fakeStore struct {
	saved    []string
	has      bool
	saveErr  error
	restores int
}

func (f *fakeStore) Save(_ context.Context, product, path string) error {
	f.saved = append(f.saved, product+"/"+filepath.Base(path))
	return f.saveErr
}

func (f *fakeStore) Restore(_ context.Context, _, _, _ string) (bool, error) {
	f.restores++
	return f.has, nil
}

func TestMulti(t *testing.T) {
	ctx := context.Background()
	a := &fakeStore{saveErr: errors.New("disk full")}
	b := &fakeStore{has: true}
	m := NewMulti(a, nil, b)
	assert.Equal(t, 2, m.Len())

	err := m.Save(ctx, "ndfd", "/tmp/ds.maxt.bin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, []string{"ndfd/ds.maxt.bin"}, b.saved, "second store still receives the payload")

	ok, err := m.Restore(ctx, "ndfd", "ds.maxt.bin", "/tmp/x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, a.restores)
	assert.Equal(t, 1, b.restores)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "modscag/20200201_h09v04.tif", ObjectKey("modscag", "20200201_h09v04.tif"))
}

func TestValidateS3(t *testing.T) {
	valid := config.S3Config{Endpoint: "localhost:9000", Bucket: "shread"}
	require.NoError(t, ValidateS3(&valid))

	invalid := valid
	invalid.Endpoint = "http://localhost:9000"
	assert.Error(t, ValidateS3(&invalid))

	invalid = valid
	invalid.Bucket = ""
	assert.Error(t, ValidateS3(&invalid))
}

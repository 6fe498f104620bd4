package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/dataset-synth/internal/config"
)

type mockS3Client struct {
	mu           sync.Mutex
	Objects      map[string][]byte
	ContentTypes map[string]string
	PutErr       error
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{Objects: map[string][]byte{}, ContentTypes: map[string]string{}}
}

func (m *mockS3Client) GetObject(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return data, nil
}

func (m *mockS3Client) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[key] = data
	m.ContentTypes[key] = contentType
	return nil
}

func (m *mockS3Client) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.Objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{"a/b.jpg", "a/b.jpg", false},
		{"/a//b.jpg", "a/b.jpg", false},
		{`a\b.jpg`, "a/b.jpg", false},
		{"a/../b.jpg", "b.jpg", false},
		{"../b.jpg", "", true},
		{"", "", true},
		{".", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := CleanKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocalSink_Put(t *testing.T) {
	root := t.TempDir()
	sink := NewLocalSink(root)

	err := sink.Put(context.Background(), "digits/7/bg_fg.jpg", []byte("jpeg"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "digits", "7", "bg_fg.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(root, "digits", "7"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Equal(t, filepath.Join(root, "digits", "7", "bg_fg.jpg"), sink.Location("digits/7/bg_fg.jpg"))
}

func TestLocalSink_PutOverwrites(t *testing.T) {
	sink := NewLocalSink(t.TempDir())
	ctx := context.Background()

	require.NoError(t, sink.Put(ctx, "a.txt", []byte("one")))
	require.NoError(t, sink.Put(ctx, "a.txt", []byte("two")))

	data, err := os.ReadFile(sink.Location("a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestLocalSink_PutRejectsEscapes(t *testing.T) {
	sink := NewLocalSink(t.TempDir())
	assert.Error(t, sink.Put(context.Background(), "../outside.jpg", []byte("x")))
}

func TestLocalSink_PutCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := NewLocalSink(t.TempDir())
	assert.ErrorIs(t, sink.Put(ctx, "a.jpg", []byte("x")), context.Canceled)
}

func TestS3Sink_Put(t *testing.T) {
	client := newMockS3Client()
	sink := NewS3Sink(client, "datasets", "synth/run1")
	ctx := context.Background()

	require.NoError(t, sink.Put(ctx, "3/bg_fg.jpg", []byte("jpeg")))
	require.NoError(t, sink.Put(ctx, "3/bg_fg.txt", []byte("0 0.5 0.5 0.1 0.1\n")))

	assert.Equal(t, []byte("jpeg"), client.Objects["synth/run1/3/bg_fg.jpg"])
	assert.Equal(t, "image/jpeg", client.ContentTypes["synth/run1/3/bg_fg.jpg"])
	assert.Equal(t, "text/plain", client.ContentTypes["synth/run1/3/bg_fg.txt"])

	keys, err := sink.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"synth/run1/3/bg_fg.jpg", "synth/run1/3/bg_fg.txt"}, keys)

	assert.Equal(t, "s3://datasets/synth/run1/3/bg_fg.jpg", sink.Location("3/bg_fg.jpg"))
	assert.Equal(t, "s3://datasets/synth/run1", sink.Location(""))
}

func TestS3Sink_NoPrefix(t *testing.T) {
	client := newMockS3Client()
	sink := NewS3Sink(client, "datasets", "")

	require.NoError(t, sink.Put(context.Background(), "a.png", []byte("png")))
	assert.Contains(t, client.Objects, "a.png")
	assert.Equal(t, "image/png", client.ContentTypes["a.png"])
}

func TestS3Sink_PutError(t *testing.T) {
	client := newMockS3Client()
	client.PutErr = errors.New("access denied")
	sink := NewS3Sink(client, "datasets", "p")

	err := sink.Put(context.Background(), "a.jpg", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p/a.jpg")
}

func TestOpen_LocalWithoutBucket(t *testing.T) {
	dir := t.TempDir()
	sink, err := Open(context.Background(), &config.Config{}, dir)
	require.NoError(t, err)

	local, ok := sink.(*LocalSink)
	require.True(t, ok)
	assert.Equal(t, dir, local.Root)
}

package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mharburg8/talk-to-your-inner-child/internal/logging"
)

func TestNewKeyFormat(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	key := NewKey(KindAssistantAudio, "user-1", "turn-1700000000123.wav", now)

	assert.True(t, strings.HasPrefix(key, "assistant-audio/user-1/1700000000123-"))
	assert.True(t, strings.HasSuffix(key, "-turn-1700000000123.wav"))
	assert.True(t, strings.HasPrefix(key, UserPrefix(KindAssistantAudio, "user-1")))
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"voice memo.m4a":  "voice_memo.m4a",
		"../../etc/passwd": "_.._etc_passwd",
		"":                 "file",
		"声音.wav":           "__.wav",
		"...":              "file",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeName(in), in)
	}
	assert.Len(t, SanitizeName(strings.Repeat("a", 300)), maxNameLen)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore("", time.Minute)
	m.now = func() time.Time { return time.Unix(100, 0) }

	_, err := m.SignedDownloadURL(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.PutObject(ctx, "a/b.wav", "audio/wav", []byte("RIFF")))
	url, err := m.SignedDownloadURL(ctx, "a/b.wav")
	require.NoError(t, err)
	assert.Equal(t, "memory://local/a/b.wav?expires=160&method=GET", url)

	obj, ok := m.Object("a/b.wav")
	require.True(t, ok)
	assert.Equal(t, "audio/wav", obj.ContentType)

	require.NoError(t, m.DeleteObject(ctx, "a/b.wav"))
	assert.Equal(t, 0, m.Len())
}

type flakyStore struct {
	*MemoryStore
	mu      sync.Mutex
	deleted []string
}

func (f *flakyStore) DeleteObject(ctx context.Context, key string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, key)
	f.mu.Unlock()
	if key == "bad" {
		return errors.New("boom")
	}
	return f.MemoryStore.DeleteObject(ctx, key)
}

func TestDeleteAllIsBestEffort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &flakyStore{MemoryStore: NewMemoryStore("", time.Minute)}
	for _, k := range []string{"k1", "k2"} {
		require.NoError(t, store.PutObject(ctx, k, "audio/wav", nil))
	}
	cancel()

	failed := DeleteAll(ctx, store, []string{"k1", "bad", "", "k2"}, logging.Nop{})

	assert.Equal(t, 1, failed)

	assert.ElementsMatch(t, []string{"k1", "bad", "k2"}, store.deleted)
	assert.Equal(t, 0, store.Len())
}

type fakeS3 struct {
	put     *s3.PutObjectInput
	body    []byte
	deleted string
	headErr error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = *in.Key
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, _ *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return &s3.HeadObjectOutput{}, f.headErr
}

type fakePresigner struct {
	expires time.Duration
	err     error
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: "https://bucket.example/" + *in.Key + "?sig=get", Method: "GET"}, nil
}

func (f *fakePresigner) PresignPutObject(_ context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://bucket.example/" + *in.Key + "?sig=put", Method: "PUT"}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	client := &fakeS3{}
	presign := &fakePresigner{}
	s := newS3Store(client, presign, "media", 30*time.Minute)

	require.NoError(t, s.PutObject(ctx, "k.wav", "audio/wav", []byte("abc")))
	assert.Equal(t, "media", *client.put.Bucket)
	assert.Equal(t, "audio/wav", *client.put.ContentType)
	assert.Equal(t, int64(3), *client.put.ContentLength)
	assert.Equal(t, "abc", string(client.body))

	url, err := s.SignedDownloadURL(ctx, "k.wav")
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.example/k.wav?sig=get", url)
	assert.Equal(t, 30*time.Minute, presign.expires)

	url, err = s.SignedUploadURL(ctx, "up.wav", "audio/wav")
	require.NoError(t, err)
	assert.Contains(t, url, "sig=put")

	require.NoError(t, s.DeleteObject(ctx, "k.wav"))
	assert.Equal(t, "k.wav", client.deleted)

	ok, err := s.Exists(ctx, "k.wav")
	require.NoError(t, err)
	assert.True(t, ok)

	client.headErr = &types.NotFound{}
	ok, err = s.Exists(ctx, "k.wav")
	require.NoError(t, err)
	assert.False(t, ok)

	presign.err = errors.New("no creds")
	_, err = s.SignedDownloadURL(ctx, "k.wav")
	require.Error(t, err)
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Options{Region: "us-east-1"})
	require.Error(t, err)
}

func TestNewS3StoreDefaultExpiry(t *testing.T) {
	s := newS3Store(&fakeS3{}, &fakePresigner{}, "b", 0)
	assert.Equal(t, time.Hour, s.expiry)
}

package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type fakeS3Client struct {
	objects map[string][]byte
	puts    []*s3.PutObjectInput
	getErr  error
}

func (f *fakeS3Client) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3Client) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "missing"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "memory", cfg: Config{Driver: DriverMemory}},
		{name: "unsupported driver", cfg: Config{Driver: "gcs"}, wantErr: true},
		{name: "s3 missing bucket", cfg: Config{Driver: DriverS3, S3Client: &fakeS3Client{}}, wantErr: true},
		{name: "s3 missing client", cfg: Config{Driver: DriverS3, Bucket: "bridger-ledger"}, wantErr: true},
		{name: "default driver is s3", cfg: Config{Bucket: "bridger-ledger", S3Client: &fakeS3Client{}}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store, err := New(tc.cfg)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil || store == nil {
				t.Fatalf("New: %v", err)
			}
		})
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := New(Config{Driver: DriverMemory, Prefix: "/wallets/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	payload := []byte(`{"stats":{"total_transactions":1}}`)
	if err := store.Put(ctx, "/ledger/latest.json", payload); err != nil {
		t.Fatalf("Put: %v", err)
	}
	payload[0] = 'x'

	got, err := store.Get(ctx, "ledger/latest.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"stats":{"total_transactions":1}}` {
		t.Fatalf("payload not copied on put: %s", got)
	}
	if _, err := store.Get(ctx, "ledger/other.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestObjectKeyValidation(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"", " a", "a\n", "../escape", "/"} {
		if _, err := objectKey("p", key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("objectKey(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
	got, err := objectKey("p", "/ledger/latest.json")
	if err != nil || got != "p/ledger/latest.json" {
		t.Fatalf("objectKey: got %q, %v", got, err)
	}
}

func TestS3StorePutGet(t *testing.T) {
	t.Parallel()

	client := &fakeS3Client{}
	store, err := New(Config{Bucket: "bridger-ledger", Prefix: "prod", S3Client: client})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := store.Put(ctx, "ledger/latest.json", []byte(`{}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(client.puts) != 1 || aws.ToString(client.puts[0].Key) != "prod/ledger/latest.json" {
		t.Fatalf("unexpected put: %+v", client.puts)
	}
	if aws.ToString(client.puts[0].ContentType) != "application/json" {
		t.Fatalf("content type: %q", aws.ToString(client.puts[0].ContentType))
	}
	got, err := store.Get(ctx, "ledger/latest.json")
	if err != nil || string(got) != `{}` {
		t.Fatalf("Get: %q %v", got, err)
	}
	if _, err := store.Get(ctx, "ledger/missing.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestS3StoreGetErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("access denied")
	store, err := New(Config{Bucket: "b", S3Client: &fakeS3Client{getErr: boom}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := store.Get(context.Background(), "k"); !errors.Is(err, boom) || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrapped access error, got %v", err)
	}

	client := &fakeS3Client{objects: map[string][]byte{"b/k": []byte(strings.Repeat("x", 64))}}
	small, err := New(Config{Bucket: "b", S3Client: client, MaxGetSize: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := small.Get(context.Background(), "k"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

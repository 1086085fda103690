package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"

	"staffdesk/internal/platform/blob"
)

// fakeS3 answers the handful of path-style S3 calls the store makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func reply(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	xml := http.Header{"Content-Type": {"application/xml"}}
	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k]))
		}
		b.WriteString("</ListBucketResult>")
		return reply(http.StatusOK, b.String(), xml), nil
	case req.Method == http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		f.objects[key] = body
		f.types[key] = req.Header.Get("Content-Type")
		return reply(http.StatusOK, "", http.Header{"Etag": {`"etag"`}}), nil
	case req.Method == http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			return reply(http.StatusNotFound, `<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`, xml), nil
		}
		return &http.Response{
			StatusCode:    http.StatusOK,
			Header:        http.Header{"Content-Type": {f.types[key]}, "Content-Length": {fmt.Sprint(len(data))}},
			Body:          io.NopCloser(bytes.NewReader(data)),
			ContentLength: int64(len(data)),
		}, nil
	case req.Method == http.MethodDelete:
		delete(f.objects, key)
		return reply(http.StatusNoContent, "", nil), nil
	}
	return reply(http.StatusNotImplemented, "", nil), nil
}

func newTestStore(t *testing.T) (*Store, *fakeS3) {
	t.Helper()
	fake := newFakeS3()
	store, err := New(context.Background(), Config{
		Bucket:          "archive",
		Endpoint:        "https://s3.test.local",
		PathStyle:       true,
		AccessKeyID:     "AKIATEST",
		SecretAccessKey: "secret",
		HTTPClient:      &http.Client{Transport: fake},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return store, fake
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, fake := newTestStore(t)

	info, err := store.Put(ctx, "archive/s1/k1.pdf", strings.NewReader("%PDF-1.3"), blob.PutOptions{ContentType: "application/pdf"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 8 || string(fake.objects["archive/s1/k1.pdf"]) != "%PDF-1.3" {
		t.Fatalf("unexpected put: %+v %q", info, fake.objects)
	}

	got, rc, err := store.Get(ctx, "archive/s1/k1.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "%PDF-1.3" || got.ContentType != "application/pdf" {
		t.Fatalf("unexpected object: %+v %q", got, body)
	}

	list, err := store.List(ctx, "archive/s1/")
	if err != nil || len(list) != 1 || list[0].Key != "archive/s1/k1.pdf" || list[0].Size != 8 {
		t.Fatalf("unexpected list: %+v %v", list, err)
	}

	if err := store.Delete(ctx, "archive/s1/k1.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := store.Get(ctx, "archive/s1/k1.pdf"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected missing bucket error")
	}
}

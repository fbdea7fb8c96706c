package storage_test

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"kcalify-backend/internal/storage"
)

const testBucket = "meal-photos"

type gcsUpload struct {
	name        string
	contentType string
	data        []byte
}

// fakeGCS answers the JSON API calls made by GCSStore.
type fakeGCS struct {
	t          *testing.T
	failUpload bool

	mu      sync.Mutex
	uploads []gcsUpload
	acls    map[string]string
}

func newFakeGCS(t *testing.T) (*fakeGCS, *httptest.Server) {
	t.Helper()
	f := &fakeGCS{t: t, acls: make(map[string]string)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGCS) serve(w http.ResponseWriter, r *http.Request) {
	objectPrefix := "/storage/v1/b/" + testBucket + "/o/"

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/upload/storage/v1/b/"+testBucket+"/o":
		if f.failUpload {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error":{"code":500,"message":"backend error"}}`)
			return
		}
		upload := f.readUpload(r)
		f.mu.Lock()
		f.uploads = append(f.uploads, upload)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"bucket":      testBucket,
			"name":        upload.name,
			"contentType": upload.contentType,
			"size":        strconv.Itoa(len(upload.data)),
		})

	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, objectPrefix) && strings.HasSuffix(r.URL.Path, "/acl/allUsers"):
		var acl struct {
			Entity string `json:"entity"`
			Role   string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&acl); err != nil {
			f.t.Errorf("decode acl: %v", err)
		}
		object := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, objectPrefix), "/acl/allUsers")
		f.mu.Lock()
		f.acls[object] = acl.Role
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(acl)

	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	}
}

func (f *fakeGCS) recorded() ([]gcsUpload, map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acls := make(map[string]string, len(f.acls))
	for k, v := range f.acls {
		acls[k] = v
	}
	return append([]gcsUpload(nil), f.uploads...), acls
}

// readUpload decodes a multipart/related media upload: JSON metadata first,
// then the object bytes.
func (f *fakeGCS) readUpload(r *http.Request) gcsUpload {
	upload := gcsUpload{name: r.URL.Query().Get("name")}

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		f.t.Errorf("unexpected upload content type %q", r.Header.Get("Content-Type"))
		return upload
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	meta, err := mr.NextPart()
	if err != nil {
		f.t.Errorf("read metadata part: %v", err)
		return upload
	}
	var attrs struct {
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
	}
	if err := json.NewDecoder(meta).Decode(&attrs); err != nil {
		f.t.Errorf("decode metadata: %v", err)
	}
	if upload.name == "" {
		upload.name = attrs.Name
	}
	upload.contentType = attrs.ContentType

	media, err := mr.NextPart()
	if err != nil {
		f.t.Errorf("read media part: %v", err)
		return upload
	}
	upload.data, _ = io.ReadAll(media)
	return upload
}

func newTestGCSStore(t *testing.T, srv *httptest.Server, publicACL bool) *storage.GCSStore {
	t.Helper()
	store, err := storage.NewGCSStore(context.Background(), storage.GCSConfig{
		Bucket:    testBucket,
		PublicACL: publicACL,
		ClientOptions: []option.ClientOption{
			option.WithEndpoint(srv.URL + "/storage/v1/"),
			option.WithoutAuthentication(),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGCSStore_StorePublic(t *testing.T) {
	fake, srv := newFakeGCS(t)
	store := newTestGCSStore(t, srv, true)
	data := []byte("\x89PNG\r\n\x1a\nmeal")

	url, err := store.Store(context.Background(), "user-42", data, "image/png")
	require.NoError(t, err)

	uploads, acls := fake.recorded()
	require.Len(t, uploads, 1)
	upload := uploads[0]
	assert.Equal(t, "image/png", upload.contentType)
	assert.Equal(t, data, upload.data)

	owner, file, found := strings.Cut(upload.name, "/")
	require.True(t, found, upload.name)
	assert.Equal(t, "user-42", owner)
	require.True(t, strings.HasSuffix(file, ".png"), file)
	_, err = uuid.Parse(strings.TrimSuffix(file, ".png"))
	assert.NoError(t, err)

	assert.Equal(t, map[string]string{upload.name: "READER"}, acls)
	assert.Equal(t, storage.PublicGCSURL(testBucket, upload.name), url)
}

func TestGCSStore_StoreWithoutACL(t *testing.T) {
	fake, srv := newFakeGCS(t)
	store := newTestGCSStore(t, srv, false)

	url, err := store.Store(context.Background(), "user-42", []byte{0xFF, 0xD8, 0xFF}, "image/jpeg")
	require.NoError(t, err)

	uploads, acls := fake.recorded()
	require.Len(t, uploads, 1)
	assert.True(t, strings.HasSuffix(uploads[0].name, ".jpg"))
	assert.Empty(t, acls)
	assert.Equal(t, storage.PublicGCSURL(testBucket, uploads[0].name), url)
}

func TestGCSStore_UploadFailure(t *testing.T) {
	fake, srv := newFakeGCS(t)
	fake.failUpload = true
	store := newTestGCSStore(t, srv, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url, err := store.Store(ctx, "user-42", []byte{0xFF, 0xD8, 0xFF}, "image/jpeg")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrUploadFailed)
	assert.Empty(t, url)
	_, acls := fake.recorded()
	assert.Empty(t, acls)
}

package blob

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/einyx/blobstore-go/internal/transport"
	"github.com/einyx/blobstore-go/pkg/pipeline"
)

// fakeStore is an in-memory stand-in for the storage service, wired through
// gorilla/mux. Every request is signature-checked against the same shared
// key the client signs with, so end-to-end authentication is exercised, not
// just header presence.
type fakeStore struct {
	t    *testing.T
	cred *SharedKeyCredential

	mu         sync.Mutex
	containers map[string]bool
	blobs      map[string][]byte            // "container/blob"
	staged     map[string]map[string][]byte // blob key -> block id -> data
}

func newFakeStore(t *testing.T) (*fakeStore, *httptest.Server) {
	t.Helper()
	fs := &fakeStore{
		t:          t,
		cred:       testCredential(t),
		containers: map[string]bool{},
		blobs:      map[string][]byte{},
		staged:     map[string]map[string][]byte{},
	}

	r := mux.NewRouter()
	r.Use(fs.authenticate)
	r.HandleFunc("/{container}", fs.createContainer).Methods(http.MethodPut).Queries("restype", "container")
	r.HandleFunc("/{container}", fs.deleteContainer).Methods(http.MethodDelete).Queries("restype", "container")
	r.HandleFunc("/{container}/{blob:.+}", fs.stageBlock).Methods(http.MethodPut).Queries("comp", "block")
	r.HandleFunc("/{container}/{blob:.+}", fs.commitBlockList).Methods(http.MethodPut).Queries("comp", "blocklist")
	r.HandleFunc("/{container}/{blob:.+}", fs.putBlob).Methods(http.MethodPut)
	r.HandleFunc("/{container}/{blob:.+}", fs.getBlob).Methods(http.MethodGet)
	r.HandleFunc("/{container}/{blob:.+}", fs.headBlob).Methods(http.MethodHead)
	r.HandleFunc("/{container}/{blob:.+}", fs.deleteBlob).Methods(http.MethodDelete)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return fs, srv
}

// authenticate recomputes the shared-key signature from the incoming request
// and rejects anything that does not match byte for byte.
func (fs *fakeStore) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signed, err := pipeline.NewRequest(r.Method, *r.URL, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		signed.Header = r.Header.Clone()
		signed.Header.Del("Content-Length")
		if r.ContentLength > 0 {
			signed.Header.Set("Content-Length", strconv.FormatInt(r.ContentLength, 10))
		}
		want := "SharedKey " + fs.cred.AccountName() + ":" + fs.cred.ComputeHMACSHA256(fs.cred.buildStringToSign(signed))
		if got := r.Header.Get("Authorization"); got != want {
			fs.t.Errorf("%s %s: Authorization = %q, want %q", r.Method, r.URL, got, want)
			fs.fail(w, http.StatusForbidden, "AuthenticationFailed")
			return
		}
		if r.Header.Get("x-ms-date") == "" {
			fs.t.Errorf("%s %s: missing x-ms-date", r.Method, r.URL)
		}
		if r.Header.Get("x-ms-client-request-id") == "" {
			fs.t.Errorf("%s %s: missing x-ms-client-request-id", r.Method, r.URL)
		}
		next.ServeHTTP(w, r)
	})
}

func (fs *fakeStore) fail(w http.ResponseWriter, code int, serviceCode string) {
	w.Header().Set("x-ms-error-code", serviceCode)
	w.Header().Set("x-ms-request-id", uuid.NewString())
	w.WriteHeader(code)
	fmt.Fprintf(w, "<Error><Code>%s</Code></Error>", serviceCode)
}

func (fs *fakeStore) stamp(w http.ResponseWriter) {
	w.Header().Set("x-ms-request-id", uuid.NewString())
	w.Header().Set("ETag", `"0x1"`)
}

func (fs *fakeStore) createContainer(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["container"]
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.containers[name] {
		fs.fail(w, http.StatusConflict, "ContainerAlreadyExists")
		return
	}
	fs.containers[name] = true
	fs.stamp(w)
	w.WriteHeader(http.StatusCreated)
}

func (fs *fakeStore) deleteContainer(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["container"]
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.containers[name] {
		fs.fail(w, http.StatusNotFound, "ContainerNotFound")
		return
	}
	delete(fs.containers, name)
	fs.stamp(w)
	w.WriteHeader(http.StatusAccepted)
}

func (fs *fakeStore) blobKey(r *http.Request) string {
	v := mux.Vars(r)
	return v["container"] + "/" + v["blob"]
}

func (fs *fakeStore) putBlob(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("x-ms-blob-type") != "BlockBlob" {
		fs.fail(w, http.StatusBadRequest, "MissingRequiredHeader")
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		fs.fail(w, http.StatusInternalServerError, "InternalError")
		return
	}
	fs.mu.Lock()
	fs.blobs[fs.blobKey(r)] = data
	fs.mu.Unlock()
	fs.stamp(w)
	w.WriteHeader(http.StatusCreated)
}

func (fs *fakeStore) stageBlock(w http.ResponseWriter, r *http.Request) {
	blockID := r.URL.Query().Get("blockid")
	if blockID == "" {
		fs.fail(w, http.StatusBadRequest, "MissingRequiredQueryParameter")
		return
	}
	data, _ := io.ReadAll(r.Body)
	key := fs.blobKey(r)
	fs.mu.Lock()
	if fs.staged[key] == nil {
		fs.staged[key] = map[string][]byte{}
	}
	fs.staged[key][blockID] = data
	fs.mu.Unlock()
	fs.stamp(w)
	w.WriteHeader(http.StatusCreated)
}

func (fs *fakeStore) commitBlockList(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var list blockList
	if err := decodeBlockList(body, &list); err != nil {
		fs.fail(w, http.StatusBadRequest, "InvalidXmlDocument")
		return
	}
	key := fs.blobKey(r)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var assembled []byte
	for _, id := range list.Latest {
		data, ok := fs.staged[key][id]
		if !ok {
			fs.fail(w, http.StatusBadRequest, "InvalidBlockList")
			return
		}
		assembled = append(assembled, data...)
	}
	fs.blobs[key] = assembled
	delete(fs.staged, key)
	fs.stamp(w)
	w.WriteHeader(http.StatusCreated)
}

func (fs *fakeStore) getBlob(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	data, ok := fs.blobs[fs.blobKey(r)]
	fs.mu.Unlock()
	if !ok {
		fs.fail(w, http.StatusNotFound, "BlobNotFound")
		return
	}
	fs.stamp(w)
	if rng := r.Header.Get("x-ms-range"); rng != "" {
		start, end, err := parseByteRange(rng, int64(len(data)))
		if err != nil {
			fs.fail(w, http.StatusBadRequest, "InvalidRange")
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(data)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[start : end+1])
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (fs *fakeStore) headBlob(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	data, ok := fs.blobs[fs.blobKey(r)]
	fs.mu.Unlock()
	if !ok {
		fs.fail(w, http.StatusNotFound, "BlobNotFound")
		return
	}
	fs.stamp(w)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("x-ms-blob-type", "BlockBlob")
	w.WriteHeader(http.StatusOK)
}

func (fs *fakeStore) deleteBlob(w http.ResponseWriter, r *http.Request) {
	key := fs.blobKey(r)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.blobs[key]; !ok {
		fs.fail(w, http.StatusNotFound, "BlobNotFound")
		return
	}
	delete(fs.blobs, key)
	fs.stamp(w)
	w.WriteHeader(http.StatusAccepted)
}

func parseByteRange(rng string, size int64) (start, end int64, err error) {
	window, ok := strings.CutPrefix(rng, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("bad range %q", rng)
	}
	from, to, _ := strings.Cut(window, "-")
	if start, err = strconv.ParseInt(from, 10, 64); err != nil {
		return 0, 0, err
	}
	if to == "" {
		return start, size - 1, nil
	}
	if end, err = strconv.ParseInt(to, 10, 64); err != nil {
		return 0, 0, err
	}
	if end >= size {
		end = size - 1
	}
	return start, end, nil
}

func decodeBlockList(body []byte, list *blockList) error {
	return xml.Unmarshal(body, list)
}

// blobData reads stored blob bytes under the lock.
func (fs *fakeStore) blobData(key string) []byte {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.blobs[key]
}

func newFakeService(t *testing.T) (*fakeStore, ServiceURL) {
	t.Helper()
	fs, srv := newFakeStore(t)
	p, err := NewPipeline(fs.cred, PipelineOptions{
		Retry:     fastRetryOptions(3, ""),
		Log:       quietLog(),
		Transport: transport.NewSenderWithClient(srv.Client()),
	})
	if err != nil {
		t.Fatal(err)
	}
	return fs, NewServiceURL(mustParseURL(t, srv.URL), p)
}

func TestContainerLifecycle(t *testing.T) {
	_, svc := newFakeService(t)
	ctx := context.Background()
	container := svc.NewContainerURL("logs")

	if _, err := container.Create(ctx, Metadata{"env": "test"}, PublicAccessNone); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := container.Create(ctx, nil, PublicAccessNone)
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("second create: err = %v, want StorageError", err)
	}
	if se.StatusCode != http.StatusConflict || se.ServiceCode != "ContainerAlreadyExists" {
		t.Fatalf("second create: %+v", se)
	}

	if _, err := container.Delete(ctx, LeaseAccessConditions{}); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestBlockBlobUploadDownloadDelete(t *testing.T) {
	fs, svc := newFakeService(t)
	ctx := context.Background()
	blob := svc.NewContainerURL("logs").NewBlockBlobURL("2025/08/app.log")
	content := []byte("line one\nline two\n")

	if _, err := blob.Upload(ctx, bytes.NewReader(content), BlobHTTPHeaders{ContentType: "text/plain"}, nil, BlobAccessConditions{}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if got := fs.blobData("logs/2025/08/app.log"); !bytes.Equal(got, content) {
		t.Fatalf("stored %q, want %q", got, content)
	}

	dr, err := blob.Download(ctx, 0, CountToEnd, BlobAccessConditions{})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	got, err := io.ReadAll(dr.Body())
	dr.Body().Close()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("downloaded %q, want %q", got, content)
	}

	// Ranged read returns 206 with only the requested window.
	dr, err = blob.Download(ctx, 5, 3, BlobAccessConditions{})
	if err != nil {
		t.Fatalf("ranged download: %v", err)
	}
	got, _ = io.ReadAll(dr.Body())
	dr.Body().Close()
	if string(got) != string(content[5:8]) {
		t.Fatalf("range read %q, want %q", got, content[5:8])
	}

	if _, err := blob.Delete(ctx, DeleteSnapshotsOptionNone, BlobAccessConditions{}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = blob.GetProperties(ctx, BlobAccessConditions{})
	var se *StorageError
	if !errors.As(err, &se) || se.ServiceCode != "BlobNotFound" {
		t.Fatalf("props after delete: %v", err)
	}
}

func TestStageAndCommitBlocks(t *testing.T) {
	fs, svc := newFakeService(t)
	ctx := context.Background()
	blob := svc.NewContainerURL("logs").NewBlockBlobURL("big.bin")

	parts := [][]byte{[]byte("alpha-"), []byte("beta-"), []byte("gamma")}
	ids := make([]string, len(parts))
	for i, part := range parts {
		ids[i] = BlockID([]byte{byte(i)})
		if _, err := blob.StageBlock(ctx, ids[i], bytes.NewReader(part), LeaseAccessConditions{}); err != nil {
			t.Fatalf("stage %d: %v", i, err)
		}
	}

	// Commit out of staging order; the list order is what the blob becomes.
	order := []string{ids[2], ids[0], ids[1]}
	if _, err := blob.CommitBlockList(ctx, order, BlobHTTPHeaders{}, nil, BlobAccessConditions{}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got, want := string(fs.blobData("logs/big.bin")), "gammaalpha-beta-"; got != want {
		t.Fatalf("assembled %q, want %q", got, want)
	}

	// Committing an id that was never staged is a client-visible error.
	_, err := blob.CommitBlockList(ctx, []string{BlockID([]byte("missing"))}, BlobHTTPHeaders{}, nil, BlobAccessConditions{})
	var se *StorageError
	if !errors.As(err, &se) || se.ServiceCode != "InvalidBlockList" {
		t.Fatalf("commit unknown block: %v", err)
	}
}

func TestStorageErrorCarriesDetails(t *testing.T) {
	_, svc := newFakeService(t)
	blob := svc.NewContainerURL("logs").NewBlobURL("missing.txt")

	_, err := blob.Download(context.Background(), 0, CountToEnd, BlobAccessConditions{})
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StorageError", err)
	}
	if se.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d", se.StatusCode)
	}
	if se.ServiceCode != "BlobNotFound" {
		t.Errorf("ServiceCode = %q", se.ServiceCode)
	}
	if se.RequestID == "" {
		t.Error("missing request id")
	}
	if !strings.Contains(se.Details, "BlobNotFound") {
		t.Errorf("Details = %q", se.Details)
	}
	if se.Temporary() {
		t.Error("404 must not be temporary")
	}
}

package blob

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/einyx/blobstore-go/pkg/pipeline"
)

// respBase gives every typed response the common service headers.
type respBase struct {
	res *pipeline.Response
}

// StatusCode returns the HTTP status of the successful response.
func (r respBase) StatusCode() int { return r.res.StatusCode }

// Status returns the HTTP status line.
func (r respBase) Status() string { return r.res.Status }

// ETag returns the entity tag, as a specific matcher, or an unset one when
// the service sent none.
func (r respBase) ETag() ETag {
	if v := r.res.Header.Get("ETag"); v != "" {
		return ETagOf(v)
	}
	return ETag{}
}

// LastModified returns the blob/container modification time.
func (r respBase) LastModified() time.Time {
	t, _ := time.Parse(http.TimeFormat, r.res.Header.Get("Last-Modified"))
	return t
}

// RequestID returns the server-assigned request id for support cases.
func (r respBase) RequestID() string { return r.res.Header.Get("x-ms-request-id") }

// Version returns the service version that handled the request.
func (r respBase) Version() string { return r.res.Header.Get(headerXMSVersion) }

// ContainerCreateResponse is returned by ContainerURL.Create.
type ContainerCreateResponse struct{ respBase }

// ContainerDeleteResponse is returned by ContainerURL.Delete.
type ContainerDeleteResponse struct{ respBase }

// ContainerGetPropertiesResponse is returned by ContainerURL.GetProperties.
type ContainerGetPropertiesResponse struct{ respBase }

// LeaseState returns the container's lease state header.
func (r ContainerGetPropertiesResponse) LeaseState() string {
	return r.res.Header.Get("x-ms-lease-state")
}

// LeaseResponse is returned by the lease operations of containers and blobs.
type LeaseResponse struct{ respBase }

// LeaseID returns the acquired or renewed lease id.
func (r LeaseResponse) LeaseID() string { return r.res.Header.Get("x-ms-lease-id") }

// LeaseTime returns the seconds remaining on a broken lease.
func (r LeaseResponse) LeaseTime() int {
	n, _ := strconv.Atoi(r.res.Header.Get("x-ms-lease-time"))
	return n
}

// BlobDeleteResponse is returned by BlobURL.Delete.
type BlobDeleteResponse struct{ respBase }

// BlobSetMetadataResponse is returned by BlobURL.SetMetadata.
type BlobSetMetadataResponse struct{ respBase }

// BlobGetPropertiesResponse is returned by BlobURL.GetProperties.
type BlobGetPropertiesResponse struct{ respBase }

// ContentLength returns the blob size in bytes.
func (r BlobGetPropertiesResponse) ContentLength() int64 {
	n, _ := strconv.ParseInt(r.res.Header.Get(headerContentLength), 10, 64)
	return n
}

// ContentType returns the blob's cached content type.
func (r BlobGetPropertiesResponse) ContentType() string {
	return r.res.Header.Get(headerContentType)
}

// BlobType returns BlockBlob or PageBlob.
func (r BlobGetPropertiesResponse) BlobType() string {
	return r.res.Header.Get("x-ms-blob-type")
}

// CopyStatus reports the state of the most recent copy, when one exists.
func (r BlobGetPropertiesResponse) CopyStatus() string {
	return r.res.Header.Get("x-ms-copy-status")
}

// Metadata returns the user metadata from x-ms-meta-* headers.
func (r BlobGetPropertiesResponse) Metadata() Metadata {
	md := Metadata{}
	for k, v := range r.res.Header {
		const prefix = "X-Ms-Meta-"
		if len(k) > len(prefix) && k[:len(prefix)] == prefix && len(v) > 0 {
			md[k[len(prefix):]] = v[0]
		}
	}
	return md
}

// DownloadResponse is returned by BlobURL.Download. The caller owns the body
// and must Close it.
type DownloadResponse struct{ respBase }

// Body returns the content stream.
func (r DownloadResponse) Body() io.ReadCloser { return r.res.Body }

// ContentLength returns the length of the returned range.
func (r DownloadResponse) ContentLength() int64 {
	n, _ := strconv.ParseInt(r.res.Header.Get(headerContentLength), 10, 64)
	return n
}

// ContentRange returns the Content-Range header for ranged downloads.
func (r DownloadResponse) ContentRange() string { return r.res.Header.Get("Content-Range") }

// CopyResponse is returned by BlobURL.StartCopyFromURL.
type CopyResponse struct{ respBase }

// CopyID identifies the copy operation for AbortCopyFromURL.
func (r CopyResponse) CopyID() string { return r.res.Header.Get("x-ms-copy-id") }

// CopyStatus returns "pending" or "success".
func (r CopyResponse) CopyStatus() string { return r.res.Header.Get("x-ms-copy-status") }

// BlobAbortCopyResponse is returned by BlobURL.AbortCopyFromURL.
type BlobAbortCopyResponse struct{ respBase }

// BlockBlobUploadResponse is returned by BlockBlobURL.Upload.
type BlockBlobUploadResponse struct{ respBase }

// BlockBlobStageBlockResponse is returned by BlockBlobURL.StageBlock.
type BlockBlobStageBlockResponse struct{ respBase }

// BlockBlobCommitBlockListResponse is returned by CommitBlockList.
type BlockBlobCommitBlockListResponse struct{ respBase }

// PageBlobCreateResponse is returned by PageBlobURL.Create.
type PageBlobCreateResponse struct{ respBase }

// PageBlobUploadPagesResponse is returned by UploadPages and ClearPages.
type PageBlobUploadPagesResponse struct{ respBase }

// PageBlobResizeResponse is returned by PageBlobURL.Resize.
type PageBlobResizeResponse struct{ respBase }

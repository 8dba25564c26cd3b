package blob

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/einyx/blobstore-go/pkg/pipeline"
)

// PageBlobPageBytes is the page size; all page ranges and the blob length
// must be multiples of it.
const PageBlobPageBytes = 512

// PageBlobURL addresses a page blob.
type PageBlobURL struct {
	BlobURL
}

// WithPipeline returns the handle bound to a different pipeline.
func (b PageBlobURL) WithPipeline(p pipeline.Pipeline) PageBlobURL {
	return PageBlobURL{BlobURL: b.BlobURL.WithPipeline(p)}
}

// Create allocates an empty page blob of size bytes (a multiple of
// PageBlobPageBytes).
func (b PageBlobURL) Create(ctx context.Context, size int64, h BlobHTTPHeaders, metadata Metadata, ac BlobAccessConditions) (*PageBlobCreateResponse, error) {
	if size%PageBlobPageBytes != 0 {
		return nil, errInvalidArg("size", "must be a multiple of 512")
	}
	resp, err := b.execute(ctx, "page blob create", http.MethodPut, b.u, nil, func(req *pipeline.Request) {
		req.Header.Set("x-ms-blob-type", "PageBlob")
		req.Header.Set("x-ms-blob-content-length", strconv.FormatInt(size, 10))
		h.apply(req.Header)
		metadata.apply(req.Header)
		ac.apply(req.Header)
	}, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return &PageBlobCreateResponse{respBase{resp}}, nil
}

// UploadPages writes body into the page range starting at offset. Offset and
// body length must be page aligned.
func (b PageBlobURL) UploadPages(ctx context.Context, offset int64, body io.ReadSeeker, ac BlobAccessConditions) (*PageBlobUploadPagesResponse, error) {
	size, err := body.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if offset%PageBlobPageBytes != 0 || size%PageBlobPageBytes != 0 {
		return nil, errInvalidArg("offset/size", "page ranges must be 512-byte aligned")
	}
	u := withQuery(b.u, "comp", "page")
	resp, err := b.execute(ctx, "page blob upload pages", http.MethodPut, u, body, func(req *pipeline.Request) {
		req.Header.Set("x-ms-page-write", "update")
		req.Header.Set("x-ms-range", rangeHeader(offset, size))
		ac.apply(req.Header)
	}, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return &PageBlobUploadPagesResponse{respBase{resp}}, nil
}

// ClearPages zeroes the page range [offset, offset+count).
func (b PageBlobURL) ClearPages(ctx context.Context, offset, count int64, ac BlobAccessConditions) (*PageBlobUploadPagesResponse, error) {
	if offset%PageBlobPageBytes != 0 || count%PageBlobPageBytes != 0 {
		return nil, errInvalidArg("offset/count", "page ranges must be 512-byte aligned")
	}
	u := withQuery(b.u, "comp", "page")
	resp, err := b.execute(ctx, "page blob clear pages", http.MethodPut, u, nil, func(req *pipeline.Request) {
		req.Header.Set("x-ms-page-write", "clear")
		req.Header.Set("x-ms-range", rangeHeader(offset, count))
		ac.apply(req.Header)
	}, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return &PageBlobUploadPagesResponse{respBase{resp}}, nil
}

// Resize grows or truncates the blob to size bytes.
func (b PageBlobURL) Resize(ctx context.Context, size int64, ac BlobAccessConditions) (*PageBlobResizeResponse, error) {
	if size%PageBlobPageBytes != 0 {
		return nil, errInvalidArg("size", "must be a multiple of 512")
	}
	u := withQuery(b.u, "comp", "properties")
	resp, err := b.execute(ctx, "page blob resize", http.MethodPut, u, nil, func(req *pipeline.Request) {
		req.Header.Set("x-ms-blob-content-length", strconv.FormatInt(size, 10))
		ac.apply(req.Header)
	}, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &PageBlobResizeResponse{respBase{resp}}, nil
}

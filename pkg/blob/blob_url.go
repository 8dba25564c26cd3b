package blob

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/einyx/blobstore-go/pkg/pipeline"
)

// CountToEnd asks Download for everything from the offset onward.
const CountToEnd = int64(0)

// BlobURL addresses one blob of any type.
type BlobURL struct {
	urlTarget
}

// NewBlobURL wraps a blob URL with a pipeline.
func NewBlobURL(u url.URL, p pipeline.Pipeline) BlobURL {
	return BlobURL{urlTarget{u: u, p: p}}
}

// WithPipeline returns the blob handle bound to a different pipeline.
func (b BlobURL) WithPipeline(p pipeline.Pipeline) BlobURL {
	return BlobURL{urlTarget{u: b.u, p: p}}
}

// WithSnapshot returns a handle addressing the given snapshot of the blob.
func (b BlobURL) WithSnapshot(snapshot string) BlobURL {
	parts := NewBlobURLParts(b.u)
	parts.Snapshot = snapshot
	return BlobURL{urlTarget{u: parts.URL(), p: b.p}}
}

// Download reads the byte range [offset, offset+count); count == CountToEnd
// reads through the end. The returned body must be closed by the caller.
func (b BlobURL) Download(ctx context.Context, offset, count int64, ac BlobAccessConditions) (*DownloadResponse, error) {
	resp, err := b.execute(ctx, "blob download", http.MethodGet, b.u, nil, func(req *pipeline.Request) {
		if offset != 0 || count != CountToEnd {
			req.Header.Set("x-ms-range", rangeHeader(offset, count))
		}
		ac.apply(req.Header)
	}, http.StatusOK, http.StatusPartialContent)
	if err != nil {
		return nil, err
	}
	return &DownloadResponse{respBase{resp}}, nil
}

func rangeHeader(offset, count int64) string {
	if count == CountToEnd {
		return fmt.Sprintf("bytes=%d-", offset)
	}
	return fmt.Sprintf("bytes=%d-%d", offset, offset+count-1)
}

// Delete removes the blob. Snapshot handling follows deleteOptions.
func (b BlobURL) Delete(ctx context.Context, deleteOptions DeleteSnapshotsOptionType, ac BlobAccessConditions) (*BlobDeleteResponse, error) {
	resp, err := b.execute(ctx, "blob delete", http.MethodDelete, b.u, nil, func(req *pipeline.Request) {
		if deleteOptions != DeleteSnapshotsOptionNone {
			req.Header.Set("x-ms-delete-snapshots", string(deleteOptions))
		}
		ac.apply(req.Header)
	}, http.StatusAccepted)
	if err != nil {
		return nil, err
	}
	return &BlobDeleteResponse{respBase{resp}}, nil
}

// DeleteSnapshotsOptionType selects what Delete does about snapshots.
type DeleteSnapshotsOptionType string

const (
	// DeleteSnapshotsOptionNone fails the delete if snapshots exist.
	DeleteSnapshotsOptionNone DeleteSnapshotsOptionType = ""
	// DeleteSnapshotsOptionInclude deletes the blob and its snapshots.
	DeleteSnapshotsOptionInclude DeleteSnapshotsOptionType = "include"
	// DeleteSnapshotsOptionOnly deletes only the snapshots.
	DeleteSnapshotsOptionOnly DeleteSnapshotsOptionType = "only"
)

// GetProperties fetches the blob's system properties and user metadata.
func (b BlobURL) GetProperties(ctx context.Context, ac BlobAccessConditions) (*BlobGetPropertiesResponse, error) {
	resp, err := b.execute(ctx, "blob get properties", http.MethodHead, b.u, nil, func(req *pipeline.Request) {
		ac.apply(req.Header)
	}, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &BlobGetPropertiesResponse{respBase{resp}}, nil
}

// SetMetadata replaces the blob's user metadata.
func (b BlobURL) SetMetadata(ctx context.Context, metadata Metadata, ac BlobAccessConditions) (*BlobSetMetadataResponse, error) {
	u := withQuery(b.u, "comp", "metadata")
	resp, err := b.execute(ctx, "blob set metadata", http.MethodPut, u, nil, func(req *pipeline.Request) {
		metadata.apply(req.Header)
		ac.apply(req.Header)
	}, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &BlobSetMetadataResponse{respBase{resp}}, nil
}

// StartCopyFromURL begins a server-side copy from source. The copy proceeds
// asynchronously; poll GetProperties or abort with the returned CopyID.
func (b BlobURL) StartCopyFromURL(ctx context.Context, source url.URL, metadata Metadata, ac BlobAccessConditions) (*CopyResponse, error) {
	resp, err := b.execute(ctx, "blob start copy", http.MethodPut, b.u, nil, func(req *pipeline.Request) {
		req.Header.Set("x-ms-copy-source", source.String())
		metadata.apply(req.Header)
		ac.apply(req.Header)
	}, http.StatusAccepted)
	if err != nil {
		return nil, err
	}
	return &CopyResponse{respBase{resp}}, nil
}

// AbortCopyFromURL cancels a pending copy.
func (b BlobURL) AbortCopyFromURL(ctx context.Context, copyID string, ac LeaseAccessConditions) (*BlobAbortCopyResponse, error) {
	u := withQuery(b.u, "comp", "copy", "copyid", copyID)
	resp, err := b.execute(ctx, "blob abort copy", http.MethodPut, u, nil, func(req *pipeline.Request) {
		req.Header.Set("x-ms-copy-action", "abort")
		ac.apply(req.Header)
	}, http.StatusNoContent)
	if err != nil {
		return nil, err
	}
	return &BlobAbortCopyResponse{respBase{resp}}, nil
}

// AcquireLease takes the blob lease for duration seconds (15-60, -1 for
// infinite).
func (b BlobURL) AcquireLease(ctx context.Context, proposedID string, duration int32, ac ModifiedAccessConditions) (*LeaseResponse, error) {
	return b.lease(ctx, "blob acquire lease", func(req *pipeline.Request) {
		req.Header.Set("x-ms-lease-action", "acquire")
		req.Header.Set("x-ms-lease-duration", strconv.Itoa(int(duration)))
		if proposedID != "" {
			req.Header.Set("x-ms-proposed-lease-id", proposedID)
		}
		ac.apply(req.Header)
	}, http.StatusCreated)
}

// RenewLease extends an active lease.
func (b BlobURL) RenewLease(ctx context.Context, leaseID string, ac ModifiedAccessConditions) (*LeaseResponse, error) {
	return b.lease(ctx, "blob renew lease", func(req *pipeline.Request) {
		req.Header.Set("x-ms-lease-action", "renew")
		req.Header.Set("x-ms-lease-id", leaseID)
		ac.apply(req.Header)
	}, http.StatusOK)
}

// ReleaseLease frees the lease immediately.
func (b BlobURL) ReleaseLease(ctx context.Context, leaseID string, ac ModifiedAccessConditions) (*LeaseResponse, error) {
	return b.lease(ctx, "blob release lease", func(req *pipeline.Request) {
		req.Header.Set("x-ms-lease-action", "release")
		req.Header.Set("x-ms-lease-id", leaseID)
		ac.apply(req.Header)
	}, http.StatusOK)
}

// BreakLease ends the lease after breakPeriod seconds.
func (b BlobURL) BreakLease(ctx context.Context, breakPeriod int32, ac ModifiedAccessConditions) (*LeaseResponse, error) {
	return b.lease(ctx, "blob break lease", func(req *pipeline.Request) {
		req.Header.Set("x-ms-lease-action", "break")
		if breakPeriod >= 0 {
			req.Header.Set("x-ms-lease-break-period", strconv.Itoa(int(breakPeriod)))
		}
		ac.apply(req.Header)
	}, http.StatusAccepted)
}

// ChangeLease swaps an active lease id for a proposed one.
func (b BlobURL) ChangeLease(ctx context.Context, leaseID, proposedID string, ac ModifiedAccessConditions) (*LeaseResponse, error) {
	return b.lease(ctx, "blob change lease", func(req *pipeline.Request) {
		req.Header.Set("x-ms-lease-action", "change")
		req.Header.Set("x-ms-lease-id", leaseID)
		req.Header.Set("x-ms-proposed-lease-id", proposedID)
		ac.apply(req.Header)
	}, http.StatusOK)
}

func (b BlobURL) lease(ctx context.Context, op string, prepare func(*pipeline.Request), okCode int) (*LeaseResponse, error) {
	u := withQuery(b.u, "comp", "lease")
	resp, err := b.execute(ctx, op, http.MethodPut, u, nil, prepare, okCode)
	if err != nil {
		return nil, err
	}
	return &LeaseResponse{respBase{resp}}, nil
}

func (h BlobHTTPHeaders) apply(header http.Header) {
	if h.ContentType != "" {
		header.Set("x-ms-blob-content-type", h.ContentType)
	}
	if h.ContentEncoding != "" {
		header.Set("x-ms-blob-content-encoding", h.ContentEncoding)
	}
	if h.ContentLanguage != "" {
		header.Set("x-ms-blob-content-language", h.ContentLanguage)
	}
	if h.ContentDisposition != "" {
		header.Set("x-ms-blob-content-disposition", h.ContentDisposition)
	}
	if h.CacheControl != "" {
		header.Set("x-ms-blob-cache-control", h.CacheControl)
	}
	if len(h.ContentMD5) > 0 {
		header.Set("x-ms-blob-content-md5", base64.StdEncoding.EncodeToString(h.ContentMD5))
	}
}

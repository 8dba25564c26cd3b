package blob

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/einyx/blobstore-go/pkg/pipeline"
)

// PublicAccessType controls anonymous read access to a container.
type PublicAccessType string

const (
	// PublicAccessNone keeps the container private.
	PublicAccessNone PublicAccessType = ""
	// PublicAccessBlob allows anonymous reads of blobs, not listings.
	PublicAccessBlob PublicAccessType = "blob"
	// PublicAccessContainer allows anonymous reads and listings.
	PublicAccessContainer PublicAccessType = "container"
)

// ContainerURL addresses one container.
type ContainerURL struct {
	urlTarget
}

// NewContainerURL wraps a container URL with a pipeline.
func NewContainerURL(u url.URL, p pipeline.Pipeline) ContainerURL {
	return ContainerURL{urlTarget{u: u, p: p}}
}

// WithPipeline returns the container handle bound to a different pipeline.
func (c ContainerURL) WithPipeline(p pipeline.Pipeline) ContainerURL {
	return ContainerURL{urlTarget{u: c.u, p: p}}
}

// NewBlobURL scopes down to one blob.
func (c ContainerURL) NewBlobURL(blobName string) BlobURL {
	u := c.u
	u.Path = joinPath(u.Path, blobName)
	return BlobURL{urlTarget{u: u, p: c.p}}
}

// NewBlockBlobURL scopes down to one block blob.
func (c ContainerURL) NewBlockBlobURL(blobName string) BlockBlobURL {
	return BlockBlobURL{BlobURL: c.NewBlobURL(blobName)}
}

// NewPageBlobURL scopes down to one page blob.
func (c ContainerURL) NewPageBlobURL(blobName string) PageBlobURL {
	return PageBlobURL{BlobURL: c.NewBlobURL(blobName)}
}

// Create makes the container. The service answers 409 ContainerAlreadyExists
// when it is already there; that surfaces as a StorageError the caller can
// branch on.
func (c ContainerURL) Create(ctx context.Context, metadata Metadata, access PublicAccessType) (*ContainerCreateResponse, error) {
	u := withQuery(c.u, "restype", "container")
	resp, err := c.execute(ctx, "container create", http.MethodPut, u, nil, func(req *pipeline.Request) {
		metadata.apply(req.Header)
		if access != PublicAccessNone {
			req.Header.Set("x-ms-blob-public-access", string(access))
		}
	}, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return &ContainerCreateResponse{respBase{resp}}, nil
}

// Delete removes the container and everything in it.
func (c ContainerURL) Delete(ctx context.Context, ac LeaseAccessConditions) (*ContainerDeleteResponse, error) {
	u := withQuery(c.u, "restype", "container")
	resp, err := c.execute(ctx, "container delete", http.MethodDelete, u, nil, func(req *pipeline.Request) {
		ac.apply(req.Header)
	}, http.StatusAccepted)
	if err != nil {
		return nil, err
	}
	return &ContainerDeleteResponse{respBase{resp}}, nil
}

// GetProperties fetches container metadata and lease state.
func (c ContainerURL) GetProperties(ctx context.Context, ac LeaseAccessConditions) (*ContainerGetPropertiesResponse, error) {
	u := withQuery(c.u, "restype", "container")
	resp, err := c.execute(ctx, "container get properties", http.MethodHead, u, nil, func(req *pipeline.Request) {
		ac.apply(req.Header)
	}, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &ContainerGetPropertiesResponse{respBase{resp}}, nil
}

// AcquireLease takes the container lease for duration seconds (15-60, or -1
// for infinite).
func (c ContainerURL) AcquireLease(ctx context.Context, proposedID string, duration int32, ac ModifiedAccessConditions) (*LeaseResponse, error) {
	return c.lease(ctx, "container acquire lease", func(req *pipeline.Request) {
		req.Header.Set("x-ms-lease-action", "acquire")
		req.Header.Set("x-ms-lease-duration", strconv.Itoa(int(duration)))
		if proposedID != "" {
			req.Header.Set("x-ms-proposed-lease-id", proposedID)
		}
		ac.apply(req.Header)
	}, http.StatusCreated)
}

// RenewLease extends an active lease.
func (c ContainerURL) RenewLease(ctx context.Context, leaseID string, ac ModifiedAccessConditions) (*LeaseResponse, error) {
	return c.lease(ctx, "container renew lease", func(req *pipeline.Request) {
		req.Header.Set("x-ms-lease-action", "renew")
		req.Header.Set("x-ms-lease-id", leaseID)
		ac.apply(req.Header)
	}, http.StatusOK)
}

// ReleaseLease frees the lease immediately.
func (c ContainerURL) ReleaseLease(ctx context.Context, leaseID string, ac ModifiedAccessConditions) (*LeaseResponse, error) {
	return c.lease(ctx, "container release lease", func(req *pipeline.Request) {
		req.Header.Set("x-ms-lease-action", "release")
		req.Header.Set("x-ms-lease-id", leaseID)
		ac.apply(req.Header)
	}, http.StatusOK)
}

// BreakLease ends the lease after breakPeriod seconds (-1 for the remaining
// lease time).
func (c ContainerURL) BreakLease(ctx context.Context, breakPeriod int32, ac ModifiedAccessConditions) (*LeaseResponse, error) {
	return c.lease(ctx, "container break lease", func(req *pipeline.Request) {
		req.Header.Set("x-ms-lease-action", "break")
		if breakPeriod >= 0 {
			req.Header.Set("x-ms-lease-break-period", strconv.Itoa(int(breakPeriod)))
		}
		ac.apply(req.Header)
	}, http.StatusAccepted)
}

// ChangeLease swaps an active lease id for a proposed one.
func (c ContainerURL) ChangeLease(ctx context.Context, leaseID, proposedID string, ac ModifiedAccessConditions) (*LeaseResponse, error) {
	return c.lease(ctx, "container change lease", func(req *pipeline.Request) {
		req.Header.Set("x-ms-lease-action", "change")
		req.Header.Set("x-ms-lease-id", leaseID)
		req.Header.Set("x-ms-proposed-lease-id", proposedID)
		ac.apply(req.Header)
	}, http.StatusOK)
}

func (c ContainerURL) lease(ctx context.Context, op string, prepare func(*pipeline.Request), okCode int) (*LeaseResponse, error) {
	u := withQuery(c.u, "restype", "container", "comp", "lease")
	resp, err := c.execute(ctx, op, http.MethodPut, u, nil, prepare, okCode)
	if err != nil {
		return nil, err
	}
	return &LeaseResponse{respBase{resp}}, nil
}

package blob

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"io"
	"net/http"

	"github.com/einyx/blobstore-go/pkg/pipeline"
)

// BlockBlobMaxStageBlockBytes is the service limit for one staged block.
const BlockBlobMaxStageBlockBytes = 100 * 1024 * 1024

// BlockBlobMaxBlocks is the service limit on committed blocks per blob.
const BlockBlobMaxBlocks = 50000

// BlockBlobURL addresses a block blob.
type BlockBlobURL struct {
	BlobURL
}

// WithPipeline returns the handle bound to a different pipeline.
func (b BlockBlobURL) WithPipeline(p pipeline.Pipeline) BlockBlobURL {
	return BlockBlobURL{BlobURL: b.BlobURL.WithPipeline(p)}
}

// Upload writes the whole blob in one request, replacing any existing
// content. The body must be seekable so retries replay identical bytes.
func (b BlockBlobURL) Upload(ctx context.Context, body io.ReadSeeker, h BlobHTTPHeaders, metadata Metadata, ac BlobAccessConditions) (*BlockBlobUploadResponse, error) {
	resp, err := b.execute(ctx, "block blob upload", http.MethodPut, b.u, body, func(req *pipeline.Request) {
		req.Header.Set("x-ms-blob-type", "BlockBlob")
		h.apply(req.Header)
		metadata.apply(req.Header)
		ac.apply(req.Header)
	}, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return &BlockBlobUploadResponse{respBase{resp}}, nil
}

// StageBlock uploads one uncommitted block. blockID must be base64 and the
// same length as every other block id of the blob.
func (b BlockBlobURL) StageBlock(ctx context.Context, blockID string, body io.ReadSeeker, ac LeaseAccessConditions) (*BlockBlobStageBlockResponse, error) {
	u := withQuery(b.u, "comp", "block", "blockid", blockID)
	resp, err := b.execute(ctx, "block blob stage block", http.MethodPut, u, body, func(req *pipeline.Request) {
		ac.apply(req.Header)
	}, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return &BlockBlobStageBlockResponse{respBase{resp}}, nil
}

// blockList is the XML body of Put Block List; ids are committed in order.
type blockList struct {
	XMLName xml.Name `xml:"BlockList"`
	Latest  []string `xml:"Latest"`
}

// CommitBlockList assembles previously staged blocks, in the given order,
// into the readable blob.
func (b BlockBlobURL) CommitBlockList(ctx context.Context, blockIDs []string, h BlobHTTPHeaders, metadata Metadata, ac BlobAccessConditions) (*BlockBlobCommitBlockListResponse, error) {
	payload, err := xml.Marshal(blockList{Latest: blockIDs})
	if err != nil {
		return nil, err
	}
	body := bytes.NewReader(append([]byte(xml.Header), payload...))
	u := withQuery(b.u, "comp", "blocklist")
	resp, err := b.execute(ctx, "block blob commit block list", http.MethodPut, u, body, func(req *pipeline.Request) {
		req.Header.Set(headerContentType, "application/xml")
		h.apply(req.Header)
		metadata.apply(req.Header)
		ac.apply(req.Header)
	}, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return &BlockBlobCommitBlockListResponse{respBase{resp}}, nil
}

// BlockID converts raw id bytes to the base64 form the service requires.
func BlockID(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

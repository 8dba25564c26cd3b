package blob

import (
	"net/url"
	"strings"
)

// snapshotParam addresses a point-in-time copy of a blob.
const snapshotParam = "snapshot"

// BlobURLParts decomposes a blob URL into its addressable pieces so callers
// can edit one piece (say, append a SAS) and reassemble without string
// surgery.
type BlobURLParts struct {
	Scheme         string
	Host           string
	ContainerName  string
	BlobName       string
	Snapshot       string
	SAS            SASQueryParameters
	UnparsedParams string
}

// NewBlobURLParts splits any service, container, or blob URL. SAS and
// snapshot parameters are lifted out of the query; whatever remains is kept
// verbatim in UnparsedParams.
func NewBlobURLParts(u url.URL) BlobURLParts {
	up := BlobURLParts{Scheme: u.Scheme, Host: u.Host}

	if path := strings.TrimPrefix(u.Path, "/"); path != "" {
		if i := strings.IndexByte(path, '/'); i >= 0 {
			up.ContainerName = path[:i]
			up.BlobName = path[i+1:]
		} else {
			up.ContainerName = path
		}
	}

	values, _ := url.ParseQuery(u.RawQuery)
	if snap := values.Get(snapshotParam); snap != "" {
		up.Snapshot = snap
		values.Del(snapshotParam)
	}
	up.SAS = newSASQueryParameters(values, true)
	up.UnparsedParams = values.Encode()
	return up
}

// URL reassembles the parts. SAS parameters are appended in their fixed
// emission order.
func (up BlobURLParts) URL() url.URL {
	path := ""
	if up.ContainerName != "" {
		path = "/" + up.ContainerName
		if up.BlobName != "" {
			path += "/" + up.BlobName
		}
	}

	rawQuery := up.UnparsedParams
	if up.Snapshot != "" {
		if rawQuery != "" {
			rawQuery += "&"
		}
		rawQuery += snapshotParam + "=" + url.QueryEscape(up.Snapshot)
	}
	if sas := up.SAS.Encode(); sas != "" {
		if rawQuery != "" {
			rawQuery += "&"
		}
		rawQuery += sas
	}
	return url.URL{
		Scheme:   up.Scheme,
		Host:     up.Host,
		Path:     path,
		RawQuery: rawQuery,
	}
}

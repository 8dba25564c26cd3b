package blob

import (
	"fmt"
	"strings"
	"time"
)

// BlobSASSignatureValues collects the inputs of a service-level SAS scoped
// to one container or blob. The cached content headers are signed so a
// holder cannot override them. As with the account variant, signing yields
// an immutable SASQueryParameters.
type BlobSASSignatureValues struct {
	Version            string // defaults to ServiceVersion
	Protocol           SASProtocol
	StartTime          time.Time
	ExpiryTime         time.Time
	Permissions        string // ContainerSASPermissions / BlobSASPermissions String()
	IPRange            IPRange
	Identifier         string // stored access policy id
	ContainerName      string
	BlobName           string    // empty for a container SAS
	SnapshotTime       time.Time // non-zero for a snapshot SAS
	CacheControl       string
	ContentDisposition string
	ContentEncoding    string
	ContentLanguage    string
	ContentType        string
}

// NewSASQueryParameters signs the values. The newline-join order is fixed
// per version; reordering invalidates every signature issued under that
// version.
func (v BlobSASSignatureValues) NewSASQueryParameters(credential *SharedKeyCredential) (SASQueryParameters, error) {
	if v.ContainerName == "" {
		return SASQueryParameters{}, errInvalidArg("ContainerName", "service SAS requires a container name")
	}
	if v.Identifier == "" && (v.ExpiryTime.IsZero() || v.Permissions == "") {
		return SASQueryParameters{}, errInvalidArg("BlobSASSignatureValues", "expiry time and permissions are required unless a stored access policy identifier is given")
	}
	if v.Version == "" {
		v.Version = ServiceVersion
	}

	resource := "c"
	switch {
	case v.BlobName == "":
		// Container SAS; normalize against the container permission set.
		if v.Permissions != "" {
			p, err := parseContainerSASPermissions(v.Permissions)
			if err != nil {
				return SASQueryParameters{}, err
			}
			v.Permissions = p.String()
		}
	case !v.SnapshotTime.IsZero():
		resource = "bs"
		fallthrough
	default:
		if resource == "c" {
			resource = "b"
		}
		if v.Permissions != "" {
			p, err := parseBlobSASPermissions(v.Permissions)
			if err != nil {
				return SASQueryParameters{}, err
			}
			v.Permissions = p.String()
		}
	}

	canonicalName := "/blob/" + credential.AccountName() + "/" + v.ContainerName
	if v.BlobName != "" {
		canonicalName += "/" + strings.ReplaceAll(v.BlobName, "\\", "/")
	}

	stringToSign := strings.Join([]string{
		v.Permissions,
		formatSASTime(v.StartTime),
		formatSASTime(v.ExpiryTime),
		canonicalName,
		v.Identifier,
		v.IPRange.String(),
		string(v.Protocol),
		v.Version,
		resource,
		formatSASTime(v.SnapshotTime),
		v.CacheControl,
		v.ContentDisposition,
		v.ContentEncoding,
		v.ContentLanguage,
		v.ContentType},
		"\n")

	return SASQueryParameters{
		version:      v.Version,
		protocol:     v.Protocol,
		startTime:    v.StartTime,
		expiryTime:   v.ExpiryTime,
		ipRange:      v.IPRange,
		identifier:   v.Identifier,
		resource:     resource,
		permissions:  v.Permissions,
		snapshotTime: v.SnapshotTime,
		signature:    credential.ComputeHMACSHA256(stringToSign),

		cacheControl:       v.CacheControl,
		contentDisposition: v.ContentDisposition,
		contentEncoding:    v.ContentEncoding,
		contentLanguage:    v.ContentLanguage,
		contentType:        v.ContentType,
	}, nil
}

// ContainerSASPermissions enumerates container-SAS rights; String renders
// the canonical fixed order "racwdl".
type ContainerSASPermissions struct {
	Read, Add, Create, Write, Delete, List bool
}

// String renders the canonical permission string.
func (p ContainerSASPermissions) String() string {
	var sb strings.Builder
	if p.Read {
		sb.WriteByte('r')
	}
	if p.Add {
		sb.WriteByte('a')
	}
	if p.Create {
		sb.WriteByte('c')
	}
	if p.Write {
		sb.WriteByte('w')
	}
	if p.Delete {
		sb.WriteByte('d')
	}
	if p.List {
		sb.WriteByte('l')
	}
	return sb.String()
}

func parseContainerSASPermissions(s string) (ContainerSASPermissions, error) {
	p := ContainerSASPermissions{}
	for _, c := range s {
		switch c {
		case 'r':
			p.Read = true
		case 'a':
			p.Add = true
		case 'c':
			p.Create = true
		case 'w':
			p.Write = true
		case 'd':
			p.Delete = true
		case 'l':
			p.List = true
		default:
			return ContainerSASPermissions{}, errInvalidArg("Permissions", fmt.Sprintf("unknown container permission %q", c))
		}
	}
	return p, nil
}

// BlobSASPermissions enumerates blob-SAS rights; String renders the
// canonical fixed order "racwd".
type BlobSASPermissions struct {
	Read, Add, Create, Write, Delete bool
}

// String renders the canonical permission string.
func (p BlobSASPermissions) String() string {
	var sb strings.Builder
	if p.Read {
		sb.WriteByte('r')
	}
	if p.Add {
		sb.WriteByte('a')
	}
	if p.Create {
		sb.WriteByte('c')
	}
	if p.Write {
		sb.WriteByte('w')
	}
	if p.Delete {
		sb.WriteByte('d')
	}
	return sb.String()
}

func parseBlobSASPermissions(s string) (BlobSASPermissions, error) {
	p := BlobSASPermissions{}
	for _, c := range s {
		switch c {
		case 'r':
			p.Read = true
		case 'a':
			p.Add = true
		case 'c':
			p.Create = true
		case 'w':
			p.Write = true
		case 'd':
			p.Delete = true
		default:
			return BlobSASPermissions{}, errInvalidArg("Permissions", fmt.Sprintf("unknown blob permission %q", c))
		}
	}
	return p, nil
}

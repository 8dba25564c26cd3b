package blob

import (
	"strings"
	"time"
)

// AccountSASSignatureValues collects the mutable inputs of an account-level
// SAS. Calling NewSASQueryParameters produces the immutable signed result;
// changing any field afterwards requires signing fresh Values.
type AccountSASSignatureValues struct {
	Version       string // defaults to ServiceVersion
	Protocol      SASProtocol
	StartTime     time.Time
	ExpiryTime    time.Time
	Permissions   string // construct with AccountSASPermissions.String()
	IPRange       IPRange
	Services      string // construct with AccountSASServices.String()
	ResourceTypes string // construct with AccountSASResourceTypes.String()
}

// NewSASQueryParameters signs the values with the shared-key credential. The
// string-to-sign field order is fixed per version and is itself part of the
// contract. The output is deterministic for identical inputs.
func (v AccountSASSignatureValues) NewSASQueryParameters(credential *SharedKeyCredential) (SASQueryParameters, error) {
	if v.ExpiryTime.IsZero() {
		return SASQueryParameters{}, errInvalidArg("ExpiryTime", "account SAS requires an expiry time")
	}
	if v.Permissions == "" || v.Services == "" || v.ResourceTypes == "" {
		return SASQueryParameters{}, errInvalidArg("AccountSASSignatureValues", "Permissions, Services and ResourceTypes are all required")
	}
	if v.Version == "" {
		v.Version = ServiceVersion
	}
	perms, err := parseAccountSASPermissions(v.Permissions)
	if err != nil {
		return SASQueryParameters{}, err
	}
	v.Permissions = perms.String()

	stringToSign := strings.Join([]string{
		credential.AccountName(),
		v.Permissions,
		v.Services,
		v.ResourceTypes,
		formatSASTime(v.StartTime),
		formatSASTime(v.ExpiryTime),
		v.IPRange.String(),
		string(v.Protocol),
		v.Version,
		""}, // trailing newline is required
		"\n")

	return SASQueryParameters{
		version:       v.Version,
		services:      v.Services,
		resourceTypes: v.ResourceTypes,
		protocol:      v.Protocol,
		startTime:     v.StartTime,
		expiryTime:    v.ExpiryTime,
		ipRange:       v.IPRange,
		permissions:   v.Permissions,
		signature:     credential.ComputeHMACSHA256(stringToSign),
	}, nil
}

// AccountSASPermissions enumerates account-SAS rights. String renders the
// canonical fixed order "rwdlacup" regardless of construction order.
type AccountSASPermissions struct {
	Read, Write, Delete, List, Add, Create, Update, Process bool
}

// String renders the canonical permission string.
func (p AccountSASPermissions) String() string {
	var sb strings.Builder
	if p.Read {
		sb.WriteByte('r')
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
	if p.Add {
		sb.WriteByte('a')
	}
	if p.Create {
		sb.WriteByte('c')
	}
	if p.Update {
		sb.WriteByte('u')
	}
	if p.Process {
		sb.WriteByte('p')
	}
	return sb.String()
}

func parseAccountSASPermissions(s string) (AccountSASPermissions, error) {
	p := AccountSASPermissions{}
	for _, c := range s {
		switch c {
		case 'r':
			p.Read = true
		case 'w':
			p.Write = true
		case 'd':
			p.Delete = true
		case 'l':
			p.List = true
		case 'a':
			p.Add = true
		case 'c':
			p.Create = true
		case 'u':
			p.Update = true
		case 'p':
			p.Process = true
		default:
			return AccountSASPermissions{}, errInvalidArg("Permissions", "unknown account permission "+string(c))
		}
	}
	return p, nil
}

// AccountSASServices selects which services an account SAS covers. String
// renders the fixed order "bqf".
type AccountSASServices struct {
	Blob, Queue, File bool
}

// String renders the canonical services string.
func (s AccountSASServices) String() string {
	var sb strings.Builder
	if s.Blob {
		sb.WriteByte('b')
	}
	if s.Queue {
		sb.WriteByte('q')
	}
	if s.File {
		sb.WriteByte('f')
	}
	return sb.String()
}

// AccountSASResourceTypes selects resource scopes. String renders the fixed
// order "sco".
type AccountSASResourceTypes struct {
	Service, Container, Object bool
}

// String renders the canonical resource-types string.
func (rt AccountSASResourceTypes) String() string {
	var sb strings.Builder
	if rt.Service {
		sb.WriteByte('s')
	}
	if rt.Container {
		sb.WriteByte('c')
	}
	if rt.Object {
		sb.WriteByte('o')
	}
	return sb.String()
}

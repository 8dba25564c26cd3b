package blob

import (
	"net"
	"net/url"
	"strings"
	"time"
)

// ServiceVersion is the storage API version stamped into requests and SAS
// tokens. Changing it invalidates previously issued signatures only for new
// tokens; issued ones keep the version they were signed with.
const ServiceVersion = "2020-10-02"

// SASTimeFormat renders SAS start/expiry times; seconds precision, UTC.
const SASTimeFormat = "2006-01-02T15:04:05Z"

// SASProtocol restricts which schemes may present a SAS.
type SASProtocol string

const (
	// SASProtocolHTTPS limits the SAS to https.
	SASProtocolHTTPS SASProtocol = "https"
	// SASProtocolHTTPSandHTTP allows both schemes.
	SASProtocolHTTPSandHTTP SASProtocol = "https,http"
)

// IPRange bounds the client addresses allowed to use a SAS. A zero Start
// means no restriction; a zero End means a single address.
type IPRange struct {
	Start net.IP
	End   net.IP
}

// String renders "start" or "start-end", empty when unrestricted.
func (r IPRange) String() string {
	if len(r.Start) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(r.Start.String())
	if len(r.End) != 0 {
		sb.WriteByte('-')
		sb.WriteString(r.End.String())
	}
	return sb.String()
}

// SASQueryParameters is the signed, ready-to-append query string. It is
// immutable after signing: every field is unexported with a getter, so a
// signed parameter set cannot drift from its signature. Re-signing requires
// building new Values.
type SASQueryParameters struct {
	version       string
	services      string
	resourceTypes string
	protocol      SASProtocol
	startTime     time.Time
	expiryTime    time.Time
	ipRange       IPRange
	identifier    string
	resource      string
	permissions   string
	snapshotTime  time.Time
	signature     string

	// Signed response-header overrides for service SAS.
	cacheControl       string
	contentDisposition string
	contentEncoding    string
	contentLanguage    string
	contentType        string
}

// Version returns the signed service version (sv).
func (p *SASQueryParameters) Version() string { return p.version }

// Services returns the account-SAS services flags (ss).
func (p *SASQueryParameters) Services() string { return p.services }

// ResourceTypes returns the account-SAS resource-type flags (srt).
func (p *SASQueryParameters) ResourceTypes() string { return p.resourceTypes }

// Protocol returns the allowed protocols (spr).
func (p *SASQueryParameters) Protocol() SASProtocol { return p.protocol }

// StartTime returns the validity start (st).
func (p *SASQueryParameters) StartTime() time.Time { return p.startTime }

// ExpiryTime returns the validity end (se).
func (p *SASQueryParameters) ExpiryTime() time.Time { return p.expiryTime }

// IPRange returns the permitted source addresses (sip).
func (p *SASQueryParameters) IPRange() IPRange { return p.ipRange }

// Identifier returns the stored access policy id (si).
func (p *SASQueryParameters) Identifier() string { return p.identifier }

// Resource returns the service-SAS resource kind (sr).
func (p *SASQueryParameters) Resource() string { return p.resource }

// Permissions returns the canonical permission string (sp).
func (p *SASQueryParameters) Permissions() string { return p.permissions }

// Signature returns the base64 HMAC signature (sig).
func (p *SASQueryParameters) Signature() string { return p.signature }

// SnapshotTime returns the signed snapshot timestamp for snapshot SAS.
func (p *SASQueryParameters) SnapshotTime() time.Time { return p.snapshotTime }

// CacheControl returns the signed Cache-Control override (rscc).
func (p *SASQueryParameters) CacheControl() string { return p.cacheControl }

// ContentDisposition returns the signed Content-Disposition override (rscd).
func (p *SASQueryParameters) ContentDisposition() string { return p.contentDisposition }

// ContentEncoding returns the signed Content-Encoding override (rsce).
func (p *SASQueryParameters) ContentEncoding() string { return p.contentEncoding }

// ContentLanguage returns the signed Content-Language override (rscl).
func (p *SASQueryParameters) ContentLanguage() string { return p.contentLanguage }

// ContentType returns the signed Content-Type override (rsct).
func (p *SASQueryParameters) ContentType() string { return p.contentType }

// Encode serializes the parameters in their fixed emission order
// (sv,ss,srt,spr,st,se,sip,si,sr,sp,sig,rscc,rscd,rsce,rscl,rsct),
// percent-encoding each value. The order is part of the wire contract.
func (p *SASQueryParameters) Encode() string {
	var sb strings.Builder
	add := func(key, value string) {
		if value == "" {
			return
		}
		if sb.Len() > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(value))
	}
	add("sv", p.version)
	add("ss", p.services)
	add("srt", p.resourceTypes)
	add("spr", string(p.protocol))
	if !p.startTime.IsZero() {
		add("st", p.startTime.UTC().Format(SASTimeFormat))
	}
	if !p.expiryTime.IsZero() {
		add("se", p.expiryTime.UTC().Format(SASTimeFormat))
	}
	add("sip", p.ipRange.String())
	add("si", p.identifier)
	add("sr", p.resource)
	add("sp", p.permissions)
	add("sig", p.signature)
	add("rscc", p.cacheControl)
	add("rscd", p.contentDisposition)
	add("rsce", p.contentEncoding)
	add("rscl", p.contentLanguage)
	add("rsct", p.contentType)
	return sb.String()
}

// newSASQueryParameters extracts SAS fields from parsed query values,
// optionally deleting them so the remainder is the resource's own query.
// Used when decomposing existing URLs.
func newSASQueryParameters(values url.Values, deleteSASValues bool) SASQueryParameters {
	p := SASQueryParameters{}
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		v := vals[0]
		isSAS := true
		switch strings.ToLower(key) {
		case "sv":
			p.version = v
		case "ss":
			p.services = v
		case "srt":
			p.resourceTypes = v
		case "spr":
			p.protocol = SASProtocol(v)
		case "st":
			p.startTime, _ = time.Parse(SASTimeFormat, v)
		case "se":
			p.expiryTime, _ = time.Parse(SASTimeFormat, v)
		case "sip":
			if i := strings.IndexByte(v, '-'); i >= 0 {
				p.ipRange.Start = net.ParseIP(v[:i])
				p.ipRange.End = net.ParseIP(v[i+1:])
			} else {
				p.ipRange.Start = net.ParseIP(v)
			}
		case "si":
			p.identifier = v
		case "sr":
			p.resource = v
		case "sp":
			p.permissions = v
		case "sig":
			p.signature = v
		case "rscc":
			p.cacheControl = v
		case "rscd":
			p.contentDisposition = v
		case "rsce":
			p.contentEncoding = v
		case "rscl":
			p.contentLanguage = v
		case "rsct":
			p.contentType = v
		default:
			isSAS = false
		}
		if isSAS && deleteSASValues {
			delete(values, key)
		}
	}
	return p
}

// formatSASTime renders a time for signing; zero times sign as the empty
// string so optional fields keep their slot in the string-to-sign.
func formatSASTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(SASTimeFormat)
}

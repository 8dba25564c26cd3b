package blob

import (
	"strings"
	"testing"
	"time"
)

func TestNewBlobURLParts(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		container string
		blob      string
		snapshot  string
		unparsed  string
	}{
		{
			name: "service root",
			url:  "https://acct.blob.example.com/",
		},
		{
			name:      "container only",
			url:       "https://acct.blob.example.com/logs",
			container: "logs",
		},
		{
			name:      "nested blob name",
			url:       "https://acct.blob.example.com/logs/2025/08/26.log",
			container: "logs",
			blob:      "2025/08/26.log",
		},
		{
			name:      "snapshot lifted out",
			url:       "https://acct.blob.example.com/logs/a.txt?snapshot=2025-08-26T10:00:00Z",
			container: "logs",
			blob:      "a.txt",
			snapshot:  "2025-08-26T10:00:00Z",
		},
		{
			name:      "foreign params preserved",
			url:       "https://acct.blob.example.com/logs/a.txt?comp=metadata&timeout=30",
			container: "logs",
			blob:      "a.txt",
			unparsed:  "comp=metadata&timeout=30",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := NewBlobURLParts(mustParseURL(t, tt.url))
			if parts.ContainerName != tt.container {
				t.Errorf("ContainerName = %q, want %q", parts.ContainerName, tt.container)
			}
			if parts.BlobName != tt.blob {
				t.Errorf("BlobName = %q, want %q", parts.BlobName, tt.blob)
			}
			if parts.Snapshot != tt.snapshot {
				t.Errorf("Snapshot = %q, want %q", parts.Snapshot, tt.snapshot)
			}
			if parts.UnparsedParams != tt.unparsed {
				t.Errorf("UnparsedParams = %q, want %q", parts.UnparsedParams, tt.unparsed)
			}
		})
	}
}

func TestBlobURLPartsSASExtractedAndReassembled(t *testing.T) {
	c := testCredential(t)
	qp, err := BlobSASSignatureValues{
		Protocol:      SASProtocolHTTPS,
		ExpiryTime:    time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		Permissions:   "r",
		ContainerName: "logs",
		BlobName:      "a.txt",
	}.NewSASQueryParameters(c)
	if err != nil {
		t.Fatal(err)
	}

	raw := "https://acct.blob.example.com/logs/a.txt?timeout=30&" + qp.Encode()
	parts := NewBlobURLParts(mustParseURL(t, raw))

	if parts.SAS.Signature() != qp.Signature() {
		t.Fatalf("SAS signature not lifted: %q", parts.SAS.Signature())
	}
	if parts.UnparsedParams != "timeout=30" {
		t.Fatalf("UnparsedParams = %q, want timeout=30", parts.UnparsedParams)
	}
	if strings.Contains(parts.UnparsedParams, "sig=") {
		t.Fatal("signature leaked into unparsed params")
	}

	// Reassembly keeps the SAS in its fixed order after the resource query.
	out := parts.URL()
	if out.Path != "/logs/a.txt" {
		t.Fatalf("Path = %q", out.Path)
	}
	if want := "timeout=30&" + qp.Encode(); out.RawQuery != want {
		t.Fatalf("RawQuery = %q, want %q", out.RawQuery, want)
	}
}

func TestBlobURLPartsRoundTripWithSnapshot(t *testing.T) {
	raw := "https://acct.blob.example.com/logs/a.txt?snapshot=2025-08-26T10:00:00Z"
	parts := NewBlobURLParts(mustParseURL(t, raw))
	out := parts.URL()
	if got := out.String(); got != "https://acct.blob.example.com/logs/a.txt?snapshot=2025-08-26T10%3A00%3A00Z" {
		t.Fatalf("round trip = %q", got)
	}
	back := NewBlobURLParts(out)
	if back.Snapshot != parts.Snapshot || back.BlobName != parts.BlobName {
		t.Fatalf("second decomposition drifted: %+v vs %+v", back, parts)
	}
}

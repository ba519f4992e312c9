package docstore

import (
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

func TestDocumentEntityCarriesETag(t *testing.T) {
	payload := []byte(`{
		"odata.etag": "W/\"datetime'2026-02-01T09%3A00%3A00.0000000Z'\"",
		"PartitionKey": "document",
		"RowKey": "status",
		"Content": "{\"lastUpdated\":\"2026-02-01T09:00:00Z\"}"
	}`)

	var ent documentEntity
	if err := sonic.ConfigStd.Unmarshal(payload, &ent); err != nil {
		t.Fatalf("decode entity: %v", err)
	}
	if ent.ETag == "" || !strings.Contains(ent.ETag, "datetime") {
		t.Fatalf("etag not decoded as revision token: %q", ent.ETag)
	}
	if ent.PartitionKey != "document" || ent.RowKey != "status" {
		t.Fatalf("entity keys lost: %+v", ent.Entity)
	}
	if !strings.Contains(ent.Content, "lastUpdated") {
		t.Fatalf("content lost: %q", ent.Content)
	}
}

func TestDocumentEntityOmitsETagOnWrite(t *testing.T) {
	ent := documentEntity{Content: "{}"}
	ent.PartitionKey = "document"
	ent.RowKey = "status"

	out, err := sonic.ConfigStd.Marshal(ent)
	if err != nil {
		t.Fatalf("encode entity: %v", err)
	}
	// The service owns the etag; a write must never send a stale one in the
	// entity body.
	if strings.Contains(string(out), "odata.etag") {
		t.Fatalf("write payload must not carry an etag: %s", out)
	}
}

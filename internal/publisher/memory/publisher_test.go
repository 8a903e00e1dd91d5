package memory

import (
	"context"
	"encoding/json"
	"testing"
)

func TestPublisherStoresMarshaledMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "run-completions", map[string]string{"entity": "Acme"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "run-completions", "payload")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}

	var decoded map[string]string
	if err := json.Unmarshal(msgs[0].Data, &decoded); err != nil {
		t.Fatalf("unmarshal recorded payload: %v", err)
	}
	if decoded["entity"] != "Acme" {
		t.Fatalf("expected marshaled payload, got %s", msgs[0].Data)
	}

	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestPublisherRejectsUnmarshalablePayload(t *testing.T) {
	t.Parallel()

	pub := New()
	if _, err := pub.Publish(context.Background(), "run-completions", func() {}); err == nil {
		t.Fatal("expected marshal error for function payload")
	}
	if len(pub.Messages()) != 0 {
		t.Fatalf("expected no recorded messages, got %d", len(pub.Messages()))
	}
}

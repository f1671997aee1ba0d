package chat

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestConversationFingerprint(t *testing.T) {
	c := &Conversation{ID: uuid.New()}
	if got := c.Fingerprint(); got != "0" {
		t.Fatalf("expected 0 for empty conversation, got %s", got)
	}

	first := Message{ID: uuid.New()}
	c.Messages = []Message{first}
	fp1 := c.Fingerprint()

	second := Message{ID: uuid.New()}
	c.Messages = append(c.Messages, second)
	fp2 := c.Fingerprint()

	if fp1 == fp2 {
		t.Fatal("fingerprint should change when a message is appended")
	}
	if !strings.HasPrefix(fp2, second.ID.String()) || !strings.HasSuffix(fp2, ":2") {
		t.Fatalf("unexpected fingerprint: %s", fp2)
	}
}

func TestConversationJSONShape(t *testing.T) {
	c := Conversation{ID: uuid.New(), UserID: "u1", Participants: []string{"alice"}, Messages: []Message{}}
	raw, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal err: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("unmarshal err: %v", err)
	}
	for _, key := range []string{"id", "user_id", "participants", "title", "created_at", "messages"} {
		if _, ok := body[key]; !ok {
			t.Fatalf("missing %q in %s", key, raw)
		}
	}
	if body["title"] != nil {
		t.Fatalf("expected null title, got %v", body["title"])
	}
}

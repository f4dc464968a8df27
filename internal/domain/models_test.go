package domain

import (
	"encoding/json"
	"testing"
)

// Clients distinguish "not yet claimed" by claimerBundle being a JSON null,
// not an empty string or a missing key.
func TestInviteView_UnclaimedSerializesNull(t *testing.T) {
	v := InviteView{InviteID: "inv1", PublicKeyBundle: "K1"}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	got, present := m["claimerBundle"]
	if !present || got != nil {
		t.Fatalf("claimerBundle should be an explicit null, got %v (present=%v)", got, present)
	}
	if m["claimed"] != false {
		t.Fatalf("claimed should default false, got %v", m["claimed"])
	}
}

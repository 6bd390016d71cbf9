package v1

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{name: "known event", env: Envelope{Event: EventSendMessage}, wantErr: false},
		{name: "reply event", env: Envelope{Event: EventGetChatMessages}, wantErr: false},
		{name: "missing event", env: Envelope{}, wantErr: true},
		{name: "blank event", env: Envelope{Event: "   "}, wantErr: true},
		{name: "unknown event", env: Envelope{Event: "join_room"}, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.env.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("want error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("want nil, got %v", err)
			}
		})
	}
}

func TestEnvelopeWireShape(t *testing.T) {
	t.Parallel()

	env := Envelope{Event: EventError, Payload: json.RawMessage(`{"message":"Bot not initialized"}`)}
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"event":"error","payload":{"message":"Bot not initialized"}}`
	if string(b) != want {
		t.Fatalf("wire=%s want=%s", b, want)
	}
}

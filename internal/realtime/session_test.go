package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestSessionOpenRejectsBadCredentials(t *testing.T) {
	cases := map[string]string{
		"missing": "",
		"forged":  "token-mallory",
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			f := newEngineFixture()
			conn := &recordingConn{}
			session := f.engine.NewSession(conn)

			err := session.Open(context.Background(), token)
			if err == nil {
				t.Fatal("expected open to fail")
			}
			if name == "missing" && !errors.Is(err, ErrMissingToken) {
				t.Fatalf("expected ErrMissingToken got %v", err)
			}
			if session.State() != StateTerminated {
				t.Fatalf("expected terminated state got %s", session.State())
			}
			if !conn.isClosed() {
				t.Fatal("expected connection to be closed")
			}
			if f.registry.Count() != 0 {
				t.Fatal("registry must not change on failed authentication")
			}
		})
	}
}

func TestSessionOpenRegistersUser(t *testing.T) {
	f := newEngineFixture()
	conn := &recordingConn{}
	session := f.engine.NewSession(conn)

	if err := session.Open(context.Background(), "token-alice"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if session.State() != StateConnected || session.UserID() != "alice" {
		t.Fatalf("unexpected session %s/%s", session.State(), session.UserID())
	}
	registered, ok := f.registry.Lookup("alice")
	if !ok || registered != conn {
		t.Fatal("expected connection to be registered for alice")
	}
	if err := session.Open(context.Background(), "token-alice"); err == nil {
		t.Fatal("expected second open to fail")
	}
}

func TestSessionDispatchBeforeOpen(t *testing.T) {
	f := newEngineFixture()
	session := f.engine.NewSession(&recordingConn{})

	reply := session.Dispatch(context.Background(), Message{Type: MessageRequestFriendsLocations, RequestID: "r1"})

	errReply, ok := reply.Payload.(ErrorReply)
	if !ok || errReply.Error != "Unauthorized" {
		t.Fatalf("expected unauthorized reply got %+v", reply.Payload)
	}
	if reply.RequestID != "r1" {
		t.Fatalf("expected request id to be echoed got %q", reply.RequestID)
	}
}

func TestSessionDispatchUpdateLocation(t *testing.T) {
	f := newEngineFixture()
	f.graph.befriend("alice", "bob")
	bob := f.connect("bob")

	session := f.engine.NewSession(&recordingConn{})
	if err := session.Open(context.Background(), "token-alice"); err != nil {
		t.Fatalf("open: %v", err)
	}

	reply := session.Dispatch(context.Background(), Message{
		Type:      MessageUpdateLocation,
		RequestID: "r2",
		Payload:   json.RawMessage(`{"latitude":40.0,"longitude":-73.0,"status":"Busy"}`),
	})

	ack, ok := reply.Payload.(LocationAck)
	if !ok || !ack.Success {
		t.Fatalf("expected success ack got %+v", reply.Payload)
	}
	if ack.Location.Latitude != 40 || ack.Location.Longitude != -73 || ack.Location.Status != "Busy" {
		t.Fatalf("unexpected ack location %+v", ack.Location)
	}

	updates := bob.ofType(EventFriendLocationUpdate)
	if len(updates) != 1 {
		t.Fatalf("expected bob to receive one update got %d", len(updates))
	}
	payload := updates[0].Payload.(FriendLocation)
	if payload.UserID != "alice" || payload.Latitude != 40 || payload.Longitude != -73 || payload.Status != "Busy" {
		t.Fatalf("unexpected update payload %+v", payload)
	}
}

func TestSessionDispatchErrors(t *testing.T) {
	f := newEngineFixture()
	session := f.engine.NewSession(&recordingConn{})
	if err := session.Open(context.Background(), "token-alice"); err != nil {
		t.Fatalf("open: %v", err)
	}

	cases := []struct {
		name    string
		msg     Message
		wantErr string
	}{
		{"emptyPayload", Message{Type: MessageUpdateLocation}, "latitude and longitude are required"},
		{"badJSON", Message{Type: MessageUpdateLocation, Payload: json.RawMessage(`{"latitude":"north"}`)}, "invalid location payload"},
		{"outOfRange", Message{Type: MessageUpdateLocation, Payload: json.RawMessage(`{"latitude":100,"longitude":0}`)}, "invalid location: latitude must be between -90 and 90"},
		{"unknownType", Message{Type: "teleport"}, "unsupported message type"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reply := session.Dispatch(context.Background(), tc.msg)
			errReply, ok := reply.Payload.(ErrorReply)
			if !ok {
				t.Fatalf("expected error reply got %+v", reply.Payload)
			}
			if errReply.Error != tc.wantErr {
				t.Fatalf("expected %q got %q", tc.wantErr, errReply.Error)
			}
		})
	}

	f.locations.getErr = errBoom
	f.graph.befriend("alice", "bob")
	reply := session.Dispatch(context.Background(), Message{Type: MessageRequestFriendsLocations})
	if errReply, ok := reply.Payload.(ErrorReply); !ok || errReply.Error != "failed to load friends locations" {
		t.Fatalf("expected snapshot failure reply got %+v", reply.Payload)
	}
}

func TestSessionDispatchFriendsLocations(t *testing.T) {
	f := newEngineFixture()
	f.graph.befriend("alice", "bob")
	f.graph.befriend("alice", "carol")
	if _, err := f.engine.UpdateLocation(context.Background(), "bob", LocationInput{Latitude: floatPtr(1), Longitude: floatPtr(2)}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	session := f.engine.NewSession(&recordingConn{})
	if err := session.Open(context.Background(), "token-alice"); err != nil {
		t.Fatalf("open: %v", err)
	}

	reply := session.Dispatch(context.Background(), Message{Type: MessageRequestFriendsLocations})
	snapshot, ok := reply.Payload.(LocationsSnapshot)
	if !ok || !snapshot.Success {
		t.Fatalf("expected snapshot got %+v", reply.Payload)
	}
	if len(snapshot.Locations) != 1 || snapshot.Locations[0].UserID != "bob" || snapshot.Locations[0].Username != "bob" {
		t.Fatalf("unexpected snapshot %+v", snapshot.Locations)
	}
}

func TestSessionTerminate(t *testing.T) {
	f := newEngineFixture()
	f.graph.befriend("alice", "bob")
	bob := f.connect("bob")

	session := f.engine.NewSession(&recordingConn{})
	if err := session.Open(context.Background(), "token-alice"); err != nil {
		t.Fatalf("open: %v", err)
	}

	session.Terminate(context.Background())
	session.Terminate(context.Background())

	if session.State() != StateTerminated {
		t.Fatalf("expected terminated got %s", session.State())
	}
	if f.registry.IsOnline("alice") {
		t.Fatal("expected alice to be offline")
	}
	if got := len(bob.ofType(EventFriendOffline)); got != 1 {
		t.Fatalf("expected exactly one offline event got %d", got)
	}

	reply := session.Dispatch(context.Background(), Message{Type: MessageRequestFriendsLocations})
	if errReply, ok := reply.Payload.(ErrorReply); !ok || errReply.Error != "Unauthorized" {
		t.Fatalf("terminated session must reject messages, got %+v", reply.Payload)
	}
}

func TestSessionTerminateWithoutOpen(t *testing.T) {
	f := newEngineFixture()
	session := f.engine.NewSession(&recordingConn{})

	session.Terminate(context.Background())

	if session.State() != StateTerminated {
		t.Fatalf("expected terminated got %s", session.State())
	}
	if err := session.Open(context.Background(), "token-alice"); err == nil {
		t.Fatal("terminated session must not reopen")
	}
}

package protocol

import (
	"bufio"
	"bytes"
	"fmt"
)

// Handshake is the single serverbound packet that opens every session. Its
// NextState field drives the Handshake->{Status,Login} transition and its
// address/port fields are what the session orchestrator rewrites so the
// real server sees its own hostname instead of the proxy's.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

func (m *Handshake) ID() int     { return 0x00 }
func (m *Handshake) Name() string { return "Handshake" }

func (m *Handshake) Read(r *bufio.Reader, remaining int) error {
	var err error
	if m.ProtocolVersion, err = readVarInt(r); err != nil {
		return fmt.Errorf("Handshake.ProtocolVersion: %w", err)
	}
	if m.ServerAddress, err = readString(r); err != nil {
		return fmt.Errorf("Handshake.ServerAddress: %w", err)
	}
	if m.ServerPort, err = readUint16(r); err != nil {
		return fmt.Errorf("Handshake.ServerPort: %w", err)
	}
	if m.NextState, err = readVarInt(r); err != nil {
		return fmt.Errorf("Handshake.NextState: %w", err)
	}
	return nil
}

func (m *Handshake) Write(out *bytes.Buffer) error {
	writeVarInt(out, m.ProtocolVersion)
	writeString(out, m.ServerAddress)
	writeUint16(out, m.ServerPort)
	writeVarInt(out, m.NextState)
	return nil
}

func (m *Handshake) Serialize() FieldTree {
	return FieldTree{Fields: []Field{
		{Name: "ProtocolVersion", Value: fmt.Sprint(m.ProtocolVersion)},
		{Name: "ServerAddress", Value: m.ServerAddress},
		{Name: "ServerPort", Value: fmt.Sprint(m.ServerPort)},
		{Name: "NextState", Value: fmt.Sprint(m.NextState)},
	}}
}

func (m *Handshake) Dispatch(h Handler) { h.HandleHandshake(m) }

// LoginSuccess is the clientbound packet that finalizes login and drives
// the Login->Play transition.
type LoginSuccess struct {
	UUID     [16]byte
	Username string
}

func (m *LoginSuccess) ID() int      { return 0x02 }
func (m *LoginSuccess) Name() string { return "LoginSuccess" }

func (m *LoginSuccess) Read(r *bufio.Reader, remaining int) error {
	raw, err := readBytes(r, 16)
	if err != nil {
		return fmt.Errorf("LoginSuccess.UUID: %w", err)
	}
	copy(m.UUID[:], raw)
	if m.Username, err = readString(r); err != nil {
		return fmt.Errorf("LoginSuccess.Username: %w", err)
	}
	return nil
}

func (m *LoginSuccess) Write(out *bytes.Buffer) error {
	out.Write(m.UUID[:])
	writeString(out, m.Username)
	return nil
}

func (m *LoginSuccess) Serialize() FieldTree {
	return FieldTree{Fields: []Field{
		{Name: "UUID", Value: fmt.Sprintf("%x", m.UUID)},
		{Name: "Username", Value: m.Username},
	}}
}

func (m *LoginSuccess) Dispatch(h Handler) { h.HandleLoginSuccess(m) }

// SetCompression announces the compression threshold the rest of the
// session's frames, in both directions, must use.
type SetCompression struct {
	Threshold int32
}

func (m *SetCompression) ID() int      { return 0x03 }
func (m *SetCompression) Name() string { return "SetCompression" }

func (m *SetCompression) Read(r *bufio.Reader, remaining int) error {
	var err error
	if m.Threshold, err = readVarInt(r); err != nil {
		return fmt.Errorf("SetCompression.Threshold: %w", err)
	}
	return nil
}

func (m *SetCompression) Write(out *bytes.Buffer) error {
	writeVarInt(out, m.Threshold)
	return nil
}

func (m *SetCompression) Serialize() FieldTree {
	return FieldTree{Fields: []Field{
		{Name: "Threshold", Value: fmt.Sprint(m.Threshold)},
	}}
}

func (m *SetCompression) Dispatch(h Handler) { h.HandleSetCompression(m) }

// EncryptionRequest is the server's notice that it expects an encrypted
// session from here on. This proxy cannot decode past it (see
// Handler.HandleEncryptionRequest): it is a hard stop for inspection, not
// for forwarding.
type EncryptionRequest struct {
	ServerID    string
	PublicKey   []byte
	VerifyToken []byte
}

func (m *EncryptionRequest) ID() int      { return 0x01 }
func (m *EncryptionRequest) Name() string { return "EncryptionRequest" }

func (m *EncryptionRequest) Read(r *bufio.Reader, remaining int) error {
	var err error
	if m.ServerID, err = readString(r); err != nil {
		return fmt.Errorf("EncryptionRequest.ServerID: %w", err)
	}
	if m.PublicKey, err = readPrefixedBytes(r); err != nil {
		return fmt.Errorf("EncryptionRequest.PublicKey: %w", err)
	}
	if m.VerifyToken, err = readPrefixedBytes(r); err != nil {
		return fmt.Errorf("EncryptionRequest.VerifyToken: %w", err)
	}
	return nil
}

func (m *EncryptionRequest) Write(out *bytes.Buffer) error {
	writeString(out, m.ServerID)
	writePrefixedBytes(out, m.PublicKey)
	writePrefixedBytes(out, m.VerifyToken)
	return nil
}

func (m *EncryptionRequest) Serialize() FieldTree {
	return FieldTree{Fields: []Field{
		{Name: "ServerID", Value: m.ServerID},
		{Name: "PublicKey", Value: fmt.Sprintf("%d bytes", len(m.PublicKey))},
		{Name: "VerifyToken", Value: fmt.Sprintf("%d bytes", len(m.VerifyToken))},
	}}
}

func (m *EncryptionRequest) Dispatch(h Handler) { h.HandleEncryptionRequest(m) }

// JoinGame is the clientbound Play-state packet that finalizes entry into
// the world. The proxy only cares about EntityID: it is the player's own
// entity id, which the optional Recorder annotates a replay with (SPEC_FULL.md
// §10) so ReplayMod can tell the recording player apart from everyone else.
// Everything after EntityID is version-dependent and not decoded; Rest
// captures it verbatim so Write still round-trips the whole packet.
type JoinGame struct {
	EntityID int32
	Rest     []byte
}

func (m *JoinGame) ID() int      { return 0x01 }
func (m *JoinGame) Name() string { return "JoinGame" }

func (m *JoinGame) Read(r *bufio.Reader, remaining int) error {
	raw, err := readBytes(r, 4)
	if err != nil {
		return fmt.Errorf("JoinGame.EntityID: %w", err)
	}
	m.EntityID = int32(raw[0])<<24 | int32(raw[1])<<16 | int32(raw[2])<<8 | int32(raw[3])

	rest, err := readRemaining(r, remaining-4)
	if err != nil {
		return fmt.Errorf("JoinGame.Rest: %w", err)
	}
	m.Rest = rest
	return nil
}

func (m *JoinGame) Write(out *bytes.Buffer) error {
	out.WriteByte(byte(m.EntityID >> 24))
	out.WriteByte(byte(m.EntityID >> 16))
	out.WriteByte(byte(m.EntityID >> 8))
	out.WriteByte(byte(m.EntityID))
	out.Write(m.Rest)
	return nil
}

func (m *JoinGame) Serialize() FieldTree {
	return FieldTree{Fields: []Field{
		{Name: "EntityID", Value: fmt.Sprint(m.EntityID)},
		{Name: "Rest", Value: fmt.Sprintf("%d bytes", len(m.Rest))},
	}}
}

func (m *JoinGame) Dispatch(h Handler) { h.HandleJoinGame(m) }

// RawMessage is the fallback the minimal MessageFactory produces for any id
// it does not recognize by name. It round-trips its payload unchanged and
// dispatches to nothing, matching the spec's "MessageFactory is an external
// collaborator" boundary: everything beyond the five known messages is
// forwarded unchanged, not decoded into named fields. The session logs such
// a frame as an unknown message (a nil LogItem), not by its id.
type RawMessage struct {
	id      int
	name    string
	Payload []byte
}

func NewRawMessage(id int) *RawMessage {
	return &RawMessage{id: id, name: fmt.Sprintf("Unknown(0x%02x)", id)}
}

func (m *RawMessage) ID() int      { return m.id }
func (m *RawMessage) Name() string { return m.name }

func (m *RawMessage) Read(r *bufio.Reader, remaining int) error {
	payload, err := readRemaining(r, remaining)
	if err != nil {
		return fmt.Errorf("RawMessage payload: %w", err)
	}
	m.Payload = payload
	return nil
}

func (m *RawMessage) Write(out *bytes.Buffer) error {
	out.Write(m.Payload)
	return nil
}

func (m *RawMessage) Serialize() FieldTree {
	return FieldTree{Fields: []Field{
		{Name: "Payload", Value: fmt.Sprintf("%d bytes", len(m.Payload))},
	}}
}

func (m *RawMessage) Dispatch(h Handler) {}

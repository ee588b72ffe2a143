package protocol

import (
	"bufio"
	"bytes"
	"fmt"
)

// Field is one leaf or branch of a message's decoded field tree, as
// produced by Message.Serialize and rendered by the session logger's
// detailed view.
type Field struct {
	Name     string
	Value    string
	Children []Field
}

// FieldTree is the root of a message's pretty-printable representation.
type FieldTree struct {
	Fields []Field
}

// Render writes an indented, human-readable dump of the tree, matching
// the shape of the original reference implementation's Serialize().
func (t FieldTree) Render() string {
	var buf bytes.Buffer
	for _, f := range t.Fields {
		renderField(&buf, f, 1)
	}
	return buf.String()
}

func renderField(buf *bytes.Buffer, f Field, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteString("  ")
	}
	if f.Value != "" {
		fmt.Fprintf(buf, "%s: %s\n", f.Name, f.Value)
	} else {
		fmt.Fprintf(buf, "%s:\n", f.Name)
	}
	for _, c := range f.Children {
		renderField(buf, c, depth+1)
	}
}

// Message is the consumed capability a MessageFactory produces: a typed,
// decodable, re-encodable, dispatchable protocol packet.
type Message interface {
	ID() int
	Name() string
	Read(r *bufio.Reader, remaining int) error
	Write(out *bytes.Buffer) error
	Serialize() FieldTree
	Dispatch(h Handler)
}

// Handler is the visitor target for control messages the session
// orchestrator cares about. Every other message type dispatches to the
// embedded no-op base and has no effect on session state.
type Handler interface {
	HandleHandshake(*Handshake)
	HandleLoginSuccess(*LoginSuccess)
	HandleSetCompression(*SetCompression)
	HandleEncryptionRequest(*EncryptionRequest)
	HandleJoinGame(*JoinGame)
}

// BaseHandler implements Handler with no-ops for every message. Embed it
// in a concrete handler and override only the methods that matter; Go's
// method shadowing through embedding gives exactly the "visitor with a
// default case" behavior the original C++ polymorphic Handle() overloads had.
type BaseHandler struct{}

func (BaseHandler) HandleHandshake(*Handshake)                 {}
func (BaseHandler) HandleLoginSuccess(*LoginSuccess)            {}
func (BaseHandler) HandleSetCompression(*SetCompression)        {}
func (BaseHandler) HandleEncryptionRequest(*EncryptionRequest) {}
func (BaseHandler) HandleJoinGame(*JoinGame)                   {}

var _ Handler = BaseHandler{}

package protocol

// Factory is the MessageFactory collaborator the core spec treats as
// external: given a direction, state and id, it produces a typed Message
// to decode into, or a RawMessage fallback for anything it does not
// recognize by name. A real deployment would plug in a full message
// catalogue here; this implementation ships just the five control
// messages the session orchestrator must act on (four that drive the
// state machine and framing transitions, plus JoinGame purely for the
// optional Recorder's SelfID annotation), which is enough to do that job
// correctly while still forwarding and logging every other packet by id.
type Factory struct{}

type constructor func() Message

var clientboundByState = map[State]map[int]constructor{
	Login: {
		0x01: func() Message { return &EncryptionRequest{} },
		0x02: func() Message { return &LoginSuccess{} },
		0x03: func() Message { return &SetCompression{} },
	},
	Play: {
		0x01: func() Message { return &JoinGame{} },
	},
}

var serverboundByState = map[State]map[int]constructor{
	StateHandshake: {
		0x00: func() Message { return &Handshake{} },
	},
}

// CreateMessageClientbound returns a typed message for a server->client
// packet id in the given state, or a RawMessage fallback plus false to
// indicate the id is not one of the factory's known names.
func (Factory) CreateMessageClientbound(id int, state State) (Message, bool) {
	if ctors, ok := clientboundByState[state]; ok {
		if ctor, ok := ctors[id]; ok {
			return ctor(), true
		}
	}
	return NewRawMessage(id), false
}

// CreateMessageServerbound returns a typed message for a client->server
// packet id in the given state, or a RawMessage fallback plus false.
func (Factory) CreateMessageServerbound(id int, state State) (Message, bool) {
	if ctors, ok := serverboundByState[state]; ok {
		if ctor, ok := ctors[id]; ok {
			return ctor(), true
		}
	}
	return NewRawMessage(id), false
}

// Create dispatches to CreateMessageClientbound or CreateMessageServerbound
// based on which peer produced the bytes: clientbound means Server origin.
func (f Factory) Create(origin Origin, id int, state State) (Message, bool) {
	if origin == Server {
		return f.CreateMessageClientbound(id, state)
	}
	return f.CreateMessageServerbound(id, state)
}

// NameSearchLimit bounds the id range ConfigWatcher scans when resolving a
// message name to an id. Widened from the original reference
// implementation's 100 since some message catalogues exceed that.
const NameSearchLimit = 256

// ResolveName looks up the id whose factory-produced name matches name for
// the given (direction, state), scanning [0, NameSearchLimit). It returns
// false if no id in range produces that name.
func (f Factory) ResolveName(origin Origin, state State, name string) (int, bool) {
	for id := 0; id < NameSearchLimit; id++ {
		msg, known := f.Create(origin, id, state)
		if !known {
			continue
		}
		if msg.Name() == name {
			return id, true
		}
	}
	return 0, false
}

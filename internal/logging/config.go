package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cobaltcraft/mc-sniffproxy/internal/protocol"
)

// key identifies one (state, origin) bucket in a FilterTable.
type key struct {
	state  protocol.State
	origin protocol.Origin
}

// FilterTable holds the ignored/detailed message-id sets the Logger
// consults for every rendered message, keyed by (ConnectionState, Origin).
type FilterTable struct {
	LogToConsole bool
	ignored      map[key]map[int]struct{}
	detailed     map[key]map[int]struct{}
}

// NewFilterTable returns an empty table: nothing ignored, nothing detailed.
func NewFilterTable() *FilterTable {
	return &FilterTable{
		ignored:  make(map[key]map[int]struct{}),
		detailed: make(map[key]map[int]struct{}),
	}
}

func (t *FilterTable) IsIgnored(state protocol.State, origin protocol.Origin, id int) bool {
	_, ok := t.ignored[key{state, origin}][id]
	return ok
}

func (t *FilterTable) IsDetailed(state protocol.State, origin protocol.Origin, id int) bool {
	_, ok := t.detailed[key{state, origin}][id]
	return ok
}

func (t *FilterTable) addIgnored(state protocol.State, origin protocol.Origin, id int) {
	if t.ignored[key{state, origin}] == nil {
		t.ignored[key{state, origin}] = make(map[int]struct{})
	}
	t.ignored[key{state, origin}][id] = struct{}{}
}

func (t *FilterTable) addDetailed(state protocol.State, origin protocol.Origin, id int) {
	if t.detailed[key{state, origin}] == nil {
		t.detailed[key{state, origin}] = make(map[int]struct{})
	}
	t.detailed[key{state, origin}][id] = struct{}{}
}

// stateSection is the recognized per-state JSON schema. Entries may be
// either a numeric id or a string message name; json.RawMessage defers
// that decision to resolveEntries.
type stateSection struct {
	IgnoredClientbound  []json.RawMessage `json:"ignored_clientbound"`
	IgnoredServerbound  []json.RawMessage `json:"ignored_serverbound"`
	DetailedClientbound []json.RawMessage `json:"detailed_clientbound"`
	DetailedServerbound []json.RawMessage `json:"detailed_serverbound"`
}

type configFile struct {
	LogToConsole bool            `json:"LogToConsole"`
	Handshaking  *stateSection   `json:"Handshaking"`
	Status       *stateSection   `json:"Status"`
	Login        *stateSection   `json:"Login"`
	Play         *stateSection   `json:"Play"`
}

var sectionStates = []struct {
	name  string
	state protocol.State
}{
	{"Handshaking", protocol.StateHandshake},
	{"Status", protocol.Status},
	{"Login", protocol.Login},
	{"Play", protocol.Play},
}

// LoadConfig reads and parses the filter config at path, resolving any
// string message-name entries via factory. It returns the file's
// modification time alongside the parsed table so callers can dedupe
// reloads of an unchanged file. A parse failure returns a non-nil error
// and no table; callers must keep using their previous FilterTable.
func LoadConfig(path string, factory protocol.Factory) (*FilterTable, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("config: stat: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("config: read: %w", err)
	}

	var cf configFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, time.Time{}, fmt.Errorf("config: parse: %w", err)
	}

	table := NewFilterTable()
	table.LogToConsole = cf.LogToConsole

	sections := map[string]*stateSection{
		"Handshaking": cf.Handshaking,
		"Status":      cf.Status,
		"Login":       cf.Login,
		"Play":        cf.Play,
	}

	for _, ss := range sectionStates {
		section := sections[ss.name]
		// Sections absent from the config clear all four filter sets for
		// that state - NewFilterTable already starts empty for every
		// (state, origin) key, so there is nothing further to do here;
		// this loop exists to make that reset explicit and to process
		// whatever section IS present.
		if section == nil {
			continue
		}
		resolveEntries(table, factory, ss.state, protocol.Server, section.IgnoredClientbound, table.addIgnored)
		resolveEntries(table, factory, ss.state, protocol.Client, section.IgnoredServerbound, table.addIgnored)
		resolveEntries(table, factory, ss.state, protocol.Server, section.DetailedClientbound, table.addDetailed)
		resolveEntries(table, factory, ss.state, protocol.Client, section.DetailedServerbound, table.addDetailed)
	}

	return table, info.ModTime(), nil
}

// resolveEntries decodes each raw JSON entry as either an integer id or a
// string message name (resolved against factory for direction `origin`),
// inserting matches under (state, keyOrigin) via add. Both _clientbound
// variants key on (state, Server) and both _serverbound variants key on
// (state, Client) - the consistent fix for the original reference
// implementation's mismatched key selection (see DESIGN.md / SPEC_FULL.md
// §9). The "direction to resolve names against" and "origin key to file
// under" are the same value here by construction: _clientbound entries are
// clientbound message names, filed under the Server-origin bucket that
// holds clientbound traffic; _serverbound entries are serverbound message
// names, filed under the Client-origin bucket.
func resolveEntries(table *FilterTable, factory protocol.Factory, state protocol.State, keyOrigin protocol.Origin, entries []json.RawMessage, add func(protocol.State, protocol.Origin, int)) {
	for _, raw := range entries {
		var asInt int
		if err := json.Unmarshal(raw, &asInt); err == nil {
			add(state, keyOrigin, asInt)
			continue
		}
		var asName string
		if err := json.Unmarshal(raw, &asName); err != nil {
			continue
		}
		// keyOrigin IS the direction whose factory to resolve against:
		// Server means "this name came from a clientbound list", so look
		// it up with CreateMessageClientbound (factory.Create(Server, ...)).
		if id, ok := factory.ResolveName(keyOrigin, state, asName); ok {
			add(state, keyOrigin, id)
		}
	}
}

package pgn

import (
	"fmt"

	"github.com/halyard-systems/n2k-node"
)

// Registry maps a PGN number to every descriptor that can be carried under
// it. Most PGNs have exactly one descriptor; a few (proprietary PGNs keyed
// by manufacturer code) carry several, disambiguated via IsMatch.
type Registry struct {
	byPGN map[n2k.PGN][]Descriptor
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byPGN: make(map[n2k.PGN][]Descriptor)}
}

// Register adds d to the registry. Registering a second descriptor for a
// PGN already known marks both non-unique; Decode then uses IsMatch to pick
// the right one.
func (r *Registry) Register(d Descriptor) {
	existing := r.byPGN[d.PGN]
	if len(existing) == 1 {
		existing[0].Matchable = true
		d.Matchable = true
	} else if len(existing) > 1 {
		d.Matchable = true
	}
	r.byPGN[d.PGN] = append(existing, d)
}

// Lookup returns the descriptor(s) registered for pgn.
func (r *Registry) Lookup(pgn n2k.PGN) ([]Descriptor, bool) {
	d, ok := r.byPGN[pgn]
	return d, ok
}

// Decode finds the descriptor registered for raw's PGN and decodes it. If
// more than one descriptor is registered, the first whose IsMatch agrees
// with the payload is used.
func (r *Registry) Decode(raw n2k.RawMessage) (Message, error) {
	candidates, ok := r.byPGN[raw.Header.PGN]
	if !ok {
		return Message{}, fmt.Errorf("%w: pgn %d", n2k.ErrUnknownPGN, raw.Header.PGN)
	}
	for _, d := range candidates {
		if !d.IsMatch(raw.Data) {
			continue
		}
		return Decode(raw, d)
	}
	return Message{}, fmt.Errorf("%w: pgn %d matched no registered descriptor", n2k.ErrUnknownPGN, raw.Header.PGN)
}

// FastPacketPGNs lists every PGN registered with Type Fast, for handing to
// n2k.NewFastPacketAssembler.
func (r *Registry) FastPacketPGNs() []n2k.PGN {
	var out []n2k.PGN
	for pgn, descriptors := range r.byPGN {
		for _, d := range descriptors {
			if d.Type == Fast {
				out = append(out, pgn)
				break
			}
		}
	}
	return out
}

// DefaultRegistry holds every statically declared PGN descriptor in this
// package, populated by each message file's init().
var DefaultRegistry = NewRegistry()

package schema

import "github.com/roach88/docmap/internal/wire"

// LocalIDName is the local name of the identity field.
const LocalIDName = "id"

// Aliases is the static wire-name to local-name table of one type. The
// identity field is always aliased to wire.IDKey. It never changes after
// the type is declared.
type Aliases struct {
	toWire  map[string]string
	toLocal map[string]string
}

func newAliases(fields []Field) *Aliases {
	a := &Aliases{
		toWire:  map[string]string{LocalIDName: wire.IDKey},
		toLocal: map[string]string{wire.IDKey: LocalIDName},
	}
	for _, f := range fields {
		if f.Wire == f.Name {
			continue
		}
		a.toWire[f.Name] = f.Wire
		a.toLocal[f.Wire] = f.Name
	}
	return a
}

// WireName resolves a local name to its wire name. Names without an alias
// are returned unchanged.
func (a *Aliases) WireName(local string) string {
	if w, ok := a.toWire[local]; ok {
		return w
	}
	return local
}

// LocalName resolves a wire name to its local name. Names without an alias
// are returned unchanged.
func (a *Aliases) LocalName(wireName string) string {
	if l, ok := a.toLocal[wireName]; ok {
		return l
	}
	return wireName
}

// Pairs returns every (local, wire) alias pair, including the identity.
func (a *Aliases) Pairs() map[string]string {
	out := make(map[string]string, len(a.toWire))
	for l, w := range a.toWire {
		out[l] = w
	}
	return out
}

// Package schema provides the data structures shared between the local
// record store, the sync engine, and the wire protocol.
//
// # Records
//
// TrialRecord is one forestry trial plot: a client-generated UUID, the
// agronomic attributes captured in the field, a WGS84 location, and the
// per-record sync state (synced, assess_updated). The JSON tags on
// TrialRecord are the wire format exchanged with the remote endpoint.
//
// UserProfile is one local operator identity. Exactly one profile is
// active at a time; the active profile's username is stamped onto every
// trial created while it is active.
//
// # Growth grids
//
// A growth assessment is a fixed 5x5 grid of per-cell growth states
// (Planted, Maintained, Grown). The grid travels as an opaque JSON
// payload of the shape {"grid": [["P","M","G",...], ...]} attached to a
// trial. EncodeGrid and DecodeGrid convert between the typed Grid and
// that payload. DecodeGrid distinguishes "no assessment yet" (nil, nil)
// from a corrupt payload (nil, ErrCorruptGrid) so callers never have to
// guess which one they got.
//
// # Validation
//
// All validation lives at this boundary. Validate methods return errors
// wrapping ErrValidation so callers can classify with errors.Is.
package schema

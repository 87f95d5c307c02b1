// Package convert normalizes identifiers, timestamps and container values
// between their wire and native forms.
//
// Conversion never fails loudly: an unrecognized input yields absence
// (ok == false) so that inflating malformed legacy data always succeeds.
// The single exception is ParseID, which parses caller-supplied strings and
// reports ErrInvalidID.
package convert

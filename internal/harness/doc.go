// Package harness runs change-set scenarios against declared types.
//
// A scenario describes a persisted document, the edits applied to the
// instance inflated from it, and the change set those edits must produce.
// It exercises the full path used by a persistence layer: inflate,
// mutate, dirty tracking, deflate and change-set construction.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: rename_user
//	description: "Renaming a user writes only the aliased name"
//	type: user
//	schema: |
//	  type: user: fields: {
//	    name: {kind: "scalar", wire: "n"}
//	    age:  {kind: "scalar"}
//	  }
//	snapshot: |
//	  {"_id": {"$oid": "000000000000000000000001"}, "n": "Ada", "age": 36}
//	mutations:
//	  - op: set
//	    field: name
//	    value: Grace
//	expect:
//	  dirty: [name]
//	  set: '{"n": "Grace"}'
//	  unset: []
//
// Types come from inline CUE (schema) or a directory of .cue files
// (schema_dir, resolved relative to the scenario file). The snapshot is
// relaxed extended JSON and must carry an _id.
//
// # Mutations
//
//   - set: assigns a field by local name from value (YAML) or json
//     (extended JSON). Nested fields take documents or arrays of documents.
//   - delete: empties a field slot.
//   - mark: forces a field to be written.
//   - extra: sets an overflow key.
//   - drop_extra: removes an overflow key.
//
// # Determinism
//
// Change sets are compared canonically, so key order inside set values and
// numeric width do not matter. RunWithGolden records the canonical result
// under testdata/golden for review.
package harness

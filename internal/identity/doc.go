// Package identity provides canonical key construction and content hashing
// for experiment identity.
//
// This package contains pure computation only. All other internal packages
// may import identity; identity imports nothing internal. This keeps the
// identity layer foundational with no circular dependencies.
//
// Key design constraints:
//   - Hashing is deterministic across processes and platforms: canonical
//     JSON (sorted keys, no whitespace, NFC strings) is the only
//     serialization used for identity computation
//   - Key documents are built fresh per call and never persisted; only
//     their hashes travel (tags, index entries, run names)
//   - v1 and v2 key schemas are independent; hashes from different schema
//     versions are never comparable
package identity

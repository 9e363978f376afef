// Package sqlitestore is the local tracking backend: a sqlite-backed
// implementation of tracking.Client covering runs, tags, metrics, and
// artifacts.
//
// It is the backend the local platform and the CLI run against, and the
// fixture the discovery and pipeline layers are integration-tested
// with. Remote backends (a hosted tracking server) implement the same
// interface outside this repository.
//
// Artifacts are stored as plain files under <dir>/artifacts/<run_id>/,
// with the database recording their paths. Download is a copy out of
// that tree, which mirrors how a real backend resolves an artifact URI
// to local bytes.
package sqlitestore

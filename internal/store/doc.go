package store

// Package store owns every persisted entity: accounts, hotspots, content
// assets, publish tasks, task logs, and publish metrics. All mutation flows
// through this package; other components only read and return plain values.
//
// Two drivers exist behind Open():
//   - memory: in-process maps, the default for tests and mock profiles
//   - sqlite: a single-writer SQLite file with embedded migrations

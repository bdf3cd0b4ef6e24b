// Package cache defines the namespaced store that backs every offline worker.
// A namespace (e.g. quantlens-shell-2025-09-18-1) groups response snapshots
// keyed by request path + query string. Namespaces are created on Open and
// removed only as a whole through Delete; individual entries are never
// evicted. Two drivers exist: fs writes one JSON file per entry under
// StoragePath/<namespace>/ using temp file + rename, sqlite keeps everything
// in a single modernc.org/sqlite database file. Higher layers (worker) decide
// when to read or write; this package never talks to the network.
package cache

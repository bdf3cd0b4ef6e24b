// Package worker implements the offline-resilience core: one Worker per
// (namespace prefix, scope) pair owns the install/activate lifecycle of its
// cache namespace and resolves every intercepted request network-first.
//
// Navigation requests fall back to the cached fallback document and finally
// to a synthesized offline page, so they never fail. Asset requests fall back
// to a search-insensitive cache lookup and otherwise propagate the network
// failure. The two deployed variants (subpath "shell" and origin "root")
// differ only in Config.
package worker

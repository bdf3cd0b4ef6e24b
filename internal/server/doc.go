// Package server hosts the Fiber HTTP front and the worker registry that maps
// request paths onto worker scopes. The registry builds one worker per
// configured scope, runs install/activate at startup, and hands the active
// registration to the proxy handler. Diagnostics live under /-/ and are never
// intercepted by a worker. Keep exports narrow and accept explicit
// dependencies so cmd wiring and tests can swap collaborators.
package server

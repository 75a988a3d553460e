// Package mcp defines the wire-level types of the Model Context Protocol
// as carried by this adapter: method identifiers, capability descriptors,
// and the request/result shapes exchanged inside JSON-RPC envelopes.
//
// The types here are plain data carriers. Transport concerns (batching,
// session headers, HTTP status mapping) live in the httptransport package;
// dispatch lives in the router package.
package mcp

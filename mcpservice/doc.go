// Package mcpservice provides ready-made capability handlers for the
// router: a System handler for lifecycle and utility methods, static
// containers for tools, resources and prompts, and a filesystem-backed
// resources provider with change watching.
//
// Everything here is optional; applications with their own capability
// backends implement the router handler interfaces directly.
package mcpservice

// Package app contains the registry use cases shared by the JSON-RPC daemon
// and the docctl command line.
//
// Responsibilities:
// - Define the RegistryAPI and DaemonService ports consumed by adapters.
// - Compose identity, registry, substrate and query into one Service.
// - Fill in ambient concerns (current time, rejection metrics, logging).
//
// Non-responsibilities:
// - JSON-RPC/HTTP protocol handling and CLI argument parsing.
// - Choosing or opening a storage backend.
package app

// Package unitpool resolves named units across a pool of isolated containers.
//
// It offers:
// - containers with a private repository and a local cache of resolved units
// - a registry of started containers that share units under configured name prefixes
// - a fixed fallback search: system delegate, parent, peer caches, local repository, parent
// - per-name serialization so a shared name is materialized by exactly one container
// - a Catalog repository, YAML configuration and DOT/Mermaid pool export
package unitpool

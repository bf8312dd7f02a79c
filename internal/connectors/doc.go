// Package connectors holds the clients for upstream data sources.
// The catalog package implements the driven.Catalog port over the
// listing catalog's changes feed and offer endpoints.
package connectors

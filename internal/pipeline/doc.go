// Package pipeline ties chunk ingest, session storage and transcription
// together into the request-level operations the HTTP API exposes.
package pipeline

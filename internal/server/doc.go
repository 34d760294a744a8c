// Package server implements the HTTP API: chunk upload, finalize, transcript
// processing, and monitoring/management endpoints.
package server

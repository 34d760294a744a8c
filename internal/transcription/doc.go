// Package transcription implements the HTTP client for the speech-to-text
// API. It uploads finished WAV recordings as multipart form data, retries
// transient failures with exponential backoff, and bounds concurrency.
package transcription

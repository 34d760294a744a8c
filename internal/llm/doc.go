// Package llm post-processes transcripts into summaries, meeting minutes and
// to-do lists through a chat-completions API.
package llm

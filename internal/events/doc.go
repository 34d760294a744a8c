// Package events publishes finished transcripts to Kafka.
package events

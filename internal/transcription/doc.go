// Package transcription fetches video transcripts through the rotating
// proxy pool with bounded retry and persists them as artifacts.
package transcription

// Package crawler defines the domain types and interfaces shared by the event
// discovery, match extraction and replay download stages of the scraper.
package crawler

// Package extractor turns the listing site's server-rendered pages into
// EventRecords and MatchRecords. EventExtractor walks the paginated event
// archive; MatchExtractor reads one event's results page and the match pages
// it links to.
package extractor

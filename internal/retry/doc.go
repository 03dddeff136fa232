// Package retry holds the single blocked-request policy used by every network
// call of the scraper: bounded attempts, a fixed emergency sleep after each
// non-200 response, and an optional run-wide sleep budget.
package retry

// The main package for the demoscraper executable.
package main

import (
	"github.com/JakeFAU/hltv-demo-scraper/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}

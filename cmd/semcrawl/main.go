// Package main provides the entry point for the semcrawl CLI.
//
// semcrawl crawls a single site, optionally behind authentication,
// stores the extracted text, and indexes it for semantic search.
//
// Usage:
//
//	semcrawl crawl --base-url https://example.com
//	semcrawl search "reset a forgotten password"
//
// See --help for all available options.
package main

func main() {
	Execute()
}

// Package main provides the sitecloner command line tool.
//
// Usage:
//
//	sitecloner https://example.com --depth 2 --threads 8 --output mirror
//
// See --help for all available options.
package main

func main() {
	Execute()
}

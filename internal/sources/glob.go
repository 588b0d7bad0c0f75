package sources

import "github.com/gobwas/glob"

// compilePattern compiles a URL-path glob where "*" matches within a
// single path segment and "**" crosses segments, by registering "/" as
// the only separator rune.
func compilePattern(pattern string) (glob.Glob, error) {
	return glob.Compile(pattern, '/')
}

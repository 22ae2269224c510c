package scope

// Rules defines which canonical URLs a crawl may visit.
type Rules struct {
	IncludePatterns []string // regexes; when set a URL must match one
	ExcludePatterns []string // regexes
	ExcludeGlobs    []string // gobwas/glob patterns matched against the path
	MaxDepth        int      // negative means unbounded
	SkipAssets      bool     // drop links to images, archives, documents
}

package scope

// DefaultExcludePatterns keeps a crawl from logging itself out or
// triggering destructive account actions.
var DefaultExcludePatterns = []string{
	`.*[?&]logout.*`,
	`.*[?&]signout.*`,
	`.*\/logout.*`,
	`.*\/signout.*`,
	`.*\/delete-account.*`,
	`.*\/unsubscribe.*`,
}

// WithDefaultExcludes returns r extended with DefaultExcludePatterns. The
// receiver's slices are not modified.
func (r Rules) WithDefaultExcludes() Rules {
	patterns := make([]string, 0, len(r.ExcludePatterns)+len(DefaultExcludePatterns))
	patterns = append(patterns, r.ExcludePatterns...)
	r.ExcludePatterns = append(patterns, DefaultExcludePatterns...)
	return r
}

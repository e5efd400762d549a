package config

// DefaultExcludePatterns keeps editor swap files, backups and OS litter out
// of the tab list. Users can override via config.yaml: storage.exclude_patterns
var DefaultExcludePatterns = []string{
	".*.swp",
	".*.swo",
	"*~",
	"*.tmp",
	".#*",
	"#*#",
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
}

package main

// Populated at release time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

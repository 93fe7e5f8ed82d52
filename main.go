package main

import "roostersync/cmd"

// version is the application version, overridable at build time via
// -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}

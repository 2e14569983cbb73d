// cornerstone is the single entrypoint binary for the console, watcher,
// and supervisor roles — selected by subcommand, sharing one configuration
// file format and shared-storage layout.
package main

import "github.com/RaneyMD/cornerstone-archive/internal/cli"

func main() {
	cli.Execute()
}

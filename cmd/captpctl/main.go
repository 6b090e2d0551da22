// Command captpctl is the CLI client for a gocaptp daemon's admin HTTP API.
package main

import "github.com/dantte-lp/gocaptp/cmd/captpctl/commands"

func main() {
	commands.Execute()
}

// gapctl -- a command-line client for the gapd daemon.
package main

import "github.com/dantte-lp/gogap/cmd/gapctl/commands"

func main() {
	commands.Execute()
}

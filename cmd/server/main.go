package main

import "github.com/citylore/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/bakeshelf/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/tanq16/arcfetch/cmd"

func main() {
	cmd.Execute()
}

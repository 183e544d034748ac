package main

import "github.com/keanuharrell/catrole/cmd"

func main() {
	cmd.Execute()
}

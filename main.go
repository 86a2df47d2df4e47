package main

import (
	"EchoVault/cmd"
)

func main() {
	cmd.Execute()
}

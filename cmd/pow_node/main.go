package main

import (
	"powchain/cmd/pow_node/commands"
)

func main() {
	commands.Execute()
}

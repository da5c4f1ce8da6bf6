package main

import (
	"os"

	"github.com/aparcar/udrone/cmd/udronectl/commands"
)

func main() {
	if err := commands.GetRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

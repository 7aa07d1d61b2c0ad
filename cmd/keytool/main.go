package main

import (
	"os"

	"zeroep-backend/cmd/keytool/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

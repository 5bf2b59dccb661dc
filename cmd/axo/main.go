// The entrypoint for the axo CLI.
package main

import (
	"log"

	"axocore/cmd/axo/commands"
)

// Initialises and executes the command hierarchy.
func main() {
	if err := commands.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

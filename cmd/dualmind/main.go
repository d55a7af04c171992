package main

import (
	"log"
	"os"

	"dualmind/internal/launcher"
)

func main() {
	if err := launcher.Run(os.Args, nil); err != nil {
		log.Fatalf("dualmind: %v", err)
	}
}

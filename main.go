package main

import (
	"embed"
	"log"
	"os"

	"dualmind/internal/launcher"
)

//go:embed frontend/index.html frontend/wailsjs
var appAssets embed.FS

func main() {
	if err := launcher.Run(os.Args, appAssets); err != nil {
		log.Fatalf("dualmind: %v", err)
	}
}

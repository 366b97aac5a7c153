package main

import (
	"log"

	"github.com/klipworks/memberbot/core/app"
)

func main() {
	if err := app.Run(app.RunOptions{
		DefaultConfigPath: "config.yaml",
	}); err != nil {
		log.Fatalf("memberbot: %v", err)
	}
}

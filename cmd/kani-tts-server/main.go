package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"kani-tts-server/internal/bootstrap"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	if err := bootstrap.Run(context.Background(), *configPath); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "kani-tts-server failed: %v\n", err)
		os.Exit(1)
	}
}

// Command gen-pgns loads a CANboat-shaped PGN manifest and reports what it
// found. It stands in for a real build-time generator (which would emit Go
// descriptor literals like pgn/messages.go's by hand): wiring the manifest
// loader end to end without committing to a code-generation template.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/halyard-systems/n2k-node/config"
	"github.com/halyard-systems/n2k-node/pgn"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("gen-pgns: %v", err)
	}

	registry := pgn.NewRegistry()
	n, err := pgn.LoadManifest(os.DirFS("."), strings.TrimPrefix(cfg.ManifestPath, "./"), registry)
	if err != nil {
		log.Fatalf("gen-pgns: %v", err)
	}
	fmt.Printf("# loaded %d PGN definitions from %s\n", n, cfg.ManifestPath)
}

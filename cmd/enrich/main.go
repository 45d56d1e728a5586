// Command enrich is the entrypoint for the rate-limit-aware knowledge
// graph link enrichment pipeline.
package main

import (
	cmd "github.com/kgraph/enrich/internal/cli"
)

func main() {
	cmd.Execute()
}

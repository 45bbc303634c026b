// Package mcpwatch embeds the Managed Cloud Platform pump in another Go
// program.
//
// Quick start:
//
//	w, err := mcpwatch.New(ctx,
//	    mcpwatch.WithCredentials(os.Getenv("MCP_USER"), os.Getenv("MCP_PASSWORD")),
//	    mcpwatch.WithRegions("dd-eu"),
//	    mcpwatch.WithHorizon("90d"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
//	if err := w.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Run blocks until the context is cancelled: it first replays every day from
// the configured start up to yesterday, then polls each region for newly
// activated servers. Sinks are selected through the same TOML configuration
// the mcpwatch command uses, see WithConfigFile.
package mcpwatch

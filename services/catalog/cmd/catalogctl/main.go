package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "catalogctl",
		Usage: "Query and seed the title catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Catalog gRPC address; when empty the catalog is opened in-process from the environment",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level for in-process mode",
				Value: "warn",
			},
		},
		Commands: []*cli.Command{
			FindCommand(),
			EnsureCommand(),
			HomeCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

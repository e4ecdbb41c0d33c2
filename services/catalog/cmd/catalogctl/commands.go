package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/title-ratings/internal/platform/logging"
	"github.com/example/title-ratings/services/catalog/internal/app"
	"github.com/example/title-ratings/services/catalog/internal/config"
	"github.com/example/title-ratings/services/catalog/internal/grpcapi"
	"github.com/example/title-ratings/services/catalog/internal/query"
	"github.com/example/title-ratings/services/catalog/internal/store"
)

// findParams are passed through verbatim so the CLI and the HTTP query string
// share one parser.
var findParams = []string{"q", "kind", "genre", "category", "min_rating", "max_rating", "flagged", "sort", "page", "page_size", "mode"}

func FindCommand() *cli.Command {
	flags := make([]cli.Flag, 0, len(findParams))
	for _, name := range findParams {
		flags = append(flags, &cli.StringFlag{Name: name})
	}
	return &cli.Command{
		Name:  "find",
		Usage: "Search local and external titles",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			params := map[string]string{}
			for _, name := range findParams {
				if v := c.String(name); v != "" {
					params[name] = v
				}
			}
			if addr := c.String("addr"); addr != "" {
				return remote(addr, func(cl *grpcapi.Client) (*structpb.Struct, error) {
					in, err := structFromStrings(params)
					if err != nil {
						return nil, err
					}
					return cl.Find(ctx, in)
				})
			}
			return local(ctx, c, func(a *app.App) (any, error) {
				req, err := query.ParseParams(func(k string) string { return params[k] })
				if err != nil {
					return nil, err
				}
				page, err := a.Query.Find(ctx, req)
				if err != nil {
					return nil, err
				}
				if params["mode"] == "append" {
					return page.Append(), nil
				}
				return page, nil
			})
		},
	}
}

func EnsureCommand() *cli.Command {
	return &cli.Command{
		Name:  "ensure",
		Usage: "Fetch one external title and store it if missing",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Value: string(store.KindMovie)},
			&cli.StringFlag{Name: "external-id", Required: true},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			kind, id := c.String("kind"), c.String("external-id")
			if addr := c.String("addr"); addr != "" {
				return remote(addr, func(cl *grpcapi.Client) (*structpb.Struct, error) {
					in, err := structFromStrings(map[string]string{"kind": kind, "external_id": id})
					if err != nil {
						return nil, err
					}
					return cl.Ensure(ctx, in)
				})
			}
			return local(ctx, c, func(a *app.App) (any, error) {
				k, err := store.ParseKind(kind)
				if err != nil {
					return nil, err
				}
				return a.Query.Ensure(ctx, k, id)
			})
		},
	}
}

func HomeCommand() *cli.Command {
	return &cli.Command{
		Name:  "home",
		Usage: "Print the top-rated and most-flagged sections",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "size", Value: 5},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.String("addr") != "" {
				return errors.New("home is only available in-process")
			}
			return local(ctx, c, func(a *app.App) (any, error) {
				return a.Query.Home(ctx, c.Int("size")), nil
			})
		},
	}
}

func local(ctx context.Context, c *cli.Command, fn func(*app.App) (any, error)) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log, err := logging.New("catalogctl", c.String("log-level"), false)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := fn(a)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, out)
}

func remote(addr string, call func(*grpcapi.Client) (*structpb.Struct, error)) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close()

	out, err := call(grpcapi.NewClient(conn))
	if err != nil {
		return err
	}
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(out)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(b))
	return err
}

func structFromStrings(m map[string]string) (*structpb.Struct, error) {
	fields := make(map[string]any, len(m))
	for k, v := range m {
		fields[k] = v
	}
	return structpb.NewStruct(fields)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

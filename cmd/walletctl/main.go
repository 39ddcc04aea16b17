package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/vultisig/octra-wallet/config"
	"github.com/vultisig/octra-wallet/dapp"
	"github.com/vultisig/octra-wallet/internal/logging"
	"github.com/vultisig/octra-wallet/internal/types"
	"github.com/vultisig/octra-wallet/rpc"
	"github.com/vultisig/octra-wallet/service"
	"github.com/vultisig/octra-wallet/storage"
	"github.com/vultisig/octra-wallet/storage/backend"
)

const configFlag = "config"

func main() {
	app := &cli.App{
		Name:  "walletctl",
		Usage: "Inspect and administer the wallet store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  configFlag,
				Value: "config",
				Usage: "Config file name, without extension",
			},
		},
		Commands: []*cli.Command{
			providersCommand(),
			balanceCommand(),
			dappsCommand(),
			tokenCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		logging.Logger.Fatal(err)
	}
}

// withStore opens the configured store for the duration of fn.
func withStore(cCtx *cli.Context, fn func(cfg *config.Config, store storage.KV) error) error {
	cfg, err := config.ReadConfig(cCtx.String(configFlag))
	if err != nil {
		return err
	}
	logging.SetLevel(cfg.Server.LogLevel)
	store, err := backend.Open(*cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Logger.Errorf("fail to close store, err: %v", err)
		}
	}()
	return fn(cfg, store)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseHeaders(values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, v := range values {
		k, val, ok := strings.Cut(v, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("header %q is not key=value", v)
		}
		out[k] = val
	}
	return out, nil
}

func providersCommand() *cli.Command {
	registry := func(cfg *config.Config, store storage.KV) *rpc.Registry {
		return rpc.NewRegistry(store, cfg.RPC.DefaultURL, logging.Logger)
	}
	return &cli.Command{
		Name:    "providers",
		Aliases: []string{"p"},
		Usage:   "Manage rpc providers",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List providers, header values redacted",
				Action: func(cCtx *cli.Context) error {
					return withStore(cCtx, func(cfg *config.Config, store storage.KV) error {
						providers, err := registry(cfg, store).List(cCtx.Context)
						if err != nil {
							return err
						}
						out := make([]types.RPCProvider, 0, len(providers))
						for _, p := range providers {
							out = append(out, p.Redacted())
						}
						return printJSON(out)
					})
				},
			},
			{
				Name:  "add",
				Usage: "Add a provider",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "url", Required: true},
					&cli.IntFlag{Name: "priority", Value: 10},
					&cli.StringSliceFlag{Name: "header", Usage: "key=value, repeatable"},
				},
				Action: func(cCtx *cli.Context) error {
					headers, err := parseHeaders(cCtx.StringSlice("header"))
					if err != nil {
						return err
					}
					return withStore(cCtx, func(cfg *config.Config, store storage.KV) error {
						p, err := registry(cfg, store).Add(cCtx.Context, types.AddProviderRequest{
							Name:     cCtx.String("name"),
							URL:      cCtx.String("url"),
							Headers:  headers,
							Priority: cCtx.Int("priority"),
						})
						if err != nil {
							return err
						}
						return printJSON(p.Redacted())
					})
				},
			},
			{
				Name:      "use",
				Usage:     "Make a provider the active one",
				ArgsUsage: "<id>",
				Action: func(cCtx *cli.Context) error {
					id := cCtx.Args().First()
					if id == "" {
						return fmt.Errorf("provider id is required")
					}
					return withStore(cCtx, func(cfg *config.Config, store storage.KV) error {
						r := registry(cfg, store)
						if err := r.SetActive(cCtx.Context, id); err != nil {
							return err
						}
						active, err := r.Active(cCtx.Context)
						if err != nil {
							return err
						}
						if active.ID != id {
							return fmt.Errorf("provider %s not found", id)
						}
						return printJSON(active.Redacted())
					})
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a provider",
				ArgsUsage: "<id>",
				Action: func(cCtx *cli.Context) error {
					return withStore(cCtx, func(cfg *config.Config, store storage.KV) error {
						return registry(cfg, store).Remove(cCtx.Context, cCtx.Args().First())
					})
				},
			},
		},
	}
}

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Read balance and nonce of an address from the active provider",
		ArgsUsage: "<address>",
		Action: func(cCtx *cli.Context) error {
			address := cCtx.Args().First()
			if address == "" {
				return fmt.Errorf("address is required")
			}
			return withStore(cCtx, func(cfg *config.Config, store storage.KV) error {
				gateway := rpc.NewGatewayFromConfig(*cfg, store, logging.Logger)
				state, err := service.NewNodeClient(gateway).FetchBalance(cCtx.Context, address)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"address": address,
					"balance": state.Balance,
					"nonce":   state.Nonce,
				})
			})
		},
	}
}

func dappsCommand() *cli.Command {
	return &cli.Command{
		Name:  "dapps",
		Usage: "Manage connected dApps",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List connected dApps",
				Action: func(cCtx *cli.Context) error {
					return withStore(cCtx, func(_ *config.Config, store storage.KV) error {
						list, err := dapp.NewConnectionStore(store).List(cCtx.Context)
						if err != nil {
							return err
						}
						return printJSON(list)
					})
				},
			},
			{
				Name:      "disconnect",
				Usage:     "Forget a connected dApp",
				ArgsUsage: "<origin>",
				Action: func(cCtx *cli.Context) error {
					origin := cCtx.Args().First()
					if origin == "" {
						return fmt.Errorf("origin is required")
					}
					return withStore(cCtx, func(_ *config.Config, store storage.KV) error {
						removed, err := dapp.NewConnectionStore(store).Disconnect(cCtx.Context, origin)
						if err != nil {
							return err
						}
						if !removed {
							return fmt.Errorf("%s is not connected", origin)
						}
						return nil
					})
				},
			},
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue a bearer token for the management api",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Value: "walletctl"},
		},
		Action: func(cCtx *cli.Context) error {
			cfg, err := config.ReadConfig(cCtx.String(configFlag))
			if err != nil {
				return err
			}
			token, err := service.NewAuthService(cfg.Server.JWTSecret).GenerateToken(cCtx.String("subject"))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}

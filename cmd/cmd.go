// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write the example configuration to --config",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "migrations",
				Usage:  "List known migrations and whether they are applied",
				Action: r.SetupMigrations,
			},
			{
				Name:   "rollback",
				Usage:  "Revert the most recently applied migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// serveCommand runs the HTTP API, the authorization callback and every cleanup instance.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the cleanup service",
		Action: r.Serve,
	}
}

// authCommand stores credentials for a state.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize Spotify access and store the tokens under a state",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "state",
				Usage: "Credential state to store tokens under (default: random)",
			},
			&cli.BoolFlag{
				Name:  "remote",
				Usage: "Authorize through a running server's /login instead of a local callback",
			},
		},
		Action: r.Auth,
	}
}

func cleanupFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "playlist",
			Aliases:  []string{"p"},
			Usage:    "Playlist ID to clean up",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "state",
			Aliases:  []string{"s"},
			Usage:    "Credential state the tokens are stored under",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:    "contributor",
			Aliases: []string{"u"},
			Usage:   "Approved contributor user ID (repeatable)",
		},
	}
}

// startCommand starts (or resumes) a cleanup instance on a running server.
func startCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Start the recurring cleanup for a playlist",
		Flags: append(cleanupFlags(), &cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		}),
		Action: r.Start,
	}
}

// previewCommand computes a removal set locally without changing anything.
func previewCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "preview",
		Aliases: []string{"dry-run"},
		Usage:   "Show which tracks a cleanup would remove",
		Flags: append(cleanupFlags(), &cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		}),
		Action: r.Preview,
	}
}

// instancesCommand inspects and controls cleanup instances on a running server.
func instancesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "instances",
		Aliases: []string{"inst"},
		Usage:   "Inspect and terminate cleanup instances",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List instances",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only list instances with this status (running, failed, terminated)",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, csv, markdown, json",
						Value:   "text",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to a file instead of stdout",
					},
				},
				Action: r.InstancesList,
			},
			{
				Name:      "show",
				Usage:     "Show one instance",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.InstancesShow,
			},
			{
				Name:      "history",
				Usage:     "Show the current generation's history of an instance",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.InstancesHistory,
			},
			{
				Name:      "terminate",
				Usage:     "Terminate an instance",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "reason",
						Usage: "Reason recorded on the instance",
						Value: "terminated from cli",
					},
				},
				Action: r.InstancesTerminate,
			},
		},
	}
}

// counterCommand reads and resets removal counters on a running server.
func counterCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "counter",
		Usage: "Inspect removal counters",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Show the removal count for a state",
				Arguments: []cli.Argument{&cli.StringArg{Name: "state"}},
				Action:    r.CounterGet,
			},
			{
				Name:      "reset",
				Usage:     "Reset the removal count for a state to zero",
				Arguments: []cli.Argument{&cli.StringArg{Name: "state"}},
				Action:    r.CounterReset,
			},
			{
				Name:      "history",
				Usage:     "Show recent counter operations for a state",
				Arguments: []cli.Argument{&cli.StringArg{Name: "state"}},
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of operations to show",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CounterHistory,
			},
		},
	}
}

// secretsCommand inspects the local credential vault.
func secretsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "secrets",
		Usage: "Inspect stored credentials",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List secret names and expiries in the configured vault",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SecretsList,
			},
			{
				Name:      "delete",
				Usage:     "Delete a secret from the configured vault",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Action:    r.SecretsDelete,
			},
		},
	}
}

// watchCommand returns the interactive instance monitor.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "watch",
		Aliases: []string{"tui", "ui"},
		Usage:   "Monitor cleanup instances interactively",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "status",
				Usage: "Only show instances with this status",
			},
			&cli.DurationFlag{
				Name:  "every",
				Usage: "Refresh interval",
				Value: 5 * time.Second,
			},
		},
		Action: r.Watch,
	}
}

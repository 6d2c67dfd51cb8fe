package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ttab/elephant-signoff/linediff"
	"github.com/ttab/elephant-signoff/signoff"
	"github.com/ttab/elephant-signoff/store"
	"github.com/ttab/elephantine"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

func main() {
	app := cli.App{
		Name:  "signoff",
		Usage: "Operate the collection review workflow",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "server",
				EnvVars:  []string{"SIGNOFF_SERVER"},
				Usage:    "base URL of the document store",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "bucket",
				EnvVars:  []string{"SIGNOFF_BUCKET"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "collection",
				EnvVars:  []string{"SIGNOFF_COLLECTION"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "actor",
				EnvVars:  []string{"SIGNOFF_ACTOR"},
				Usage:    "principal id performing the actions",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "auth-strategy",
				EnvVars: []string{"AUTH_STRATEGY"},
				Usage: fmt.Sprintf("authentication strategy (%s, %s, %s)",
					AuthNone, AuthPassword, AuthClientCredentials),
				Value: string(AuthNone),
			},
			&cli.StringFlag{
				Name:    "token-endpoint",
				EnvVars: []string{"TOKEN_ENDPOINT"},
			},
			&cli.StringFlag{
				Name:    "client-id",
				EnvVars: []string{"CLIENT_ID"},
			},
			&cli.StringFlag{
				Name:    "client-secret",
				EnvVars: []string{"CLIENT_SECRET"},
			},
			&cli.StringFlag{
				Name:    "username",
				EnvVars: []string{"USERNAME"},
			},
			&cli.StringFlag{
				Name:    "password",
				EnvVars: []string{"PASSWORD"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show the workflow snapshot for the collection",
				Action: runStatus,
			},
			{
				Name:   "request-review",
				Usage:  "Ask for the staged changes to be reviewed",
				Action: runRequestReview,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "comment"},
				},
			},
			{
				Name:   "approve",
				Usage:  "Approve the changes under review",
				Action: runApprove,
			},
			{
				Name:   "decline",
				Usage:  "Send the changes under review back to the editor",
				Action: runDecline,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "comment"},
				},
			},
			{
				Name:   "rollback",
				Usage:  "Ask for the signed collection to be rolled back",
				Action: runRollback,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "comment"},
				},
			},
			{
				Name:   "diff",
				Usage:  "Show what changed on the source collection",
				Action: runDiff,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "context",
						Value: 3,
						Usage: "unchanged lines to keep around changes, -1 for all",
					},
				},
			},
			{
				Name:   "watch",
				Usage:  "Continuously refresh and print the workflow snapshot",
				Action: runWatch,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "interval",
						Value: 30 * time.Second,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("failed to run application",
			elephantine.LogKeyError, err)
		os.Exit(1)
	}
}

type AuthStrategy string

const (
	AuthNone              AuthStrategy = "none"
	AuthPassword          AuthStrategy = "password"
	AuthClientCredentials AuthStrategy = "client_credentials"
)

func httpClient(c *cli.Context) (*http.Client, error) {
	strategy := AuthStrategy(c.String("auth-strategy"))

	switch strategy {
	case AuthNone:
		return http.DefaultClient, nil
	case AuthPassword:
		authConf := oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL: c.String("token-endpoint"),
			},
			ClientID:     c.String("client-id"),
			ClientSecret: c.String("client-secret"),
		}

		token, err := authConf.PasswordCredentialsToken(c.Context,
			c.String("username"), c.String("password"))
		if err != nil {
			return nil, fmt.Errorf(
				"could not create password grant token: %w", err)
		}

		return oauth2.NewClient(c.Context,
			authConf.TokenSource(c.Context, token)), nil
	case AuthClientCredentials:
		conf := clientcredentials.Config{
			ClientID:     c.String("client-id"),
			ClientSecret: c.String("client-secret"),
			TokenURL:     c.String("token-endpoint"),
		}

		return oauth2.NewClient(c.Context,
			conf.TokenSource(c.Context)), nil
	}

	return nil, fmt.Errorf("unknown auth strategy: %s", strategy)
}

type invocation struct {
	Logger   *slog.Logger
	Client   store.Client
	Workflow *signoff.Workflow
	Bucket   string
	Collect  string
}

func setup(c *cli.Context) (*invocation, error) {
	logger := elephantine.SetUpLogger(c.String("log-level"), os.Stderr)

	authClient, err := httpClient(c)
	if err != nil {
		return nil, err
	}

	client := store.NewHTTPClient(c.String("server"), store.HTTPClientOptions{
		Client: authClient,
		Logger: logger.With(elephantine.LogKeyComponent, "store"),
	})

	metrics, err := signoff.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("set up metrics: %w", err)
	}

	workflow, err := signoff.New(signoff.Options{
		Logger:  logger.With(elephantine.LogKeyComponent, "workflow"),
		Client:  client,
		Actor:   c.String("actor"),
		Metrics: metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}

	return &invocation{
		Logger:   logger,
		Client:   client,
		Workflow: workflow,
		Bucket:   c.String("bucket"),
		Collect:  c.String("collection"),
	}, nil
}

func runStatus(c *cli.Context) error {
	inv, err := setup(c)
	if err != nil {
		return err
	}

	snap, err := inv.Workflow.Snapshot(c.Context, inv.Bucket, inv.Collect)
	if err != nil {
		return fmt.Errorf("build workflow snapshot: %w", err)
	}

	return printSnapshot(snap)
}

func runRequestReview(c *cli.Context) error {
	inv, err := setup(c)
	if err != nil {
		return err
	}

	snap, err := inv.Workflow.RequestReview(c.Context,
		inv.Bucket, inv.Collect, c.String("comment"))
	if err != nil {
		return fmt.Errorf("request review: %w", err)
	}

	return printSnapshot(snap)
}

func runApprove(c *cli.Context) error {
	inv, err := setup(c)
	if err != nil {
		return err
	}

	snap, err := inv.Workflow.ApproveChanges(c.Context,
		inv.Bucket, inv.Collect)
	if err != nil {
		return fmt.Errorf("approve changes: %w", err)
	}

	return printSnapshot(snap)
}

func runDecline(c *cli.Context) error {
	inv, err := setup(c)
	if err != nil {
		return err
	}

	snap, err := inv.Workflow.DeclineChanges(c.Context,
		inv.Bucket, inv.Collect, c.String("comment"))
	if err != nil {
		return fmt.Errorf("decline changes: %w", err)
	}

	return printSnapshot(snap)
}

func runRollback(c *cli.Context) error {
	inv, err := setup(c)
	if err != nil {
		return err
	}

	snap, err := inv.Workflow.RollbackChanges(c.Context,
		inv.Bucket, inv.Collect, c.String("comment"))
	if err != nil {
		return fmt.Errorf("rollback changes: %w", err)
	}

	return printSnapshot(snap)
}

func runDiff(c *cli.Context) error {
	inv, err := setup(c)
	if err != nil {
		return err
	}

	snap, err := inv.Workflow.Snapshot(c.Context, inv.Bucket, inv.Collect)
	if err != nil {
		return fmt.Errorf("build workflow snapshot: %w", err)
	}

	if snap == nil {
		return fmt.Errorf("%s/%s is not configured for review",
			inv.Bucket, inv.Collect)
	}

	// Compare against the last reviewed state if there is one,
	// otherwise against what is published.
	compare := snap.Destination.Location
	if snap.Preview != nil {
		compare = snap.Preview.Location
	}

	oldRecords, err := inv.Client.Records(c.Context, compare)
	if err != nil {
		return fmt.Errorf("fetch records from %s: %w", compare, err)
	}

	newRecords, err := inv.Client.Records(c.Context,
		snap.Source.Location)
	if err != nil {
		return fmt.Errorf("fetch records from %s: %w",
			snap.Source.Location, err)
	}

	changes := signoff.ClassifyChanges(oldRecords, newRecords,
		signoff.VolatileFields)

	for _, change := range changes {
		fmt.Printf("%s %s\n", change.ID, change.Type)

		if change.Type != signoff.ChangeUpdate {
			continue
		}

		blocks := linediff.Diff(change.Source, change.Target,
			c.Int("context"))
		for _, block := range blocks {
			fmt.Println(block)
		}
	}

	return nil
}

func runWatch(c *cli.Context) error {
	inv, err := setup(c)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(c.Context,
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	poller := signoff.NewPoller(inv.Workflow, signoff.PollerOptions{
		Logger:   inv.Logger.With(elephantine.LogKeyComponent, "poller"),
		Interval: c.Duration("interval"),
	})

	poller.SetLocation(inv.Bucket, inv.Collect)

	go func() {
		for snap := range poller.Snapshots() {
			err := printSnapshot(snap)
			if err != nil {
				inv.Logger.Error("failed to print snapshot",
					elephantine.LogKeyError, err)
			}
		}
	}()

	err = poller.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("run poller: %w", err)
	}

	return nil
}

func printSnapshot(snap *signoff.Snapshot) error {
	if snap == nil {
		fmt.Println("not configured for review")

		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	err := enc.Encode(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	return nil
}

// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/monitorcore/internal/config"
)

type report struct {
	out, errOut io.Writer
	failed      bool
}

func (r *report) fail(msg string) { fmt.Fprintln(r.errOut, "✖", msg); r.failed = true }
func (r *report) warn(msg string) { fmt.Fprintln(r.errOut, "⚠", msg) }
func (r *report) ok(msg string)   { fmt.Fprintln(r.out, "✔", msg) }

func main() {
	r := &report{out: os.Stdout, errOut: os.Stderr}
	check(r, os.Getenv("CONFIG_FILE"), pingDB)
	if r.failed {
		os.Exit(1)
	}
	r.ok("preflight passed")
}

// check inspects the effective configuration. ping is nil-able so tests can
// run without a database.
func check(r *report, file string, ping func(ctx context.Context, dsn string) error) {
	if file != "" {
		if _, err := config.Load(file); err != nil {
			r.fail(err.Error())
			return
		}
		r.ok("CONFIG_FILE=" + file)
	}
	cfg := config.FromEnv()

	if len(cfg.AdminAPIKeys) == 0 {
		r.warn("ADMIN_API_KEYS is empty; with no keys at all the API is open.")
	}
	if len(cfg.PublicAPIKeys) == 0 && len(cfg.AdminAPIKeys) > 0 {
		r.warn("PUBLIC_API_KEYS is empty; reads need an admin key.")
	}
	for _, name := range []string{"ADMIN_API_KEYS", "PUBLIC_API_KEYS"} {
		if strings.Contains(os.Getenv(name), " ") {
			r.warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	r.ok("ADDR=" + cfg.Addr)

	if cfg.AllowInternalTargets {
		r.warn("ALLOW_INTERNAL_TARGETS is on; monitors may reach private and metadata addresses.")
	}
	if cfg.Workers > cfg.RunningCapacity {
		r.warn(fmt.Sprintf("WORKERS=%d exceeds RUNNING_CAPACITY=%d; the gate will reject before workers fill.", cfg.Workers, cfg.RunningCapacity))
	}
	if cfg.QueuedCapacity == 0 {
		r.warn("QUEUED_CAPACITY=0; checks are rejected whenever every worker is busy.")
	}
	r.ok(fmt.Sprintf("capacity running=%d queued=%d workers=%d", cfg.RunningCapacity, cfg.QueuedCapacity, cfg.Workers))

	if cfg.DatabaseURL == "" {
		r.warn("DATABASE_URL empty; API will use the in-memory store and lose monitors on restart.")
	} else if ping != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ping(ctx, cfg.DatabaseURL); err != nil {
			r.fail("database unreachable: " + err.Error())
		} else {
			r.ok("database reachable")
		}
	}

	if len(cfg.AllowedOrigins) == 0 {
		r.warn("ALLOWED_ORIGINS empty; CORS allows every origin.")
	} else {
		r.ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	if cfg.SlackWebhook == "" && cfg.AlertWebhook == "" {
		r.warn("no SLACK_WEBHOOK_URL or ALERT_WEBHOOK_URL; alerts only go to the log.")
	}
}

func pingDB(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())
	return conn.Ping(ctx)
}

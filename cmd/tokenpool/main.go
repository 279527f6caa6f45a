package main

import (
	"github.com/alecthomas/kong"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config          string `help:"YAML config file." type:"path" env:"TOKENPOOL_CONFIG_FILE"`
	EnvFile         string `name:"env-file" help:"Env file loaded before TOKENPOOL_* variables are read. Defaults to ./.env when present." type:"path"`
	LogLevel        string `name:"log-level" help:"Log level (trace, debug, info, warn, error)."`
	MetricsTextfile string `name:"metrics-textfile" help:"Write prometheus metrics to this file when the command finishes." type:"path"`
}

type CLI struct {
	Globals

	Obtain   ObtainCmd   `cmd:"" help:"Obtain tokens for accounts whose primary token is absent or expired."`
	Refresh  RefreshCmd  `cmd:"" help:"Refresh accounts whose companion token expires soon."`
	Assemble AssembleCmd `cmd:"" help:"Aggregate live share tokens into the pool handle."`
	Stats    StatsCmd    `cmd:"" help:"Show how many accounts each operation would select."`
	Import   ImportCmd   `cmd:"" help:"Import registered accounts from an email,password CSV file."`
	Migrate  MigrateCmd  `cmd:"" help:"Apply database migrations."`
	Schedule ScheduleCmd `cmd:"" help:"Run obtain, refresh and assemble on cron schedules until interrupted."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("tokenpool"),
		kong.Description("Credential lifecycle manager for upstream token pools."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

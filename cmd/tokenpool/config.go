package main

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	"github.com/goliatone/go-config/config"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-tokenpool/core"
	"github.com/joho/godotenv"
)

const (
	envPrefix      = "TOKENPOOL_"
	envPathSep     = "__"
	defaultEnvFile = ".env"
)

// loadConfig layers the config file, the environment and flag overrides on
// top of core defaults. Flags win over the environment, which wins over the
// file.
func loadConfig(ctx context.Context, globals *Globals, flags map[string]any) (core.Config, error) {
	file, err := fileLayer(ctx, globals.Config)
	if err != nil {
		return core.Config{}, err
	}
	if err := loadEnvFile(globals.EnvFile); err != nil {
		return core.Config{}, err
	}
	env, err := envLayer(ctx)
	if err != nil {
		return core.Config{}, err
	}

	merged := map[string]any{}
	for key, value := range flags {
		merged[key] = value
	}
	if level := strings.TrimSpace(globals.LogLevel); level != "" {
		setPath(merged, []string{"log", "level"}, level)
	}
	if path := strings.TrimSpace(globals.MetricsTextfile); path != "" {
		setPath(merged, []string{"metrics", "textfile"}, path)
	}

	loader := &core.LayeredConfigLoader{File: file, Env: env, Flags: merged}
	cfg, err := core.NewCfgxConfigProvider(loader).Load(ctx, core.DefaultConfig())
	if err != nil {
		if core.IsConfiguration(err) {
			return core.Config{}, err
		}
		return core.Config{}, core.NewConfigurationError("config: %v", err)
	}
	return cfg, nil
}

// fileLayer reads a yaml, json or toml file picked by extension.
func fileLayer(ctx context.Context, path string) (map[string]any, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return map[string]any{}, nil
	}
	values, err := sourceLayer(ctx, config.FileProvider[*core.Config](path))
	if err != nil {
		return nil, core.NewConfigurationError("config: read %s: %v", path, err)
	}
	return values, nil
}

// envLayer maps TOKENPOOL_* variables onto config keys. A double underscore
// separates sections, so TOKENPOOL_PANDORA__BASE_URL sets pandora.base_url.
func envLayer(ctx context.Context) (map[string]any, error) {
	values, err := sourceLayer(ctx, config.EnvProvider[*core.Config](envPrefix, envPathSep))
	if err != nil {
		return nil, core.NewConfigurationError("config: environment: %v", err)
	}
	return values, nil
}

// sourceLayer loads one provider into its own container and returns the raw
// tree so the layers can be merged by precedence. Decoding into a scratch
// Config surfaces values of the wrong kind early. Validation waits for the
// merged result.
func sourceLayer(ctx context.Context, provider config.ProviderBuilder[*core.Config]) (map[string]any, error) {
	container := config.New(&core.Config{}).
		WithLogger(glog.Nop()).
		WithValidation(false).
		WithSolvers().
		WithProvider(provider)
	if err := container.Load(ctx); err != nil {
		return nil, err
	}
	return container.K.Raw(), nil
}

// loadEnvFile loads an explicit env file, or ./.env when present. Variables
// already set in the process are kept.
func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		if err := godotenv.Load(defaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return core.NewConfigurationError("config: load %s: %v", defaultEnvFile, err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return core.NewConfigurationError("config: load %s: %v", path, err)
	}
	return nil
}

func setPath(values map[string]any, path []string, value any) {
	current := values
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

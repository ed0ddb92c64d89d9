package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/auracoredynamics/aurarouter/internal/config"
	"github.com/auracoredynamics/aurarouter/internal/fabric"
	"github.com/auracoredynamics/aurarouter/internal/health"
	. "github.com/auracoredynamics/aurarouter/internal/logging"
	"github.com/auracoredynamics/aurarouter/internal/paths"
)

// suppressLogs drops the effective level to errors-only and returns a
// closure that restores whatever level was in effect before.
func suppressLogs() func() {
	level := GetLevel()
	SetLevel(LevelError)
	return func() { SetLevel(level) }
}

// version is set by goreleaser via ldflags: -X main.version=...
var version = "dev"

// CLI defines the command-line interface.
type CLI struct {
	Debug  bool   `help:"Enable debug logging" short:"d"`
	Trace  bool   `help:"Enable trace logging" short:"t"`
	Config string `help:"Config file path" short:"c" type:"path"`

	Run     RunCmd     `cmd:"" help:"Run a task through the fabric"`
	Health  HealthCmd  `cmd:"" help:"Probe every registered model and print its status"`
	Asset   AssetCmd   `cmd:"" help:"Manage registered model assets"`
	Cfg     ConfigCmd  `cmd:"config" help:"View the effective configuration"`
	Version VersionCmd `cmd:"" help:"Show version"`
}

// Context carries the global flags into every command's Run.
type Context struct {
	Debug  bool
	Trace  bool
	Config string
}

func (c *Context) openFabric() (*config.Handle, *fabric.Fabric, error) {
	handle, err := config.LoadConfig(c.Config, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	modelsDir, err := paths.DefaultModelsDir()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve models dir: %w", err)
	}
	if err := paths.EnsureDir(modelsDir); err != nil {
		return nil, nil, err
	}

	f, err := fabric.New(handle, modelsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("build fabric: %w", err)
	}
	return handle, f, nil
}

// RunCmd executes a task through the fabric's Classify/Plan/Execute pipeline.
type RunCmd struct {
	Task  string `arg:"" help:"Task description to route"`
	Role  string `help:"Task-executing role" default:"coding"`
	JSON  bool   `help:"Print the full execution DAG as JSON instead of just the output"`
	Quiet bool   `help:"Suppress non-error logging for the duration of this run" short:"q"`
}

func (r *RunCmd) Run(ctx *Context) error {
	_, f, err := ctx.openFabric()
	if err != nil {
		return err
	}

	if r.Quiet {
		restore := suppressLogs()
		defer restore()
	}

	cancelCh := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		SetShuttingDown()
		close(cancelCh)
	}()

	result, err := f.Execute(context.Background(), r.Role, r.Task, "", cancelCh)
	if err != nil && result == nil {
		return err
	}

	if r.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(result); encErr != nil {
			return encErr
		}
	} else {
		fmt.Println(result.FinalOutput)
	}
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

// HealthCmd probes every registered model, or with --cooldowns reports
// cached provider status without a network call.
type HealthCmd struct {
	JSON      bool `help:"Print results as JSON"`
	Cooldowns bool `help:"Report cached cooldown/health status instead of probing"`
}

func (h *HealthCmd) Run(ctx *Context) error {
	_, f, err := ctx.openFabric()
	if err != nil {
		return err
	}

	if h.Cooldowns {
		statuses := f.ProviderStatus()
		if h.JSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(statuses)
		}
		for _, s := range statuses {
			if !s.InCooldown {
				fmt.Printf("%-24s ok\n", s.ModelID)
				continue
			}
			fmt.Printf("%-24s cooldown until %s (%s, %d failures)\n", s.ModelID, s.Until.Format("15:04:05"), s.Reason, s.ErrorCount)
		}
		return nil
	}

	statuses := f.Health(context.Background(), func() health.ServiceState { return health.StateRunning })

	if h.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}

	for id, status := range statuses {
		line := fmt.Sprintf("%-24s %s", id, status.State)
		if status.Reason != "" {
			line += " (" + status.Reason + ")"
		}
		fmt.Println(line)
	}
	return nil
}

// AssetCmd groups model-asset subcommands.
type AssetCmd struct {
	Register AssetRegisterCmd `cmd:"" help:"Register a model file"`
	List     AssetListCmd     `cmd:"" help:"List registered model assets"`
}

// AssetRegisterCmd records a model file in the asset registry and wires it
// into the configuration store as a llamacpp-embedded model entry.
type AssetRegisterCmd struct {
	Path string   `arg:"" help:"Path to the model file"`
	ID   string   `help:"Model id to register under" required:""`
	Repo string   `help:"Origin repository or source label"`
	Tags []string `help:"Tags to attach" sep:","`
}

func (a *AssetRegisterCmd) Run(ctx *Context) error {
	_, f, err := ctx.openFabric()
	if err != nil {
		return err
	}
	entry, err := f.RegisterAsset(a.Path, a.Repo, a.Tags, a.ID)
	if err != nil {
		return err
	}
	fmt.Printf("registered %s (%d bytes)\n", entry.Filename, entry.SizeBytes)
	return nil
}

// AssetListCmd prints the asset registry's entries.
type AssetListCmd struct{}

func (a *AssetListCmd) Run(ctx *Context) error {
	_, f, err := ctx.openFabric()
	if err != nil {
		return err
	}
	for _, entry := range f.ListAssets() {
		fmt.Printf("%-24s %-10d %s\n", entry.Filename, entry.SizeBytes, entry.Repo)
	}
	return nil
}

// ConfigCmd prints the effective, merged configuration as JSON.
type ConfigCmd struct{}

func (c *ConfigCmd) Run(ctx *Context) error {
	handle, err := config.LoadConfig(ctx.Config, nil)
	if err != nil {
		return err
	}
	cfg := handle.Snapshot()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (v *VersionCmd) Run(ctx *Context) error {
	fmt.Println("aurarouter " + version)
	return nil
}

func main() {
	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("aurarouter"),
		kong.Description("AuraRouter compute fabric: routes tasks to pluggable LLM backends"),
		kong.UsageOnError(),
	)

	level := LevelInfo
	if cli.Trace {
		level = LevelTrace
	} else if cli.Debug {
		level = LevelDebug
	}
	Init(&Config{Level: level, ShowCaller: true})

	err := kctx.Run(&Context{Debug: cli.Debug, Trace: cli.Trace, Config: cli.Config})
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "role_missing") || strings.Contains(errMsg, "config_invalid") {
			fmt.Fprintln(os.Stderr, errMsg)
			os.Exit(1)
		}
		L_fatal("command failed", "error", err)
	}
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"go_waifu2x/core"
	"go_waifu2x/logging"
)

// errInterrupted marks a run that stopped because of a shutdown signal.
var errInterrupted = errors.New("interrupted")

// exitError carries an explicit process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return core.ExitCodeName(e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// app is the state shared by every command: flags, the loaded config and
// the logger.
type app struct {
	configPath string
	dev        bool
	verbose    bool
	noColor    bool
	// modelsDirFlag backs --models-dir on the models command
	modelsDirFlag string

	cfg    *core.AppConfig
	logger *logging.Logger
	// stderr receives console logs; tests swap it out
	stderr io.Writer
}

func newApp() *app {
	return &app{logger: logging.NewNop(), stderr: os.Stderr}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "waifu2x",
		Short: "Upscale and denoise images with waifu2x",
		Long: `waifu2x upscales anime-style art and photos with the waifu2x
convolutional networks (cunet, upconv7) on a Vulkan GPU or the CPU.

Settings come from a YAML config file, W2X_* environment variables and
command flags, each overriding the previous one.`,
		Version:           core.GetVersion(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML config file (default $"+core.ConfigFileEnv+")")
	flags.BoolVar(&a.dev, "dev", os.Getenv("DEV_MODE") == "true", "development logging (debug level, console encoder)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	flags.BoolVar(&a.noColor, "no-color", false, "disable coloured output")

	root.AddCommand(
		newUpscaleCommand(a),
		newWatchCommand(a),
		newModelsCommand(a),
		newGPUsCommand(a),
		newJobsCommand(a),
		newServiceCommand(a),
		newVersionCommand(),
	)
	return root
}

// setup loads the configuration and builds the logger before any command
// runs.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if a.noColor {
		color.NoColor = true
	}
	if a.stderr == nil {
		a.stderr = cmd.ErrOrStderr()
	}

	cfg, err := core.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	opts := logging.Options{
		Development: a.dev,
		FilePath:    cfg.LogFile,
		Console:     a.stderr,
	}
	if a.verbose {
		level := zapcore.DebugLevel
		opts.Level = &level
	}
	logger, err := logging.NewLoggerWithOptions(opts)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	a.logger.Debug("configuration loaded",
		zap.String("command", cmd.CommandPath()),
		zap.String("models_dir", cfg.ModelsDir),
		zap.String("model", cfg.Model),
		zap.Int("noise", cfg.Noise),
		zap.Int("scale", cfg.Scale),
		zap.Int("gpu", cfg.GPU),
		zap.Int("workers", cfg.Workers),
		zap.String("database", cfg.DatabasePath))
	return nil
}

// close flushes the logger. Sync errors on a terminal are expected and
// ignored.
func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// pipelineFlags are the upscale settings every processing command accepts.
type pipelineFlags struct {
	modelsDir string
	model     string
	noise     int
	scale     int
	gpu       int
	tileSize  int
	threads   int
	tta       bool
	workers   int
	format    string
	quality   int
}

func addPipelineFlags(fs *pflag.FlagSet, p *pipelineFlags) {
	fs.StringVar(&p.modelsDir, "models-dir", "", "directory holding the models-* folders")
	fs.StringVarP(&p.model, "model", "m", "", "network: cunet, upconv7-anime or upconv7-photo")
	fs.IntVarP(&p.noise, "noise", "n", 0, "denoise level -1..3 (-1 disables)")
	fs.IntVarP(&p.scale, "scale", "s", 0, "upscale ratio: 1, 2, 4, 8, 16 or 32")
	fs.IntVarP(&p.gpu, "gpu", "g", 0, "GPU index, -1 for CPU, -2 to pick automatically")
	fs.IntVarP(&p.tileSize, "tile-size", "t", 0, "tile edge in pixels, 0 picks from the GPU heap budget")
	fs.IntVarP(&p.threads, "threads", "j", 0, "engine threads")
	fs.BoolVarP(&p.tta, "tta", "x", false, "enable test-time augmentation (8x slower)")
	fs.IntVarP(&p.workers, "workers", "w", 0, "images processed at once")
	fs.StringVarP(&p.format, "format", "f", "", "output format: png, jpg, bmp or tif")
	fs.IntVarP(&p.quality, "quality", "q", 0, "JPEG quality 1..100")
}

// apply copies the flags the user set onto cfg and revalidates it.
func (p *pipelineFlags) apply(fs *pflag.FlagSet, cfg *core.AppConfig) error {
	if fs.Changed("models-dir") {
		cfg.ModelsDir = p.modelsDir
	}
	if fs.Changed("model") {
		cfg.Model = p.model
	}
	if fs.Changed("noise") {
		cfg.Noise = p.noise
	}
	if fs.Changed("scale") {
		cfg.Scale = p.scale
	}
	if fs.Changed("gpu") {
		cfg.GPU = p.gpu
	}
	if fs.Changed("tile-size") {
		cfg.TileSize = p.tileSize
	}
	if fs.Changed("threads") {
		cfg.Threads = p.threads
	}
	if fs.Changed("tta") {
		cfg.TTA = p.tta
	}
	if fs.Changed("workers") {
		cfg.Workers = p.workers
	}
	if fs.Changed("format") {
		cfg.OutputFormat = p.format
	}
	if fs.Changed("quality") {
		cfg.JPEGQuality = p.quality
	}
	return cfg.Validate()
}

// printError writes err, tagged with its code for configuration errors.
func printError(w io.Writer, err error) {
	color.New(color.FgRed, color.Bold).Fprint(w, "Error: ")
	fmt.Fprint(w, err)
	if code := core.GetErrorCode(err); code != "" {
		color.New(color.FgHiBlack).Fprintf(w, " [%s]", code)
	}
	fmt.Fprintln(w)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Skip config loading so version works with a broken config.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), core.GetVersionInfo())
		},
	}
}

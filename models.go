package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go_waifu2x/core"
	"go_waifu2x/shutdown"
	"go_waifu2x/upscaler"
)

func newModelsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Download and inspect waifu2x model files",
	}
	cmd.PersistentFlags().StringVar(&a.modelsDirFlag, "models-dir", "", "directory holding the models-* folders")
	cmd.AddCommand(newModelsPullCommand(a), newModelsListCommand(a))
	return cmd
}

func newModelsPullCommand(a *app) *cobra.Command {
	var (
		model string
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download missing model files",
		Example: `  waifu2x models pull
  waifu2x models pull --model upconv7-photo
  waifu2x models pull --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := a.selectModels(cmd, model, all)
			if err != nil {
				return err
			}
			return a.pullModels(cmd.OutOrStdout(), types)
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "model to download (default: the configured model)")
	cmd.Flags().BoolVar(&all, "all", false, "download every model")
	return cmd
}

func newModelsListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show which models are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.applyModelsDir(cmd)
			return listModels(cmd.OutOrStdout(), a.modelManager(upscaler.AllModelTypes()))
		},
	}
}

// applyModelsDir lets --models-dir on the models command override the
// configured directory.
func (a *app) applyModelsDir(cmd *cobra.Command) {
	if f := cmd.Flags().Lookup("models-dir"); f != nil && f.Changed {
		a.cfg.ModelsDir = a.modelsDirFlag
	}
}

func (a *app) selectModels(cmd *cobra.Command, name string, all bool) ([]upscaler.ModelType, error) {
	a.applyModelsDir(cmd)
	if all {
		return upscaler.AllModelTypes(), nil
	}
	if name == "" {
		name = a.cfg.Model
	}
	m, err := upscaler.ParseModelType(name)
	if err != nil {
		return nil, err
	}
	return []upscaler.ModelType{m}, nil
}

// modelManager registers the file sets of types under the configured
// models directory.
func (a *app) modelManager(types []upscaler.ModelType, opts ...core.ModelManagerOption) *core.ModelManager {
	for _, m := range types {
		opts = append(opts, core.WithModelSet(upscaler.ModelSet(m, a.cfg.ModelBaseURL)))
	}
	return core.NewModelManager(a.cfg.ModelsDir, &http.Client{}, opts...)
}

// pullModels downloads the missing files of each model. Ctrl-C stops
// the transfer; partial files are kept and resumed next time.
func (a *app) pullModels(w io.Writer, types []upscaler.ModelType) error {
	mgr := shutdown.NewManager(a.logger, shutdown.WithTimeout(a.cfg.ShutdownTimeout))
	mgr.Start()
	defer mgr.Shutdown()

	progress := func(file string, info core.ProgressInfo) {
		a.logger.Debug("download progress",
			zap.String("file", file),
			zap.Int64("done", info.Done),
			zap.Int64("total", info.Total),
			zap.Float64("percent", info.Percent))
	}
	mm := a.modelManager(types, core.WithProgress(progress))

	ok := color.New(color.FgGreen)
	dim := color.New(color.FgHiBlack)
	for _, name := range mm.ModelSetNames() {
		fmt.Fprintf(w, "  ◌ %s...", name)
		fetched, err := mm.EnsureModelSet(mgr.Context(), name)
		fmt.Fprint(w, "\r")
		if err != nil {
			color.New(color.FgRed).Fprintf(w, "  ✗ %s\n", name)
			if mgr.IsShuttingDown() {
				return &exitError{code: mgr.ExitCode(), err: errInterrupted}
			}
			return err
		}
		ok.Fprintf(w, "  ✓ %s", name)
		if fetched == 0 {
			dim.Fprintln(w, " - already installed")
		} else {
			dim.Fprintf(w, " - %d files downloaded\n", fetched)
		}
		a.logger.Info("model set ready", zap.String("model", name), zap.Int("downloaded", fetched))
	}
	return nil
}

func listModels(w io.Writer, mm *core.ModelManager) error {
	fmt.Fprintf(w, "Models in %s\n", mm.ModelDir())
	for _, name := range mm.ModelSetNames() {
		missing, err := mm.MissingFiles(name)
		if err != nil {
			return err
		}
		switch {
		case len(missing) == 0:
			color.New(color.FgGreen).Fprintf(w, "  ✓ %s\n", name)
		default:
			color.New(color.FgYellow).Fprintf(w, "  ⚠ %s", name)
			color.New(color.FgHiBlack).Fprintf(w, " - %d files missing\n", len(missing))
		}
	}
	return nil
}

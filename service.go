package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "waifu2x-watch"

// program runs watch mode under the OS service manager.
type program struct {
	app     *app
	session *watchSession
	exit    chan struct{}
}

// Start opens the watch pipeline and polls in the background. The
// service manager delivers stop requests, so signals are not captured.
func (p *program) Start(s service.Service) error {
	session, err := p.app.openWatch(false)
	if err != nil {
		return err
	}
	p.session = session
	p.exit = make(chan struct{})

	go func() {
		defer close(p.exit)
		if err := session.run(); err != nil {
			p.app.logger.Error("watch service stopped with errors", zap.Error(err))
		}
	}()
	return nil
}

// Stop asks the watcher to finish and waits for teardown.
func (p *program) Stop(s service.Service) error {
	if p.session == nil {
		return nil
	}
	p.session.stop()

	wait := p.app.cfg.ShutdownTimeout + 5*time.Second
	select {
	case <-p.exit:
		return nil
	case <-time.After(wait):
		return fmt.Errorf("timeout waiting for service to stop")
	}
}

// serviceConfig describes the watch service. The installed command line
// re-enters through "service run" with the same config file.
func (a *app) serviceConfig() (*service.Config, error) {
	args := []string{"service", "run"}
	if a.configPath != "" {
		abs, err := filepath.Abs(a.configPath)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	return &service.Config{
		Name:        serviceName,
		DisplayName: "waifu2x Watch Folder",
		Description: "Upscales images dropped into a watched directory with waifu2x",
		Arguments:   args,
		Option: service.KeyValue{
			"StartType": "automatic",
			"Restart":   "on-failure",
		},
	}, nil
}

func (a *app) newService() (service.Service, *program, error) {
	cfg, err := a.serviceConfig()
	if err != nil {
		return nil, nil, err
	}
	prg := &program{app: a}
	s, err := service.New(prg, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, prg, nil
}

func newServiceCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install and control watch mode as an OS service",
	}

	for _, action := range []string{"install", "uninstall", "start", "stop", "restart"} {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the %s service", action, serviceName),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, _, err := a.newService()
				if err != nil {
					return err
				}
				if err := service.Control(s, action); err != nil {
					return fmt.Errorf("failed to %s service: %w", action, err)
				}
				color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "  ✓ service %s: %s\n", serviceName, action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether the service is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := a.newService()
			if err != nil {
				return err
			}
			status, err := s.Status()
			if err != nil {
				if err == service.ErrNotInstalled {
					color.New(color.FgHiBlack).Fprintf(cmd.OutOrStdout(), "  ○ %s is not installed\n", serviceName)
					return nil
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", serviceName, statusName(status))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run the service in the foreground (used by the service manager)",
		Args:   cobra.NoArgs,
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := a.newService()
			if err != nil {
				return err
			}
			a.logger.Info("starting watch service", zap.Bool("interactive", service.Interactive()))
			return s.Run()
		},
	})
	return cmd
}

func statusName(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return color.GreenString("running")
	case service.StatusStopped:
		return color.YellowString("stopped")
	default:
		return "unknown"
	}
}

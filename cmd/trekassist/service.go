package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/trekassist/pkg/app"
)

const serviceName = "trekassist"

// program adapts the runtime to the service manager's Start/Stop calls.
type program struct {
	flags *globalFlags
	rt    *app.Runtime
	stop  context.CancelFunc
}

func (p *program) Start(service.Service) error {
	cfg, path, err := app.LoadConfig(p.flags.config)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	rt, err := app.Build(ctx, cfg, p.flags.params())
	if err != nil {
		cancel()
		return err
	}
	if err := rt.Start(); err != nil {
		cancel()
		_ = rt.Close(context.Background())
		return err
	}
	rt.WatchConfig(ctx, path, 0)
	p.rt, p.stop = rt, cancel
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.rt == nil {
		return nil
	}
	p.stop()
	err := p.rt.Close(context.Background())
	p.rt = nil
	return err
}

// serviceConfig describes the installed unit. The config path is made
// absolute because the service manager runs from another directory.
func serviceConfig(flags *globalFlags) (*service.Config, error) {
	args := []string{"service", "run"}
	if flags.config != "" {
		abs, err := filepath.Abs(flags.config)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	if flags.dataDir != "" {
		abs, err := filepath.Abs(flags.dataDir)
		if err != nil {
			return nil, err
		}
		args = append(args, "--data-dir", abs)
	}
	return &service.Config{
		Name:        serviceName,
		DisplayName: "Trek marketplace assistant",
		Description: "Context and retrieval layer of the trek marketplace assistant.",
		Arguments:   args,
	}, nil
}

func serviceCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install and control trekassist as a system service",
	}

	newService := func() (service.Service, error) {
		cfg, err := serviceConfig(flags)
		if err != nil {
			return nil, err
		}
		return service.New(&program{flags: flags}, cfg)
	}

	for _, action := range service.ControlAction {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := newService()
				if err != nil {
					return err
				}
				if err := service.Control(svc, action); err != nil {
					return fmt.Errorf("service %s: %w", action, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether the service is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			st, err := svc.Status()
			if err != nil && !errors.Is(err, service.ErrNotInstalled) {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusText(st, err))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			return svc.Run()
		},
	})
	return cmd
}

func statusText(st service.Status, err error) string {
	if errors.Is(err, service.ErrNotInstalled) {
		return "not installed"
	}
	switch st {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

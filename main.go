package main

import (
	"context"
	"ec2switch/app"
	"ec2switch/config"
	"ec2switch/fleet"
	"ec2switch/log"
	"ec2switch/provider"
	"ec2switch/session"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	version    = "0.3.1"
	configFlag string

	rootCmd = &cobra.Command{
		Use:   "ec2switch",
		Short: "ec2switch - Start, stop and connect to your EC2 dev instances.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			log.Initialize(false)
			defer log.Close()

			cfg, registry, err := loadEnvironment()
			if err != nil {
				return err
			}

			gateway := provider.NewAWSCLIGateway(cfg.AWSBin)
			controller := fleet.NewController(registry, gateway, fleet.Options{
				GracePeriod: cfg.ActionGracePeriod(),
			})
			poller := fleet.NewPoller(controller, gateway, registry.IDs(), fleet.PollerOptions{
				Interval:        cfg.PollInterval(),
				BurstInterval:   cfg.BurstInterval(),
				BurstPolls:      cfg.BurstPolls,
				DescribeTimeout: cfg.DescribeTimeout(),
			})

			return app.Run(ctx, app.Deps{
				Config:     cfg,
				Registry:   registry,
				Controller: controller,
				Poller:     poller,
				Launcher:   session.NewLauncher(cfg.EditorBin),
			})
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print the current state of every registered instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Initialize(true)
			defer log.Close()

			cfg, registry, err := loadEnvironment()
			if err != nil {
				return err
			}

			gateway := provider.NewAWSCLIGateway(cfg.AWSBin)
			ctx, cancel := context.WithTimeout(context.Background(), cfg.DescribeTimeout())
			defer cancel()

			observations, err := gateway.Describe(ctx, registry.IDs())
			if err != nil {
				return fmt.Errorf("describe failed: %w", err)
			}

			now := time.Now()
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATE\tADDRESS\tUPTIME")
			for _, ic := range registry.All() {
				obs, ok := observations[ic.ID]
				if !ok {
					fmt.Fprintf(w, "%s\t%s\t%s\t\t\n", ic.ID, ic.DisplayName, "unknown")
					continue
				}
				name := ic.DisplayName
				if obs.Name != "" {
					name = obs.Name
				}
				uptime := ""
				if obs.State == "running" && !obs.LaunchedAt.IsZero() {
					d := now.Sub(obs.LaunchedAt)
					uptime = fmt.Sprintf("%d:%02d", int(d.Hours()), int(d.Minutes())%60)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", ic.ID, name, obs.State, obs.PublicAddress, uptime)
			}
			return w.Flush()
		},
	}

	startCmd = &cobra.Command{
		Use:   "start <instance-id>",
		Short: "Start a registered instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShotCommand(args[0], "start")
		},
	}

	stopCmd = &cobra.Command{
		Use:   "stop <instance-id>",
		Short: "Stop a registered instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShotCommand(args[0], "stop")
		},
	}

	connectCmd = &cobra.Command{
		Use:   "connect <instance-id>",
		Short: "Open the editor on a running instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Initialize(true)
			defer log.Close()

			cfg, registry, err := loadEnvironment()
			if err != nil {
				return err
			}
			id := args[0]
			ic, ok := registry.Get(id)
			if !ok {
				return fmt.Errorf("instance %s is not in the registry", id)
			}

			gateway := provider.NewAWSCLIGateway(cfg.AWSBin)
			ctx, cancel := context.WithTimeout(context.Background(), cfg.DescribeTimeout())
			defer cancel()

			observations, err := gateway.Describe(ctx, []string{id})
			if err != nil {
				return fmt.Errorf("describe failed: %w", err)
			}
			obs, ok := observations[id]
			if !ok {
				return fmt.Errorf("instance %s missing from describe result", id)
			}
			if obs.State != "running" || obs.PublicAddress == "" {
				return fmt.Errorf("instance %s is %s, not reachable", id, obs.State)
			}

			launcher := session.NewLauncher(cfg.EditorBin)
			state := fleet.InstanceState{
				ID:            id,
				Name:          ic.DisplayName,
				Status:        fleet.StatusRunning,
				PublicAddress: obs.PublicAddress,
			}
			if err := launcher.Connect(state, ic); err != nil {
				return err
			}
			fmt.Printf("Opening %s on %s@%s\n", cfg.EditorBin, ic.SSHUser, obs.PublicAddress)
			return nil
		},
	}

	debugCmd = &cobra.Command{
		Use:   "debug",
		Short: "Print debug information like config paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Initialize(true)
			defer log.Close()

			cfg := config.LoadConfig()

			configDir, err := config.GetConfigDir()
			if err != nil {
				return fmt.Errorf("failed to get config directory: %w", err)
			}
			configJson, _ := json.MarshalIndent(cfg, "", "  ")

			fmt.Printf("Config: %s\n%s\n", filepath.Join(configDir, config.ConfigFileName), configJson)
			fmt.Printf("Registry: %s\n", registryPath())
			fmt.Printf("Log: %s\n", log.FileName())

			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of ec2switch",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ec2switch version %s\n", version)
		},
	}
)

func registryPath() string {
	if configFlag != "" {
		return configFlag
	}
	return config.RegistryFileName
}

func loadEnvironment() (*config.Config, *config.Registry, error) {
	cfg := config.LoadConfig()
	registry, err := config.LoadRegistry(registryPath(), cfg.DefaultSSHUser)
	if err != nil {
		return nil, nil, err
	}
	return cfg, registry, nil
}

// oneShotCommand issues a start or stop straight at the provider. The TUI's
// optimistic state machinery is pointless for a single command; the registry
// check still keeps typos off the AWS API.
func oneShotCommand(id, op string) error {
	log.Initialize(true)
	defer log.Close()

	cfg, registry, err := loadEnvironment()
	if err != nil {
		return err
	}
	if _, ok := registry.Get(id); !ok {
		return fmt.Errorf("instance %s is not in the registry", id)
	}

	gateway := provider.NewAWSCLIGateway(cfg.AWSBin)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DescribeTimeout())
	defer cancel()

	if op == "start" {
		err = gateway.Start(ctx, id)
	} else {
		err = gateway.Stop(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	fmt.Printf("%s of %s requested\n", op, id)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "",
		"Path to the instance registry file (defaults to ./"+config.RegistryFileName+")")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

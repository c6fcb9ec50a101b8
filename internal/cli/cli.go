// Package cli implements the irrigctl command line interface: start
// the controller core, enqueue a manual task, print system status,
// and drive the factory-wipe flow from a terminal for bench testing
// without the real wireless stack.
//
// Command structure:
//
//	irrigctl
//	├── run                 # start the controller core
//	│   └── --config, -c    # config file path
//	├── task create         # enqueue a manual task
//	│   ├── --channel
//	│   ├── --mode          # duration|volume
//	│   ├── --duration-s
//	│   └── --volume-ml
//	├── status              # print aggregated system status
//	└── wipe                # request/confirm a factory wipe
//	    ├── request
//	    └── confirm --code
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/greenfield-labs/irrigctl/internal/config"
	"github.com/greenfield-labs/irrigctl/internal/core"
	"github.com/greenfield-labs/irrigctl/internal/events"
	"github.com/greenfield-labs/irrigctl/internal/hal"
	"github.com/greenfield-labs/irrigctl/internal/logging"
	"github.com/greenfield-labs/irrigctl/internal/metrics"
	"github.com/greenfield-labs/irrigctl/internal/store"
	"github.com/greenfield-labs/irrigctl/internal/valve"
	"github.com/greenfield-labs/irrigctl/internal/wireless"
	"github.com/greenfield-labs/irrigctl/pkg/types"
)

var configPath string

// BuildCLI constructs the irrigctl root command.
func BuildCLI() *cobra.Command {
	root := &cobra.Command{
		Use:   "irrigctl",
		Short: "Irrigation controller firmware core",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(buildRunCommand())
	root.AddCommand(buildTaskCommand())
	root.AddCommand(buildStatusCommand())
	root.AddCommand(buildWipeCommand())
	return root
}

func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// demoSystem wires a Core against simulated hardware, sufficient for
// running `irrigctl run` and `status`/`task`/`wipe` against it on a
// development machine without real drivers attached.
func demoSystem(cfg config.Config) (*core.Core, *wireless.Adapter, error) {
	s, err := store.Open(cfg.StoreDir)
	if err != nil {
		return nil, nil, err
	}

	bus := events.New()
	collector := metrics.NewCollector()
	rtc := hal.NewSimulatedRTC()
	clock := hal.WallClock{}
	masterGPIO := hal.NewSimulatedGPIO()

	c, err := core.New(core.Deps{
		Store:     s,
		Bus:       bus,
		Metrics:   collector,
		Clock:     clock,
		RTC:       rtc,
		TempSensor: hal.NewSimulatedTempSensor(18.0),
		RainSensor: hal.NewSimulatedRainSensor(0),
		Master:    masterGPIO,
		MasterCfg: valve.DefaultMasterValveConfig(),
		Periods:   config.Periods(cfg.PowerMode),
	})
	if err != nil {
		return nil, nil, err
	}

	for id := types.ChannelID(0); id < types.NumChannels; id++ {
		c.ConfigureChannel(id, hal.NewSimulatedGPIO(), hal.NewSimulatedPulseCounter())
	}

	return c, wireless.New(c, cfg.WirelessEnabled), nil
}

func buildRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the controller core and block until shutdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := logging.Init(cfg.Log); err != nil {
				return fmt.Errorf("init logging: %w", err)
			}

			c, _, err := demoSystem(cfg)
			if err != nil {
				return fmt.Errorf("build system: %w", err)
			}
			if err := c.Start(); err != nil {
				return fmt.Errorf("start core: %w", err)
			}

			if cfg.MetricsPort > 0 {
				go func() {
					_ = metrics.StartServer(cfg.MetricsPort)
				}()
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			fmt.Println("shutting down...")
			c.Stop()
			return nil
		},
	}
}

func buildTaskCommand() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage the task queue"}

	var channel uint8
	var mode string
	var durationS uint32
	var volumeML uint32

	create := &cobra.Command{
		Use:   "create",
		Short: "Enqueue a manual task",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, adapter, err := demoSystem(cfg)
			if err != nil {
				return err
			}
			_ = c

			taskMode := types.TaskModeDuration
			if mode == "volume" {
				taskMode = types.TaskModeVolume
			}
			return adapter.WriteTaskCreate(wireless.TaskCreateRecord{
				ChannelID: types.ChannelID(channel),
				Mode:      taskMode,
				DurationS: durationS,
				VolumeML:  volumeML,
			})
		},
	}
	create.Flags().Uint8Var(&channel, "channel", 0, "channel id (0-7)")
	create.Flags().StringVar(&mode, "mode", "duration", "duration|volume")
	create.Flags().Uint32Var(&durationS, "duration-s", 300, "run duration in seconds (duration mode)")
	create.Flags().Uint32Var(&volumeML, "volume-ml", 0, "target volume in millilitres (volume mode)")

	task.AddCommand(create)
	return task
}

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the aggregated system status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, _, err := demoSystem(cfg)
			if err != nil {
				return err
			}

			status := c.Status()
			fmt.Printf("queue depth:      %d\n", status.QueueDepth)
			fmt.Printf("flags:            %032b\n", status.Flags)
			fmt.Printf("rtc healthy:      %v\n", status.RtcHealthy)
			fmt.Printf("wipe in progress: %v\n", status.WipeInProgress)
			if status.ActiveChannelSet {
				fmt.Printf("active channel:   %d\n", status.ActiveChannel)
			} else {
				fmt.Println("active channel:   none")
			}
			return nil
		},
	}
}

func buildWipeCommand() *cobra.Command {
	wipeCmd := &cobra.Command{Use: "wipe", Short: "Drive the factory-wipe state machine"}

	request := &cobra.Command{
		Use:   "request",
		Short: "Request a factory wipe and print the confirmation code",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, _, err := demoSystem(cfg)
			if err != nil {
				return err
			}
			code, err := c.WipeMachine().Request()
			if err != nil {
				return err
			}
			fmt.Printf("confirmation code: %08X (valid for %s)\n", code, 300*time.Second)
			return nil
		},
	}

	var code uint32
	confirm := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm a pending factory wipe",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, _, err := demoSystem(cfg)
			if err != nil {
				return err
			}
			return c.WipeMachine().Confirm(code)
		},
	}
	confirm.Flags().Uint32Var(&code, "code", 0, "confirmation code from `wipe request`")

	wipeCmd.AddCommand(request, confirm)
	return wipeCmd
}

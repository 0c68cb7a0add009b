// Package main is a small command line tool for exercising an Initio from a shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	goutils "go.viam.com/utils"

	"github.com/pirocon/initio/components/board"
	"github.com/pirocon/initio/components/gpio/fake"
	"github.com/pirocon/initio/components/servo/servoblaster"
	"github.com/pirocon/initio/config"
	"github.com/pirocon/initio/logging"
	"github.com/pirocon/initio/rexec"
	"github.com/pirocon/initio/robot"
)

const (
	flagConfig   = "config"
	flagDebug    = "debug"
	flagFake     = "fake"
	flagCount    = "count"
	flagInterval = "interval"
	flagSpeed    = "speed"
	flagDuration = "duration"
	flagMotion   = "motion"
	flagChannel  = "channel"
	flagDegrees  = "degrees"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "initio",
		Usage:   "drive and probe an Initio robot",
		Version: fmt.Sprintf("%.1f", robot.Version),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  flagFake,
				Usage: "use an in-memory GPIO port and do not start the servo daemon",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "board",
				Usage:  "identify the attached board and print its pins",
				Action: boardAction,
			},
			{
				Name:  "range",
				Usage: "take ultrasonic distance readings",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: flagCount, Value: 1, Usage: "number of readings"},
					&cli.DurationFlag{Name: flagInterval, Value: 100 * time.Millisecond, Usage: "delay between readings"},
				},
				Action: withRobot(rangeAction),
			},
			{
				Name:  "drive",
				Usage: "drive for a while, then stop",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagMotion, Value: "forward", Usage: "one of forward, reverse, left, right"},
					&cli.IntFlag{Name: flagSpeed, Value: 50, Usage: "speed in [0, 100]"},
					&cli.DurationFlag{Name: flagDuration, Value: time.Second, Usage: "how long to drive"},
				},
				Action: withRobot(driveAction),
			},
			{
				Name:  "servo",
				Usage: "move a servo",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: flagChannel, Value: int(servoblaster.Pan), Usage: "servo channel, 0 for pan and 1 for tilt"},
					&cli.IntFlag{Name: flagDegrees, Required: true, Usage: "position in [-90, 90]"},
				},
				Action: withRobot(servoAction),
			},
			{
				Name:   "sensors",
				Usage:  "print one reading of every digital sensor",
				Action: withRobot(sensorsAction),
			},
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String(flagConfig); path != "" {
		return config.Read(path)
	}
	return config.Default(), nil
}

func newLogger(c *cli.Context, cfg *config.Config) (logging.Logger, error) {
	level, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if c.Bool(flagDebug) {
		level = zapcore.DebugLevel
	}
	if cfg.LogFile != "" {
		return logging.NewFileLogger("initio", cfg.LogFile, level), nil
	}
	return logging.NewLoggerAt("initio", level), nil
}

// newRobot builds the robot described by the command line. The returned cleanup func
// removes anything --fake created.
func newRobot(c *cli.Context) (*robot.Robot, logging.Logger, func(), error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(c, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	logging.ReplaceGlobal(logger)

	if !c.Bool(flagFake) {
		return robot.New(cfg, logger), logger, func() {}, nil
	}
	device, err := os.CreateTemp("", "servoblaster")
	if err != nil {
		return nil, nil, nil, err
	}
	cfg.ServoDevicePath = device.Name()
	cleanup := func() {
		goutils.UncheckedError(multierr.Combine(device.Close(), os.Remove(device.Name())))
	}
	r := robot.New(cfg, logger,
		robot.WithPort(fake.NewPort()),
		robot.WithLauncher(rexec.NewDryRunLauncher(logger.Sublogger("process"))),
	)
	return r, logger, cleanup, nil
}

// withRobot runs action between Init and Cleanup.
func withRobot(action func(c *cli.Context, r *robot.Robot) error) cli.ActionFunc {
	return func(c *cli.Context) (err error) {
		r, logger, cleanup, err := newRobot(c)
		if err != nil {
			return err
		}
		defer cleanup()
		defer func() {
			//nolint:errcheck
			logger.Sync()
		}()

		ctx := c.Context
		if ctx == nil {
			ctx = context.Background()
		}
		defer func() {
			err = multierr.Combine(err, r.Cleanup(ctx))
		}()
		if err := r.Init(ctx); err != nil {
			return err
		}
		return action(c, r)
	}
}

func boardAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(c, cfg)
	if err != nil {
		return err
	}
	profile := board.NewResolver(cfg.DescriptorPath, logger.Sublogger("board")).Identify()
	fmt.Fprintf(c.App.Writer, "board: %s\n", profile)

	pins, err := profile.Pins()
	if err != nil {
		return err
	}
	if pins, err = pins.WithOverrides(cfg.PinOverrides); err != nil {
		return err
	}
	raw, err := json.Marshal(pins)
	if err != nil {
		return err
	}
	var byRole map[string]int
	if err := json.Unmarshal(raw, &byRole); err != nil {
		return err
	}
	roles := make([]string, 0, len(byRole))
	for role := range byRole {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	tw := newTable(c, "role", "pin")
	for _, role := range roles {
		tw.AppendRow(table.Row{role, byRole[role]})
	}
	tw.Render()
	return nil
}

func newTable(c *cli.Context, header ...interface{}) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(c.App.Writer)
	tw.AppendHeader(table.Row(header))
	return tw
}

func rangeAction(c *cli.Context, r *robot.Robot) error {
	for i := 0; i < c.Int(flagCount); i++ {
		if i > 0 && !goutils.SelectContextOrWait(c.Context, c.Duration(flagInterval)) {
			return c.Context.Err()
		}
		m, err := r.Measure(c.Context)
		if err != nil {
			return err
		}
		if !m.Valid {
			fmt.Fprintln(c.App.Writer, "distance: no object")
			continue
		}
		fmt.Fprintf(c.App.Writer, "distance: %d cm\n", m.DistanceCm)
	}
	return nil
}

func driveAction(c *cli.Context, r *robot.Robot) error {
	speed := c.Int(flagSpeed)
	if speed < 0 || speed > 100 {
		return errors.Errorf("speed must be in [0, 100], got %d", speed)
	}
	var err error
	switch motion := c.String(flagMotion); motion {
	case "forward":
		err = r.DriveForward(c.Context, speed)
	case "reverse":
		err = r.DriveReverse(c.Context, speed)
	case "left":
		err = r.SpinLeft(c.Context, speed)
	case "right":
		err = r.SpinRight(c.Context, speed)
	default:
		return errors.Errorf("unknown motion %q", motion)
	}
	if err != nil {
		return err
	}
	goutils.SelectContextOrWait(c.Context, c.Duration(flagDuration))
	return r.Stop(c.Context)
}

func servoAction(c *cli.Context, r *robot.Robot) error {
	degrees := c.Int(flagDegrees)
	if degrees < -90 || degrees > 90 {
		return errors.Errorf("degrees must be in [-90, 90], got %d", degrees)
	}
	channel := servoblaster.Channel(c.Int(flagChannel))
	if err := r.SetServo(c.Context, channel, degrees); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "servo %d: %d degrees\n", int(channel), degrees)
	return nil
}

func sensorsAction(c *cli.Context, r *robot.Robot) error {
	readings, err := r.SensorReadings(c.Context)
	if err != nil {
		return err
	}
	tw := newTable(c, "sensor", "value")
	for _, name := range []string{"ir_left", "ir_right", "line_left", "line_right", "wheel_left", "wheel_right"} {
		tw.AppendRow(table.Row{name, readings[name]})
	}
	tw.Render()
	return nil
}

// Package main simulates the timer framework on clock-backed fake
// peripherals: a repeating heartbeat timer and a blinking digital output
// multiplexed over two fake physical timers.
package main

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/utils"

	"go.viam.com/mcu/gpio"
	"go.viam.com/mcu/logging"
	"go.viam.com/mcu/mcu"
	"go.viam.com/mcu/peripherals"
	"go.viam.com/mcu/timer/fake"
)

var logger = logging.NewDebugLogger("timersim")

const tickHz = 1_000_000

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	DurationSecs int `flag:"duration-secs,default=5,usage=how long to run the simulation"`
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	wallClock := clock.New()
	physTimers := []*fake.Timer{
		fake.NewClockTimer(tickHz, wallClock),
		fake.NewClockTimer(tickHz, wallClock),
	}
	registry := peripherals.NewRegistry(physTimers[0], physTimers[1])
	controller := mcu.NewController(registry, logger)
	defer utils.UncheckedErrorFunc(controller.Close)

	heartbeat, err := controller.TimerDriver()
	if err != nil {
		return err
	}
	var beats int
	if err := heartbeat.InterruptAfterNTimes(500_000, 0, true, func() {
		beats++
		logger.Infow("heartbeat", "beats", beats)
	}); err != nil {
		return err
	}
	if err := heartbeat.Enable(); err != nil {
		return err
	}

	blinkTimer, err := controller.TimerDriver()
	if err != nil {
		return err
	}
	led := &logPin{logger: logger}
	out, err := gpio.NewDigitalOut(blinkTimer, led, controller.Notification().Notifier(), logger)
	if err != nil {
		return err
	}
	controller.RegisterInterruptDriver(out)
	if err := out.Blink(4, 250_000); err != nil {
		return err
	}

	// The fake peripherals need polling to notice due alarms.
	workers := utils.NewBackgroundStoppableWorkers(func(ctx context.Context) {
		for {
			if !utils.SelectContextOrWait(ctx, 10*time.Millisecond) {
				return
			}
			for _, pt := range physTimers {
				pt.Tick()
			}
		}
	})
	defer workers.Stop()

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(argsParsed.DurationSecs)*time.Second)
	defer cancel()
	return controller.Run(runCtx)
}

// logPin is a digital output pin that just logs its level.
type logPin struct {
	logger logging.Logger
	high   bool
}

func (p *logPin) Set(high bool) error {
	p.high = high
	p.logger.Infow("led", "high", high)
	return nil
}

func (p *logPin) Get() (bool, error) {
	return p.high, nil
}

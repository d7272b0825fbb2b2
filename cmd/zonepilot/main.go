package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zonepilot/zonepilot/canvas"
	"github.com/zonepilot/zonepilot/capture"
	"github.com/zonepilot/zonepilot/core"
	"github.com/zonepilot/zonepilot/director"
	"github.com/zonepilot/zonepilot/execution"
	"github.com/zonepilot/zonepilot/motion"
	"github.com/zonepilot/zonepilot/perception"
	"github.com/zonepilot/zonepilot/planning"
	"github.com/zonepilot/zonepilot/platform"
	"github.com/zonepilot/zonepilot/registry"
	"github.com/zonepilot/zonepilot/telemetry"
	"github.com/zonepilot/zonepilot/tracking"
)

func main() {
	settings, err := core.NewSettings()
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}

	provider, err := telemetry.NewProviderFromEnv()
	if err != nil {
		log.Fatalf("start telemetry: %v", err)
	}
	defer provider.Shutdown(context.Background())

	logger := core.NewProductionLogger("zonepilot")

	adapter := loadAdapter(settings, logger)

	zones := registry.New(logger.WithComponent("registry"))
	captureLoop := capture.New(adapter, settings, logger.WithComponent("capture"))

	classifier := perception.New(settings)
	region := perception.NewRegionAnalyzer(settings)
	vision := perception.NewVisionAnalyzer("", "", settings, logger.WithComponent("vision"))
	mapper := canvas.New(classifier, region, vision, zones, logger.WithComponent("canvas"))

	motionPlanner := motion.New(settings)
	tracker := tracking.New(zones, settings.HoverThresholdMs, logger.WithComponent("tracking"))
	actionExec := execution.NewActionExecutor(adapter, zones, logger.WithComponent("execution"))
	brush := execution.NewBrushController(zones, motionPlanner, tracker, adapter, actionExec, logger.WithComponent("execution"))
	stepExec := execution.NewStepExecutor(adapter, brush, logger.WithComponent("execution"))

	taskPlanner := planning.NewHTTPPlanner("", "", settings, logger.WithComponent("planning"))

	d := director.New(settings, zones, mapper, captureLoop, stepExec, taskPlanner, platformName(), logger.WithComponent("director"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	captureLoop.Start(ctx)
	go mapper.RunIdleTicker(ctx, 5*time.Second, time.Duration(settings.ZoneExpirySeconds)*time.Second)

	if err := d.Startup(ctx); err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer d.Shutdown()

	task := taskFromArgs()
	if task == "" {
		log.Println("no task given; idling until interrupted")
		<-ctx.Done()
		return
	}

	result := d.RunTask(ctx, task)
	if !result.Success {
		log.Fatalf("task failed after %d steps (%d plans, %d api calls): %s [%s]",
			result.CompletedSteps, result.PlansUsed, result.APICallsUsed, result.FinalError, result.FinalErrorKind)
	}
	log.Printf("task completed: %d steps, %d plans, %d api calls", result.CompletedSteps, result.PlansUsed, result.APICallsUsed)
}

func taskFromArgs() string {
	if len(os.Args) < 2 {
		return ""
	}
	return os.Args[1]
}

func platformName() string {
	if n := os.Getenv("ZONEPILOT_PLATFORM_NAME"); n != "" {
		return n
	}
	return "desktop"
}

// loadAdapter selects the platform binding. zonepilot's core never names a
// concrete Adapter; only the capability-set contract and the in-memory
// Recording fake used by tests ship in this module. A deployment wires its
// own per-OS implementation here.
func loadAdapter(settings *core.Settings, logger core.Logger) platform.Adapter {
	w, h := 1920, 1080
	logger.Warn("no platform adapter wired, running against an in-memory recording", map[string]interface{}{
		"screen_width": w, "screen_height": h,
	})
	return platform.NewRecording(w, h)
}

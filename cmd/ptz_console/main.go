package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	ptz "github.com/kevmo314/go-ptz"
	"github.com/kevmo314/go-ptz/internal/config"
	"github.com/kevmo314/go-ptz/pkg/simcam"
	"github.com/kevmo314/go-ptz/pkg/usbbus"
)

const commandQueueSize = 16

type ConsoleOptions struct {
	ConfigFile string
	Vendor     string
	Product    string
	Simulate   bool
}

func main() {
	if err := NewConsoleCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewConsoleCommand() *cobra.Command {
	opts := &ConsoleOptions{}

	cmd := &cobra.Command{
		Use:          "ptz_console",
		Short:        "Drive a PTZ camera from the keyboard",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.ConfigFile, "config", "", "Config file")
	flags.StringVar(&opts.Vendor, "vendor", "0", "Vendor ID, 0x-prefixed hex or decimal; 0 matches any")
	flags.StringVar(&opts.Product, "product", "0", "Product ID, 0x-prefixed hex or decimal; 0 matches any")
	flags.BoolVar(&opts.Simulate, "simulate", false, "Drive a simulated camera")
	return cmd
}

func runConsole(ctx context.Context, opts *ConsoleOptions) error {
	cfg, err := config.Load(config.New(opts.ConfigFile))
	if err != nil {
		return err
	}
	vendor, err := strconv.ParseUint(opts.Vendor, 0, 16)
	if err != nil {
		return fmt.Errorf("invalid --vendor: %w", err)
	}
	product, err := strconv.ParseUint(opts.Product, 0, 16)
	if err != nil {
		return fmt.Errorf("invalid --product: %w", err)
	}

	app := tview.NewApplication()

	logText := tview.NewTextView()
	logText.SetMaxLines(10).SetBorder(true).SetTitle("Log")
	logText.SetChangedFunc(func() { app.Draw() })

	logger := logrus.New()
	logger.SetOutput(logText)
	logger.SetLevel(cfg.LogLevel)
	log := logrus.NewEntry(logger)

	var bus ptz.Bus
	if opts.Simulate {
		bus = simcam.NewBus(simcam.NewPTZCamera())
	} else {
		bus = usbbus.New(cfg.SysfsRoot, cfg.DevRoot, log)
	}
	ctrl := ptz.New(bus, ptz.WithConfig(cfg.Engine), ptz.WithLogger(log))
	defer ctrl.Close()

	s, err := ctrl.Open(uint16(vendor), uint16(product))
	if err != nil {
		return err
	}
	caps, err := s.Capabilities(ctx)
	if err != nil {
		return err
	}

	c := &console{
		ctx:    ctx,
		app:    app,
		s:      s,
		caps:   caps,
		log:    log,
		status: tview.NewTextView(),
		queue:  newCommandQueue(commandQueueSize),
	}
	c.status.SetBorder(true).SetTitle(fmt.Sprintf("%s %s", s.Device(), s.Device().Product))

	help := tview.NewTextView().SetText(helpText(caps))
	help.SetBorder(true).SetTitle("Keys")

	c.layout = tview.NewFlex().
		AddItem(c.status, 0, 2, false).
		AddItem(help, 0, 1, false)
	c.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(c.layout, 0, 1, true).
		AddItem(logText, 10, 0, false)

	app.SetInputCapture(c.handleKey)
	go c.queue.Run()
	defer c.queue.Close()
	c.queue.Submit(c.refresh)
	return app.SetRoot(c.root, true).Run()
}

func helpText(caps ptz.Capabilities) string {
	var b strings.Builder
	if caps.RelativePanTilt {
		b.WriteString("arrows  start pan / tilt\nspace   stop pan / tilt\n")
	}
	if caps.AbsolutePanTilt {
		b.WriteString("h       home pan / tilt\np       set pan / tilt\n")
	}
	if caps.RelativeZoom {
		b.WriteString("+ -     start zoom in / out\n0       stop zoom\n")
	}
	if caps.AbsoluteZoom {
		b.WriteString("z       set zoom\n")
	}
	b.WriteString("q       quit\n")
	return b.String()
}

type console struct {
	ctx    context.Context
	app    *tview.Application
	s      *ptz.Session
	caps   ptz.Capabilities
	log    *logrus.Entry
	status *tview.TextView
	layout *tview.Flex
	root   *tview.Flex
	input  bool
	queue  *commandQueue
}

func (c *console) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if c.input {
		return event
	}
	caps := c.caps
	switch event.Key() {
	case tcell.KeyLeft:
		c.run(func() error {
			return c.s.RelativePanTilt(c.ctx, ptz.DirectionNegative, caps.PanSpeed.Default, ptz.DirectionStop, 0)
		})
		return nil
	case tcell.KeyRight:
		c.run(func() error {
			return c.s.RelativePanTilt(c.ctx, ptz.DirectionPositive, caps.PanSpeed.Default, ptz.DirectionStop, 0)
		})
		return nil
	case tcell.KeyUp:
		c.run(func() error {
			return c.s.RelativePanTilt(c.ctx, ptz.DirectionStop, 0, ptz.DirectionPositive, caps.TiltSpeed.Default)
		})
		return nil
	case tcell.KeyDown:
		c.run(func() error {
			return c.s.RelativePanTilt(c.ctx, ptz.DirectionStop, 0, ptz.DirectionNegative, caps.TiltSpeed.Default)
		})
		return nil
	}
	switch event.Rune() {
	case ' ':
		c.run(func() error { return c.s.PanTiltStop(c.ctx) })
	case '+':
		c.run(func() error { return c.s.ZoomIn(c.ctx, caps.ZoomSpeed.Default) })
	case '-':
		c.run(func() error { return c.s.ZoomOut(c.ctx, caps.ZoomSpeed.Default) })
	case '0':
		c.run(func() error { return c.s.ZoomStop(c.ctx) })
	case 'h':
		c.run(func() error { return c.s.AbsolutePanTilt(c.ctx, caps.Pan.Default, caps.Tilt.Default) })
	case 'z':
		c.prompt(fmt.Sprintf("Zoom (%d..%d): ", caps.Zoom.Min, caps.Zoom.Max), func(fields []int32) error {
			if len(fields) != 1 {
				return fmt.Errorf("expected one value")
			}
			return c.s.AbsoluteZoom(c.ctx, fields[0])
		})
	case 'p':
		c.prompt("Pan Tilt (arc seconds): ", func(fields []int32) error {
			if len(fields) != 2 {
				return fmt.Errorf("expected pan and tilt")
			}
			return c.s.AbsolutePanTilt(c.ctx, fields[0], fields[1])
		})
	case 'q':
		c.app.Stop()
	default:
		return event
	}
	return nil
}

// run queues op for the command worker. Absolute moves block until the camera
// arrives, so commands never run on the UI goroutine.
func (c *console) run(op func() error) {
	ok := c.queue.Submit(func() {
		if err := op(); err != nil {
			c.log.WithError(err).Error("command failed")
		}
		c.refresh()
	})
	if !ok {
		c.log.Warn("command queue full, dropping command")
	}
}

func (c *console) prompt(label string, done func([]int32) error) {
	input := tview.NewInputField()
	input.SetLabel(label).SetFieldWidth(24)
	input.SetDoneFunc(func(key tcell.Key) {
		text := input.GetText()
		c.layout.RemoveItem(input)
		c.input = false
		c.app.SetFocus(c.layout)
		if key != tcell.KeyEnter {
			return
		}
		var values []int32
		for _, f := range strings.Fields(text) {
			v, err := strconv.ParseInt(f, 10, 32)
			if err != nil {
				c.log.Errorf("failed parsing value %s", err)
				return
			}
			values = append(values, int32(v))
		}
		c.run(func() error { return done(values) })
	})
	c.input = true
	c.layout.AddItem(input, 0, 1, true)
	c.app.SetFocus(input)
}

func (c *console) refresh() {
	var b strings.Builder
	if c.caps.AbsoluteZoom {
		if z, err := c.s.GetAbsoluteZoom(c.ctx); err == nil {
			fmt.Fprintf(&b, "zoom      %d  [%d..%d]\n", z.Current, z.Min, z.Max)
		}
	}
	if c.caps.RelativeZoom {
		if rz, err := c.s.GetRelativeZoom(c.ctx); err == nil {
			fmt.Fprintf(&b, "zooming   %d  speed %d\n", rz.Direction, rz.Speed.Current)
		}
	}
	if c.caps.AbsolutePanTilt {
		if pt, err := c.s.GetAbsolutePanTilt(c.ctx); err == nil {
			fmt.Fprintf(&b, "pan       %d  [%d..%d]\n", pt.Pan.Current, pt.Pan.Min, pt.Pan.Max)
			fmt.Fprintf(&b, "tilt      %d  [%d..%d]\n", pt.Tilt.Current, pt.Tilt.Min, pt.Tilt.Max)
		}
	}
	if c.caps.RelativePanTilt {
		if r, err := c.s.GetRelativePanTilt(c.ctx); err == nil {
			fmt.Fprintf(&b, "panning   %d  speed %d\n", r.PanDirection, r.PanSpeed.Current)
			fmt.Fprintf(&b, "tilting   %d  speed %d\n", r.TiltDirection, r.TiltSpeed.Current)
		}
	}
	text := b.String()
	c.app.QueueUpdateDraw(func() {
		c.status.SetText(text)
	})
}

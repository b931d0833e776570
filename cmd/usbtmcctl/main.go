// usbtmcctl is a terminal front end for the usbtmc package: it attaches
// to the first matching USBTMC USB488 device, paces the command state
// machine's Run() loop, and offers an interactive send/receive prompt.
//
// Grounded on nasa-jpl-golaborate/cmd/andorhttp2/main.go's os.Args
// dispatch (no flag package, log.Fatal on unrecoverable setup errors)
// and nkt/nkt.go's golang.org/x/time/rate pacing pattern, repurposed
// here to pace Run() instead of a telegram send rate.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/theckman/yacspin"
	"golang.org/x/time/rate"

	"github.com/nasa-jpl/usbtmc-host/config"
	"github.com/nasa-jpl/usbtmc-host/statusserver"
	"github.com/nasa-jpl/usbtmc-host/usbhost/libusb"
	"github.com/nasa-jpl/usbtmc-host/usbtmc"
)

// Version is the version number, typically injected via ldflags.
var Version = "1"

func root() {
	str := `usbtmcctl attaches to a USBTMC USB488 device and drives it interactively.

Usage:
	usbtmcctl <command>

Commands:
	run
	help
	version`
	fmt.Println(str)
}

func help() {
	str := `usbtmcctl is configured via usbtmcctl.yml in the working directory.
See config.Config for the available keys (StatusAddr, TimestepMillis,
RunHz, Verbose, Attach.VendorID/ProductID/SerialPrefix).

"run" attaches to the first matching device, starts the status server
if StatusAddr is set, and drops into an interactive prompt where each
line you type is sent as a message and the response is printed.`
	fmt.Println(str)
}

// wallClock adapts time.Now to usbtmc.Clock.
type wallClock struct{ start time.Time }

func newWallClock() *wallClock { return &wallClock{start: time.Now()} }

func (c *wallClock) Millis() uint32 { return uint32(time.Since(c.start).Milliseconds()) }

// logSink forwards OnFailed notifications to log output and also feeds
// a statusserver.HistorySink, so both the terminal and the status
// server see the same events.
type logSink struct {
	history *statusserver.HistorySink
}

func (s *logSink) OnRcvdDescr(d usbtmc.DeviceDescriptor, serial []byte) {
	log.Printf("usbtmcctl: attached VID=%#04x PID=%#04x serial=%q", d.VendorID, d.ProductID, serial)
	s.history.OnRcvdDescr(d, serial)
}

func (s *logSink) OnReceived(b byte) {
	os.Stdout.Write([]byte{b})
	s.history.OnReceived(b)
}

func (s *logSink) OnReadStatusByte(b byte) {
	log.Printf("usbtmcctl: status byte %#02x", b)
	s.history.OnReadStatusByte(b)
}

func (s *logSink) OnFailed(info usbtmc.InfoCode, detail byte) {
	log.Printf("usbtmcctl: %s (detail %#02x)", info, detail)
	s.history.OnFailed(info, detail)
}

func attach(cfg config.Config, history *statusserver.HistorySink) (*usbtmc.Driver, *libusb.Transport, error) {
	vid, pid, err := cfg.Attach.VendorProductIDs()
	if err != nil {
		return nil, nil, err
	}

	spin, _ := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[9],
		Suffix:          " attaching to USBTMC device",
		SuffixAutoColon: true,
		StopCharacter:   "✓",
		StopColors:      []string{"fgGreen"},
	})
	if spin != nil {
		spin.Start()
		defer spin.Stop()
	}

	transport := libusb.New()
	driver := usbtmc.NewDriver(transport, newWallClock(), &logSink{history: history})
	driver.Verbose = cfg.Verbose
	driver.TimeStep(cfg.TimestepMillis)
	if vid != 0 || pid != 0 {
		driver.SetTargetVIDPID(vid, pid)
	}
	if cfg.Attach.SerialPrefix != "" {
		driver.SetTargetSerialNumber([]byte(cfg.Attach.SerialPrefix))
	}

	if err := driver.Attach(0, 0, false); err != nil {
		transport.Close()
		return nil, nil, err
	}
	if spin != nil {
		spin.StopMessage("attached")
	}
	return driver, transport, nil
}

// pump runs Run() at roughly cfg.RunHz using a rate.Limiter the way
// nkt.AddressScan paces its telegram sends, until ctx is canceled.
func pump(ctx context.Context, driver *usbtmc.Driver, hz float64) {
	limiter := rate.NewLimiter(rate.Limit(hz), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		driver.Run(true)
	}
}

func run() {
	cfg, err := config.Load(config.FileName)
	if err != nil {
		log.Fatalf("usbtmcctl: config: %v", err)
	}

	history := statusserver.NewHistorySink()
	driver, transport, err := attach(cfg, history)
	if err != nil {
		log.Fatalf("usbtmcctl: attach: %v", err)
	}
	defer transport.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pump(ctx, driver, cfg.RunHz)

	if cfg.StatusAddr != "" {
		srv := statusserver.New(driver, history)
		go func() {
			log.Printf("usbtmcctl: status server on %s", cfg.StatusAddr)
			if err := http.ListenAndServe(cfg.StatusAddr, srv.Router()); err != nil {
				log.Printf("usbtmcctl: status server: %v", err)
			}
		}()
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s type a message and press enter; Ctrl-D to quit\n", green("usbtmcctl"))
	interact(driver)
}

func interact(driver *usbtmc.Driver) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		data := []byte(line + "\n")
		if err := driver.Transmit(len(data), data); err != nil {
			fmt.Println(color.RedString("send error: %v", err))
			continue
		}
		if err := driver.Request(1024); err != nil {
			fmt.Println(color.RedString("request error: %v", err))
		}
	}
}

func pversion() {
	fmt.Printf("usbtmcctl version %s\n", Version)
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	switch strings.ToLower(args[1]) {
	case "help":
		help()
	case "run":
		run()
	case "version":
		pversion()
	default:
		log.Fatal("unknown command")
	}
}

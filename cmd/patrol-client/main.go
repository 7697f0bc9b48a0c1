// Command patrol-client is the terminal build of the patrol execution
// client. It drives the same session library the device builds embed, with
// fixed coordinates and a simulated battery standing in for hardware
// sensors.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"vigil/internal/patrol/client"
	"vigil/internal/platform/logger"
)

func main() {
	var (
		serverURL = flag.String("server", envOr("VIGIL_SERVER_URL", "http://localhost:8080"), "verification server base URL")
		queuePath = flag.String("queue", envOr("VIGIL_QUEUE_PATH", "patrol-queue.db"), "offline queue database path")
		lat       = flag.Float64("lat", 0, "device latitude")
		lng       = flag.Float64("lng", 0, "device longitude")
	)
	flag.Parse()

	log := logger.New()

	queue, err := client.OpenQueue(*queuePath)
	if err != nil {
		log.Error("open queue", "path", *queuePath, "error", err.Error())
		os.Exit(1)
	}
	defer queue.Close()

	c := client.New(
		client.NewHTTPAPI(*serverURL, 10*time.Second),
		queue,
		staticLocator{lat: *lat, lng: *lng},
		&simulatedBattery{level: 100, start: time.Now()},
		log,
		client.Options{UserAgent: "vigil-patrol-cli/1.0"},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("patrol client — commands: login, pending, start <n>, scan <code> <motion>, flush, complete, panic, quit")
	repl(ctx, c)
}

func repl(ctx context.Context, c *client.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("[%s] > ", c.State())
		if !scanner.Scan() || ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "login":
			doLogin(ctx, c, scanner)
		case "pending":
			printPending(c)
		case "start":
			doStart(ctx, c, fields[1:])
		case "scan":
			doScan(ctx, c, fields[1:])
		case "flush":
			confirmed, err := c.FlushQueue(ctx)
			if err != nil {
				fmt.Println("flush stopped:", err)
			}
			fmt.Printf("%d queued mark(s) confirmed\n", confirmed)
		case "complete":
			ack, err := c.CompleteExecution(ctx)
			if err != nil {
				fmt.Println("complete failed:", err)
				continue
			}
			fmt.Printf("finalized %s — completion %.0f%%, trust %.1f\n",
				ack.State, ack.CompletionRatio*100, ack.TrustScore)
		case "panic":
			c.Panic(ctx)
			fmt.Println("panic alert sent")
		case "quit", "exit":
			return
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}

func doLogin(ctx context.Context, c *client.Client, scanner *bufio.Scanner) {
	creds := client.Credentials{}
	for _, p := range []struct {
		prompt string
		dst    *string
	}{
		{"site code: ", &creds.SiteCode},
		{"national id: ", &creds.NationalID},
		{"pin: ", &creds.PIN},
	} {
		fmt.Print(p.prompt)
		if !scanner.Scan() {
			return
		}
		*p.dst = strings.TrimSpace(scanner.Text())
	}

	session, err := c.Login(ctx, creds)
	if err != nil {
		fmt.Println("login failed:", err)
		return
	}
	fmt.Printf("welcome %s @ %s\n", session.GuardName, session.InstallationName)
	printPending(c)
}

func printPending(c *client.Client) {
	pending := c.Pending()
	if len(pending) == 0 {
		fmt.Println("no pending patrols")
		return
	}
	for i, p := range pending {
		fmt.Printf("  %d. %s at %s (%d checkpoints)\n",
			i+1, p.TemplateName, p.ScheduledFor.Local().Format("15:04"), p.CheckpointTotal)
	}
}

func doStart(ctx context.Context, c *client.Client, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: start <n>")
		return
	}
	n, err := strconv.Atoi(args[0])
	pending := c.Pending()
	if err != nil || n < 1 || n > len(pending) {
		fmt.Println("no such pending patrol")
		return
	}
	ack, err := c.StartExecution(ctx, pending[n-1].ID)
	if err != nil {
		fmt.Println("start failed:", err)
		return
	}
	fmt.Printf("patrol started — %d checkpoints\n", ack.CheckpointTotal)
}

func doScan(ctx context.Context, c *client.Client, args []string) {
	if len(args) < 1 {
		fmt.Println("usage: scan <code> [motion]")
		return
	}
	motion := 0.5
	if len(args) > 1 {
		if v, err := strconv.ParseFloat(args[1], 64); err == nil {
			motion = v
		}
	}
	ack, err := c.ScanCheckpoint(ctx, args[0], motion)
	if err != nil {
		fmt.Println("scan:", err)
		return
	}
	suffix := ""
	if ack.Duplicate {
		suffix = " (already recorded)"
	}
	fmt.Printf("checkpoint %s recorded — %d/%d%s\n",
		args[0], ack.MarksRecorded, ack.CheckpointTotal, suffix)
}

// staticLocator reports fixed coordinates, standing in for a GPS unit.
type staticLocator struct {
	lat, lng float64
}

func (l staticLocator) Locate(ctx context.Context) (client.Fix, error) {
	if err := ctx.Err(); err != nil {
		return client.Fix{}, err
	}
	return client.Fix{Lat: l.lat, Lng: l.lng}, nil
}

// simulatedBattery discharges linearly from its starting level.
type simulatedBattery struct {
	level float64
	start time.Time
}

func (b *simulatedBattery) Level() float64 {
	drained := b.level - time.Since(b.start).Minutes()*0.1
	if drained < 0 {
		return 0
	}
	return drained
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

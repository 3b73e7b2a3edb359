package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/thatsimonsguy/battery-manager/internal/history"
	"github.com/thatsimonsguy/battery-manager/internal/outlet"
)

// plugctl is a manual driver CLI for poking at outlets while tuning profiles:
// discover devices, read live power, switch a plug, or dump recent sessions.
func main() {
	var command, name, addr, childID, historyFile string
	var wait time.Duration
	var limit int
	flag.StringVar(&command, "cmd", "", "Command to run: discover, read, on, off, history")
	flag.StringVar(&name, "outlet", "", "Outlet alias (for read/on/off)")
	flag.StringVar(&addr, "addr", "", "Outlet IP address (skips discovery)")
	flag.StringVar(&childID, "child", "", "Power strip child ID (with -addr)")
	flag.StringVar(&historyFile, "history-file", "data/sessions.db", "Path to the session history database")
	flag.DurationVar(&wait, "wait", 5*time.Second, "Discovery wait window")
	flag.IntVar(&limit, "limit", 20, "Number of history rows to show")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of plugctl:")
		fmt.Println("  -cmd string\tCommand to run: discover, read, on, off, history")
		fmt.Println("  -outlet string\tOutlet alias (for read/on/off)")
		fmt.Println("  -addr string\tOutlet IP address (skips discovery)")
		fmt.Println("  -child string\tPower strip child ID (with -addr)")
		fmt.Println("  -history-file string\tPath to the session history database")
		fmt.Println("  -wait duration\tDiscovery wait window")
		fmt.Println("  -limit int\tNumber of history rows to show")
		os.Exit(0)
	}

	if command == "history" {
		showHistory(historyFile, limit)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wait+30*time.Second)
	defer cancel()

	kasa := outlet.NewKasa(10 * time.Second)
	if addr != "" && name != "" {
		kasa.Register(outlet.Meta{Name: name, Addr: addr, ChildID: childID})
	} else {
		found, err := kasa.Discover(ctx, wait)
		if err != nil {
			fmt.Printf("Discovery failed: %v\n", err)
			os.Exit(1)
		}
		if command == "discover" {
			for _, m := range found {
				kind := "plug"
				if m.ChildID != "" {
					kind = "strip child"
				}
				fmt.Printf("%s\t%s\t%s\n", m.Name, m.Addr, kind)
			}
			return
		}
	}

	if name == "" {
		fmt.Println("Error: -outlet is required")
		os.Exit(1)
	}

	var err error
	switch command {
	case "read":
		var watts float64
		watts, err = kasa.ReadPower(ctx, name)
		if err == nil {
			fmt.Printf("%s: %.1fW\n", name, watts)
		}
	case "on":
		err = kasa.SetPower(ctx, name, true)
	case "off":
		err = kasa.SetPower(ctx, name, false)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}

func showHistory(path string, limit int) {
	store, err := history.Open(path)
	if err != nil {
		fmt.Printf("Failed to open history: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	sessions, err := store.RecentSessions(limit)
	if err != nil {
		fmt.Printf("Failed to read history: %v\n", err)
		os.Exit(1)
	}
	for _, res := range sessions {
		fmt.Printf("%s\t%s\t%s\t%s\tcycles=%d\tlast=%.1fW\n",
			res.StartedAt.Format(time.RFC3339), res.Outlet, res.Mode, res.State, res.CycleCount, res.LastReading)
	}
}

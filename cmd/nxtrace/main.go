// nxtrace - inspect call-stack traces recorded by an nxrt runtime
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chazu/nxrt/manifest"
	"github.com/chazu/nxrt/trace"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

func main() {
	dbPath := flag.String("db", "", "Trace database (default: from nxrt.toml)")
	configDir := flag.String("config", ".", "Directory to search for nxrt.toml")
	session := flag.String("session", "", "Show the events of this session")
	snapshots := flag.Bool("snapshots", false, "Show decoded stack snapshots instead of events")
	verbose := flag.Int("v", 0, "Log verbosity")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: nxtrace [options]\n\n")
		fmt.Fprintf(os.Stderr, "Lists trace sessions, or the events and snapshots of one session.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  nxtrace                          # List sessions\n")
		fmt.Fprintf(os.Stderr, "  nxtrace -session <id>            # Show events of a session\n")
		fmt.Fprintf(os.Stderr, "  nxtrace -session <id> -snapshots # Show error snapshots\n")
	}
	flag.Parse()

	m, err := manifest.FindAndLoad(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if m == nil {
		m = manifest.Default()
	}

	verbosity := m.Log.Verbosity
	if *verbose > 0 {
		verbosity = *verbose
	}
	commonlog.Configure(verbosity, m.LogPath())

	path := *dbPath
	if path == "" {
		path = m.TraceDatabasePath()
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: no trace database at %s\n", path)
		os.Exit(1)
	}

	store, err := trace.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := run(store, *session, *snapshots); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		store.Close()
		os.Exit(1)
	}
}

func run(store *trace.Store, session string, snapshots bool) error {
	if session == "" {
		sessions, err := store.Sessions()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions recorded.")
			return nil
		}
		for _, s := range sessions {
			fmt.Printf("%s  %s  %6d events  %3d snapshots  %s\n",
				s.ID, s.StartedAt.Format("2006-01-02 15:04:05"), s.Events, s.Snapshots, s.Label)
		}
		return nil
	}

	if snapshots {
		snaps, err := store.Snapshots(session)
		if err != nil {
			return err
		}
		for i, snap := range snaps {
			if i > 0 {
				fmt.Println()
			}
			fmt.Println(snap)
		}
		return nil
	}

	events, err := store.Events(session)
	if err != nil {
		return err
	}
	for _, e := range events {
		fmt.Println(e)
	}
	return nil
}

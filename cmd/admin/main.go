// Command admin inspects a running engine and its on-disk campaign data:
// listing campaigns, reading snapshot headers, pruning old snapshots, and
// hitting the engine's loopback admin endpoints.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"questmap.app/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "snapshots":
			snapshotsCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "prune":
			pruneCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "refresh":
			refreshCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "campaigns")
	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		fmt.Println(e.Name())
	}
}

func snapshotsCmd(args []string) {
	fs := flag.NewFlagSet("snapshots", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	campaignID := fs.String("campaign", "", "campaign id")
	_ = fs.Parse(args)

	if strings.TrimSpace(*campaignID) == "" {
		fmt.Fprintln(os.Stderr, "missing -campaign")
		os.Exit(2)
	}

	dir := filepath.Join(*dataDir, "campaigns", *campaignID, "snapshots")
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".state.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		h, err := snapshot.ReadHeader(filepath.Join(dir, name))
		if err != nil {
			fmt.Printf("%s  unreadable: %v\n", name, err)
			continue
		}
		saved := time.UnixMilli(h.SavedAtUnixMs).UTC().Format(time.RFC3339)
		fmt.Printf("%s  v%d seq=%d saved=%s\n", name, h.Version, h.Seq, saved)
	}
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	campaignID := fs.String("campaign", "", "campaign id (required unless -snapshot)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*campaignID) == "" {
			fmt.Fprintln(os.Stderr, "missing -campaign or -snapshot")
			os.Exit(2)
		}
		dir := filepath.Join(*dataDir, "campaigns", *campaignID, "snapshots")
		p, ok, err := snapshot.Latest(dir)
		if err != nil || !ok {
			fmt.Fprintln(os.Stderr, "no snapshots in", dir)
			os.Exit(1)
		}
		path = p
	}

	state, err := snapshot.ReadState(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	mapName := "-"
	if state.Map != nil {
		mapName = state.Map.Name
	}
	role := "player"
	switch {
	case state.Viewer.Admin:
		role = "admin"
	case state.Viewer.DM:
		role = "dm"
	case state.Viewer.CoDM:
		role = "co_dm"
	}
	saved := time.UnixMilli(state.Header.SavedAtUnixMs).UTC().Format(time.RFC3339)
	fmt.Printf("snapshot v%d campaign=%s seq=%d saved=%s map=%q tilesets=%d roster=%d positions=%d locations=%d trails=%d viewer=%s/%s\n",
		state.Header.Version, state.Header.CampaignID, state.Header.Seq, saved, mapName,
		len(state.TileSets), len(state.Roster), len(state.Positions), len(state.Locations), len(state.Trails),
		state.Viewer.UserID, role)
}

func pruneCmd(args []string) {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	campaignID := fs.String("campaign", "", "campaign id")
	keep := fs.Int("keep", 8, "snapshots to keep")
	_ = fs.Parse(args)

	if strings.TrimSpace(*campaignID) == "" {
		fmt.Fprintln(os.Stderr, "missing -campaign")
		os.Exit(2)
	}

	dir := filepath.Join(*dataDir, "campaigns", *campaignID, "snapshots")
	if err := snapshot.Prune(dir, *keep); err != nil {
		fmt.Fprintln(os.Stderr, "prune:", err)
		os.Exit(1)
	}
	fmt.Printf("prune ok: dir=%s keep=%d\n", dir, *keep)
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8480", "engine base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func refreshCmd(args []string) {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8480", "engine base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/refresh"
	req, _ := http.NewRequest(http.MethodPost, u, nil)
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

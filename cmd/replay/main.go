// Command replay reads a campaign journal and prints what happened: the
// merged move/event timeline, or one player's recorded position history.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"questmap.app/internal/persistence/journal"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "timeline":
			timelineCmd(os.Args[2:])
			return
		case "positions":
			positionsCmd(os.Args[2:])
			return
		}
	}
	timelineCmd(os.Args[1:])
}

func timelineCmd(args []string) {
	fs := flag.NewFlagSet("timeline", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	campaignID := fs.String("campaign", "", "campaign id")
	dbPath := fs.String("db", "", "journal path (optional; defaults to <data>/campaigns/<campaign>/journal.db)")
	playerID := fs.String("player", "", "only entries for this player (optional)")
	since := fs.String("since", "", "only entries after this point: RFC3339, YYYY-MM-DD, or a duration like 2h")
	limit := fs.Int("limit", 50, "max entries")
	_ = fs.Parse(args)

	if strings.TrimSpace(*campaignID) == "" {
		fmt.Fprintln(os.Stderr, "missing -campaign")
		os.Exit(2)
	}
	cutoff, err := parseSince(*since)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -since:", err)
		os.Exit(2)
	}

	j := openJournal(*dataDir, *campaignID, *dbPath)
	defer j.Close()

	// Over-fetch so the post-filters can still fill the limit.
	fetch := *limit
	if *playerID != "" || !cutoff.IsZero() {
		fetch *= 10
	}
	entries, err := j.Timeline(*campaignID, fetch)
	if err != nil {
		fmt.Fprintln(os.Stderr, "timeline:", err)
		os.Exit(1)
	}

	printed := 0
	for _, e := range entries {
		if *playerID != "" && e.PlayerID != *playerID {
			continue
		}
		if !cutoff.IsZero() && e.At.Before(cutoff) {
			continue
		}
		switch e.Kind {
		case "move":
			status := "ok"
			if !e.OK {
				status = "FAILED"
			}
			line := fmt.Sprintf("%s  move   %-14s mode=%-8s dest=(%.1f,%.1f) %s",
				e.At.UTC().Format(time.RFC3339), e.PlayerID, e.Name, e.X, e.Y, status)
			if e.Detail != "" {
				line += fmt.Sprintf(" %q", e.Detail)
			}
			fmt.Println(line)
		case "event":
			line := fmt.Sprintf("%s  event  %-14s %s", e.At.UTC().Format(time.RFC3339), e.PlayerID, e.Name)
			if e.Detail != "" {
				line += " spawn=" + e.Detail
			}
			fmt.Println(line)
		}
		printed++
		if printed >= *limit {
			break
		}
	}
	if printed == 0 {
		fmt.Println("no matching journal entries")
	}
}

func positionsCmd(args []string) {
	fs := flag.NewFlagSet("positions", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	campaignID := fs.String("campaign", "", "campaign id")
	playerID := fs.String("player", "", "player id")
	dbPath := fs.String("db", "", "journal path (optional; defaults to <data>/campaigns/<campaign>/journal.db)")
	since := fs.String("since", "", "only rows located after this point: RFC3339, YYYY-MM-DD, or a duration like 2h")
	limit := fs.Int("limit", 50, "max rows")
	_ = fs.Parse(args)

	if strings.TrimSpace(*campaignID) == "" {
		fmt.Fprintln(os.Stderr, "missing -campaign")
		os.Exit(2)
	}
	if strings.TrimSpace(*playerID) == "" {
		fmt.Fprintln(os.Stderr, "missing -player")
		os.Exit(2)
	}
	cutoff, err := parseSince(*since)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -since:", err)
		os.Exit(2)
	}

	j := openJournal(*dataDir, *campaignID, *dbPath)
	defer j.Close()

	fetch := *limit
	if !cutoff.IsZero() {
		fetch *= 10
	}
	rows, err := j.PositionHistory(*campaignID, *playerID, fetch)
	if err != nil {
		fmt.Fprintln(os.Stderr, "positions:", err)
		os.Exit(1)
	}

	printed := 0
	for _, r := range rows {
		if !cutoff.IsZero() && r.LocatedAt.Before(cutoff) {
			continue
		}
		fmt.Printf("%s  seq=%-8d (%.1f,%.1f)\n", r.LocatedAt.UTC().Format(time.RFC3339), r.Seq, r.X, r.Y)
		printed++
		if printed >= *limit {
			break
		}
	}
	if printed == 0 {
		fmt.Println("no matching journal entries")
	}
}

func openJournal(dataDir, campaignID, dbPath string) *journal.SQLiteJournal {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = filepath.Join(dataDir, "campaigns", campaignID, "journal.db")
	}
	// Stat first: opening would create an empty db at a mistyped path.
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "no journal at", path)
		os.Exit(1)
	}
	j, err := journal.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open journal:", err)
		os.Exit(1)
	}
	return j
}

func parseSince(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return time.Now().Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

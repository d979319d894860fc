// dtcheck is an operator tool for inspecting and repairing the job
// database. With no arguments it prints table and state counts.
//
//	dtcheck                     overview
//	dtcheck fix-stuck [apply]   fail jobs stalled mid-pipeline (dry run by default)
//	dtcheck purge [apply]       delete finished jobs past retention (dry run by default)
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/dt-engine/internal/database"
)

const (
	stuckAfter   = 30 * time.Minute
	jobRetention = 90 * 24 * time.Hour
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel)

	ctx := context.Background()
	db, err := database.Connect(ctx, os.Getenv("DATABASE_URL"), log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	apply := len(os.Args) > 2 && os.Args[2] == "apply"

	switch cmd {
	case "":
		overview(ctx, db)
	case "fix-stuck":
		fixStuck(ctx, db, apply)
	case "purge":
		purge(ctx, db, apply)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		os.Exit(2)
	}
}

func overview(ctx context.Context, db *database.DB) {
	counts, err := db.TableCounts(ctx, "jobs", "transcripts")
	if err != nil {
		fmt.Fprintf(os.Stderr, "table counts: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Table        Count")
	fmt.Println("──────────────────")
	for _, t := range []string{"jobs", "transcripts"} {
		fmt.Printf("%-12s %d\n", t, counts[t])
	}

	states, err := db.CountJobsByState(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "state counts: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\nState            Jobs")
	fmt.Println("─────────────────────")
	for _, s := range []string{
		database.JobStateReceived, database.JobStateTranscribing,
		database.JobStateAligning, database.JobStateDiarizing,
		database.JobStatePostProcessing, database.JobStateDone,
		database.JobStateFailed,
	} {
		if n, ok := states[s]; ok {
			fmt.Printf("%-16s %d\n", s, n)
		}
	}

	stuck, err := db.StuckJobs(ctx, stuckAfter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stuck jobs: %v\n", err)
		os.Exit(1)
	}
	if len(stuck) > 0 {
		fmt.Printf("\n%d job(s) stuck >%s — run 'dtcheck fix-stuck apply'\n", len(stuck), stuckAfter)
	}
}

func fixStuck(ctx context.Context, db *database.DB, apply bool) {
	stuck, err := db.StuckJobs(ctx, stuckAfter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stuck jobs: %v\n", err)
		os.Exit(1)
	}
	if len(stuck) == 0 {
		fmt.Println("no stuck jobs")
		return
	}

	fmt.Printf("%-8s %-16s %-20s %s\n", "ID", "State", "Last update", "Audio")
	for _, j := range stuck {
		fmt.Printf("%-8d %-16s %-20s %s\n",
			j.ID, j.State, j.UpdatedAt.Format(time.RFC3339), j.AudioKey)
	}

	if !apply {
		fmt.Printf("\ndry run: %d job(s) would be failed — pass 'apply' to do it\n", len(stuck))
		return
	}

	n, err := db.FailStuckJobs(ctx, stuckAfter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fail stuck jobs: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("failed %d stuck job(s)\n", n)
}

func purge(ctx context.Context, db *database.DB, apply bool) {
	if !apply {
		var n int64
		err := db.Pool.QueryRow(ctx, `
			SELECT count(*) FROM jobs
			WHERE state IN ('done', 'failed')
			  AND finished_at < now() - $1::interval
		`, jobRetention.String()).Scan(&n)
		if err != nil {
			fmt.Fprintf(os.Stderr, "count: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("dry run: %d finished job(s) older than %s would be deleted — pass 'apply' to do it\n",
			n, jobRetention)
		return
	}

	n, err := db.PurgeFinishedJobs(ctx, jobRetention)
	if err != nil {
		fmt.Fprintf(os.Stderr, "purge: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("deleted %d finished job(s)\n", n)
}

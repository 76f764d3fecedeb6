package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/park285/sudoku-duo/internal/boardcodec"
	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/matchclient"
)

func main() {
	baseURL := flag.String("server", os.Getenv("SERVER_URL"), "duo API base URL")
	player := flag.String("player", os.Getenv("DUO_PLAYER_ID"), "player id sent with the feed handshake")
	window := flag.Duration("for", 0, "stop after this long (0 waits for a signal)")
	flag.Parse()

	if *baseURL == "" {
		log.Fatal("SERVER_URL or -server is required")
	}
	matchID := strings.TrimSpace(flag.Arg(0))
	if matchID == "" {
		log.Fatal("usage: matchwatch [flags] <match-id>")
	}

	client := matchclient.NewClient(*baseURL,
		matchclient.WithPlayer(*player),
		matchclient.WithTimeout(8*time.Second),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *window > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *window)
		defer cancel()
	}

	fctx, fcancel := context.WithTimeout(ctx, 5*time.Second)
	m, err := client.Fetch(fctx, matchID)
	fcancel()
	if err != nil {
		log.Fatalf("fetch %s: %v", matchID, err)
	}
	printMatch(m)

	feed, err := client.NewFeed(matchID, 5)
	if err != nil {
		log.Fatalf("feed: %v", err)
	}
	feed.OnStateChange(func(state matchclient.FeedState) {
		log.Printf("feed state: %s", state)
	})
	feed.OnEvent(func(ev matchclient.Event) {
		if ev.Deleted {
			fmt.Println("match deleted")
			stop()
			return
		}
		printMatch(ev.Match)
	})

	cctx, ccancel := context.WithTimeout(ctx, 10*time.Second)
	defer ccancel()
	if err := feed.Connect(cctx); err != nil {
		log.Printf("feed connect error: %v", err)
		return
	}

	<-ctx.Done()
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = feed.Close(closeCtx)
}

func printMatch(m *domain.Match) {
	if m == nil {
		return
	}
	fmt.Printf("match=%s v%d status=%s type=%s errors=%v hints=%v solved=%v last_by=%d\n",
		m.ID, m.Version, m.Status, m.Type,
		m.State.ErrorsRemaining, m.State.HintsRemaining, m.State.CellsSolved, m.State.LastMoveBy)
	board := boardcodec.ToGrid(m.State.Board)
	for r, row := range board {
		if r > 0 && r%3 == 0 {
			fmt.Println("------+-------+------")
		}
		var b strings.Builder
		for c, v := range row {
			if c > 0 && c%3 == 0 {
				b.WriteString("| ")
			}
			if v == 0 {
				b.WriteString(". ")
			} else {
				fmt.Fprintf(&b, "%d ", v)
			}
		}
		fmt.Println(strings.TrimSpace(b.String()))
	}
	if m.Status == domain.StatusCompleted {
		fmt.Printf("winner=%d reason=%s\n", m.Winner, m.Reason)
	}
}

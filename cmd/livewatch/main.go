// Package main is a terminal viewer for one live event: it connects a live
// client, prints state as the server pushes it, and turns stdin lines into
// commands.
//
// Usage:
//
//	livewatch -url ws://localhost:8080/ws -event <uuid> -token <jwt>
//
// Commands on stdin:
//
//	/ask <text>      submit a question
//	/upvote <uuid>   upvote a question
//	/react <type>    send applause|thumbs_up|fire|heart
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adamdasovich/goldventure-live/config"
	"github.com/adamdasovich/goldventure-live/internal/live"
	"github.com/adamdasovich/goldventure-live/internal/models"
)

func main() {
	var (
		urlFlag   = flag.String("url", "ws://localhost:8080/ws", "live channel endpoint")
		eventFlag = flag.String("event", "", "event id (uuid)")
		tokenFlag = flag.String("token", "", "bearer token")
	)
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	eventID, err := uuid.Parse(*eventFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "livewatch: -event must be a uuid")
		os.Exit(2)
	}
	if *tokenFlag == "" {
		fmt.Fprintln(os.Stderr, "livewatch: -token is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	client := live.New(live.Config{
		URL:            *urlFlag,
		EventID:        eventID,
		Token:          *tokenFlag,
		ReconnectMin:   cfg.Live.ReconnectMinDelay,
		ReconnectMax:   cfg.Live.ReconnectMaxDelay,
		ReactionBuffer: cfg.Live.ReactionBuffer,
		OnChange:       printView,
		OnStatus: func(state live.ConnState, err error) {
			if err != nil {
				fmt.Printf("-- %s (%v)\n", state, err)
				return
			}
			fmt.Printf("-- %s\n", state)
		},
	}, logger)

	if err := client.Start(); err != nil {
		logger.Fatal("start client", zap.Error(err))
	}
	defer client.Close()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := dispatch(client, line); err != nil {
			fmt.Printf("!! %v\n", err)
		}
	}
}

func dispatch(client *live.Client, line string) error {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch cmd {
	case "/ask":
		return client.SubmitQuestion(rest)
	case "/upvote":
		id, err := uuid.Parse(rest)
		if err != nil {
			return fmt.Errorf("upvote needs a question uuid")
		}
		return client.UpvoteQuestion(id)
	case "/react":
		return client.SendReaction(models.ReactionType(rest))
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printView(v live.View) {
	if v.Event != nil {
		fmt.Printf("== %s (%d participants, %d questions)\n",
			v.Event.Title, len(v.Participants), len(v.Questions))
	}
	for _, q := range v.Questions {
		marker := " "
		if q.IsFeatured {
			marker = "*"
		}
		fmt.Printf("  %s [%s] %s (%d) %s by %s\n",
			marker, q.ID, q.Status, q.Upvotes, q.Content, q.Author.Username)
	}
	if len(v.Reactions) > 0 {
		kinds := make([]string, 0, len(v.Reactions))
		for _, r := range v.Reactions {
			kinds = append(kinds, string(r.Type))
		}
		fmt.Printf("  reactions: %s\n", strings.Join(kinds, " "))
	}
}

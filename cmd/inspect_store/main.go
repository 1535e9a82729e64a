// Command inspect_store prints the contents of a bot record store for
// debugging. Without a room it prints store statistics; with -room it prints
// the archived messages of that room, oldest first.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/boo-chat/boo/bot/store"
)

func main() {
	dir := flag.String("dir", "data", "record store directory")
	room := flag.String("room", "", "room ID to print archived messages for")
	limit := flag.Int("limit", 50, "maximum number of messages to print")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(*dir, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open store:", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	if *room == "" {
		stats, err := st.Stats(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read stats:", err)
			os.Exit(1)
		}
		fmt.Printf("messages: %d\nkeys: %d\nsize: %d bytes\n", stats.Messages, stats.Keys, stats.SizeBytes)
		return
	}

	msgs, err := st.Messages(ctx, *room, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read messages:", err)
		os.Exit(1)
	}
	for _, m := range msgs {
		marker := " "
		if m.FromBot {
			marker = "*"
		}
		fmt.Printf("%s %s %s <%s> %s\n", m.Time.Format("2006-01-02 15:04:05"), marker, m.Kind, m.Sender, m.Body)
	}
}

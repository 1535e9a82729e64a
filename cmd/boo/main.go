package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/boo-chat/boo/bot"
	"github.com/boo-chat/boo/bot/session"
)

const configPath = "config.toml"

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	uc, err := bot.ReadConfig(configPath)
	if err != nil {
		log.Error("Read config.", "error", err)
		os.Exit(1)
	}
	conf, err := uc.Config(log)
	if err != nil {
		log.Error("Prepare config.", "error", err)
		os.Exit(1)
	}

	loop := session.NewLoopback("@boo:local", uc.Bot.Name)
	conf.Session = loop
	if uc.Watch.Enabled {
		conf.WatchPath = configPath
	}

	b, err := conf.New()
	if err != nil {
		log.Error("Create bot.", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		cancel()
	}()

	// Console frontend: stdin lines become room events, outbound replies are
	// printed. Address the bot by name, e.g. "boo: ping".
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			loop.Inject("!console", "@operator:local", scanner.Text())
		}
	}()
	go func() {
		for out := range loop.Outbound() {
			if out.Path != "" {
				fmt.Printf("[%s] <file> %s\n", out.RoomID, out.Filename)
				continue
			}
			fmt.Printf("[%s] %s\n", out.RoomID, out.Body)
		}
	}()

	if err := b.Run(ctx); err != nil {
		log.Error("Bot stopped with error.", "error", err)
	}
	if err := b.Close(context.Background()); err != nil {
		log.Error("Shutdown.", "error", err)
	}
}

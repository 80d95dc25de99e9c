// Copyright 2025 The Popmux Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the popmux completion core and CLI [DBG] application.

Popmux coordinates candidate completions offered by multiple independent,
asynchronously responding completion sources and merges them into one ranked
list for the editor's popup. A companion HTTP server exposes a versioned
snapshot of the active document so out-of-process sources can read buffer
content without a second control channel into the editor.

The core runs as one msgpack IPC process per editor session: events arrive
on stdin, merged results and refresh notifications go back on stdout. An
optional second connection to the editor (the -editor flag) lets the
document server re-query live editor state from its own goroutine.

# Usage

Start the core attached to an editor socket:

	popmux -editor /tmp/editor.sock

Enable debug logging:

	popmux -editor /tmp/editor.sock -d

Run the interactive REPL for testing the match pipeline:

	popmux -c

# Configuration

Runtime configuration is a TOML file, created with defaults when missing:

	[server]
	listen_addr = "127.0.0.1:0"

	[complete]
	info_max_len = 70

	[words]
	enabled = true
	min_word_len = 3
	max_matches = 50

# IPC Protocol

The editor drives the core with msgpack-RPC notifications: refresh starts a
cycle, complete delivers one source's candidates, complete_timeout is the
debounce boundary that forces the popup when sources are slow, insert_enter
resets match state, shutdown ends the session. Unknown event names are
logged and ignored.

Outbound, the core notifies popmux#notify_sources_to_refresh with the sync
source names and channel targets that need re-querying, and
popmux#core_complete with the merged result.

# Document Server

Buffer content is served over plain HTTP GET. The request carries a
serialized version identifier (change tick plus cursor position); the
response body is the full document text, or empty once the identifier is
stale. Contexts handed to sources carry a ready-made fetch URL.

# Command Line Flags

	-editor string
	    Socket or host:port of the editor for live-state queries
	-config string
	    Custom config file path
	-d  Enable debug mode with detailed logging
	-c  Run the interactive REPL instead of the IPC core
	-version
	    Show current version
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/bastiangx/popmux/internal/cli"
	"github.com/bastiangx/popmux/internal/logger"
	"github.com/bastiangx/popmux/pkg/config"
	"github.com/bastiangx/popmux/pkg/docserve"
	"github.com/bastiangx/popmux/pkg/merge"
	"github.com/bastiangx/popmux/pkg/rpc"
	"github.com/bastiangx/popmux/pkg/wordsource"
)

const (
	Version = "0.3.0-beta"
	AppName = "popmux"
	gh      = "https://github.com/bastiangx/popmux"
)

// sigHandler is a simple handler for OS signals to exit normally.
func sigHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		os.Exit(0)
	}()
}

// main wires the packages together; the actual logic lives in them.
func main() {
	sigHandler()

	showVersion := flag.Bool("version", false, "Show current version")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	cliMode := flag.Bool("c", false, "Run CLI -- useful for testing and debugging")
	editorAddr := flag.String("editor", "", "Editor socket path or host:port for live-state queries")
	configPath := flag.String("config", "", "Custom config file path")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *debugMode {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	cfg, activePath, err := config.LoadConfigWithPriority(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
		os.Exit(1)
	}
	log.Debugf("Using config file: (%s)", activePath)

	proc := merge.NewProcessor(nil)
	proc.SetInfoCutoff(cfg.Complete.InfoMaxLen)

	if *cliMode {
		log.SetReportTimestamp(false)
		handler := cli.NewInputHandler(proc, cfg.CLI.DefaultFiletype, cfg.CLI.DefaultLimit)
		if err := handler.Start(); err != nil {
			log.Fatalf("CLI error: %v", err)
			os.Exit(1)
		}
		return
	}

	// Second connection into the editor: only the document server issues
	// blocking calls over it, never the event loop.
	var oracle docserve.Editor
	if *editorAddr != "" {
		client, err := rpc.Dial(*editorAddr)
		if err != nil {
			log.Fatalf("Failed to reach editor at %s: %v", *editorAddr, err)
			os.Exit(1)
		}
		oracle = client
	} else {
		log.Warn("No -editor address, document server runs without live-state queries")
	}

	docs := docserve.NewServer(docserve.NewVersionCache(oracle), cfg.Server.ListenAddr)
	if err := docs.Start(); err != nil {
		log.Fatalf("Failed to start document server: %v", err)
		os.Exit(1)
	}

	emitter := rpc.NewEditorClient(os.Stdout, nil)
	coord := merge.NewCoordinator(emitter, proc, docs)

	var words *wordsource.Source
	srv := rpc.NewServer(os.Stdin, coord, func() {
		if words != nil {
			words.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := docs.Shutdown(shutdownCtx); err != nil {
			log.Errorf("document server shutdown: %v", err)
		}
	})

	if cfg.Words.Enabled {
		loop := srv.Loop()
		words = wordsource.New(func(name string, ctx merge.Context, startcol int, matches []any) {
			loop.Post(func() {
				coord.OnSourceMatches(nil, name, ctx, startcol, matches)
			})
		}, cfg.Words.MinWordLen, cfg.Words.MaxMatches)
		coord.AddLocal(words)
		words.Start()
	}

	showStartupInfo(docs.URL())

	if err := srv.Run(); err != nil {
		log.Fatalf("Event loop failed: %v", err)
		os.Exit(1)
	}
}

func printVersion() {
	vlog := logger.NewWithConfig("", log.InfoLevel, false, false, log.TextFormatter)

	styles := log.DefaultStyles()

	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})

	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})

	vlog.SetStyles(styles)

	vlog.Print("")
	vlog.Print("[ popmux ] merges completions from everywhere!")
	vlog.Print("", "version", Version)
	vlog.Print("")
	vlog.Print("use -h or --help to see available options")
	vlog.Print("Github Repo", "gh", gh)
}

// showStartupInfo displays some basic info about the init process.
func showStartupInfo(docsURL string) {
	pid := os.Getpid()
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)

	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", pid)
	log.Infof("document server: ( %s )", docsURL)
	log.Info("status: ready")

	log.SetLevel(currentLevel)
}

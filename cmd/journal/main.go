// Command journal inspects the trade journal from the shell: tail the last N
// entries, optionally filtered by symbol or outcome. Read-only; the journal
// file is append-only and never rewritten.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	fieldOutcome = 1
	fieldSymbol  = 2
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	defaultPath := os.Getenv("JOURNAL_PATH")
	if defaultPath == "" {
		defaultPath = "./journal/trades.log"
	}

	var (
		path    = flag.String("file", defaultPath, "journal file to read")
		last    = flag.Int("n", 20, "show the last N entries")
		symbol  = flag.String("symbol", "", "filter by symbol")
		outcome = flag.String("outcome", "", "filter by outcome (success|failure)")
	)
	flag.Parse()

	f, err := os.Open(*path)
	if err != nil {
		log.Fatal().Err(err).Str("file", *path).Msg("Cannot open journal")
	}
	defer f.Close()

	var matched []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 12 {
			log.Warn().Str("line", line).Msg("Malformed journal line skipped")
			continue
		}
		if *outcome != "" && fields[fieldOutcome] != *outcome {
			continue
		}
		if *symbol != "" && !strings.EqualFold(fields[fieldSymbol], *symbol) {
			continue
		}
		matched = append(matched, line)
	}
	if err := scanner.Err(); err != nil {
		log.Fatal().Err(err).Msg("Reading journal failed")
	}

	if len(matched) > *last {
		matched = matched[len(matched)-*last:]
	}
	for _, line := range matched {
		fmt.Println(line)
	}
	log.Info().Int("shown", len(matched)).Str("file", *path).Msg("Journal tail complete")
}

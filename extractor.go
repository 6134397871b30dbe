package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	unknownPlayer  = "No username was provided."
	unknownWorld   = "Unknown World"
	unknownWorldID = "unknown"
)

// lineRule is one row of the classification table. Rules are tried in order
// and the first match wins, so a line yields at most one event.
type lineRule struct {
	name  string
	match func(line string) bool
	apply func(x *Extractor, tokens []string, now time.Time) (Event, bool)
}

func contains(substr string) func(string) bool {
	return func(line string) bool { return strings.Contains(line, substr) }
}

var lineRules = []lineRule{
	{name: "world_name", match: contains("Joining or"), apply: (*Extractor).applyWorldName},
	{name: "world_id", match: contains("Joining w"), apply: (*Extractor).applyWorldID},
	{name: "world_joined", match: contains("Successfully joined room"), apply: (*Extractor).applyWorldJoined},
	{name: "player_joined", match: contains("[Behaviour] OnPlayerJoined"), apply: (*Extractor).applyPlayerJoined},
	{name: "player_left", match: contains("[Behaviour] OnPlayerLeft "), apply: (*Extractor).applyPlayerLeft},
	{name: "keywords_exceeded", match: contains("Maximum number (256)"), apply: (*Extractor).applyKeywordsExceeded},
	{
		name: "portal_dropped",
		match: func(line string) bool {
			return strings.Contains(line, "[Behaviour]") && strings.Contains(line, "Portals/PortalInternalDynamic")
		},
		apply: (*Extractor).applyPortalDropped,
	},
	{name: "player_cap", match: contains("[Behaviour] Hard max"), apply: (*Extractor).applyPlayerCap},
}

// Extractor turns normalized log lines into domain events and keeps the
// session state in step with them.
type Extractor struct {
	session     *Session
	config      *ConfigStore
	now         func() time.Time
	log         zerolog.Logger
	metrics     *pipelineMetrics
	subscribers []LogSubscriber
}

func NewExtractor(session *Session, config *ConfigStore, metrics *pipelineMetrics, log zerolog.Logger) *Extractor {
	return &Extractor{
		session: session,
		config:  config,
		now:     time.Now,
		log:     log.With().Str("component", "extractor").Logger(),
		metrics: metrics,
	}
}

func (x *Extractor) Subscribe(sub LogSubscriber) {
	x.subscribers = append(x.subscribers, sub)
}

// Process splits raw appended text into lines and processes them.
func (x *Extractor) Process(text string) []Event {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return x.ProcessLines(strings.Split(text, "\n"))
}

// ProcessLines classifies each line and fans the resulting events out to
// subscribers. Session mutation happens under a single critical section per
// batch; subscribers run after it is released.
func (x *Extractor) ProcessLines(lines []string) []Event {
	var events []Event

	x.session.mu.Lock()
	for _, raw := range lines {
		line := normalizeLine(raw)
		if line == "" {
			continue
		}
		if ev, ok := x.classifyLocked(line, x.now()); ok {
			events = append(events, ev)
		}
	}
	x.session.mu.Unlock()

	for _, ev := range events {
		x.metrics.eventParsed(ev.Kind)
		for _, sub := range x.subscribers {
			sub.OnLogEvent(ev)
		}
	}
	return events
}

func (x *Extractor) classifyLocked(line string, now time.Time) (Event, bool) {
	for _, rule := range lineRules {
		if !rule.match(line) {
			continue
		}
		ev, ok := rule.apply(x, strings.Split(line, " "), now)
		if ok {
			ev.Time = now
			ev.Session = x.session.snapshotLocked()
		}
		return ev, ok
	}
	return Event{}, false
}

func (x *Extractor) applyWorldName(tokens []string, _ time.Time) (Event, bool) {
	name, ok := tokensAfter(tokens, "Room:")
	if !ok {
		name = unknownWorld
	}
	x.session.worldName = name
	return Event{}, false
}

func (x *Extractor) applyWorldID(tokens []string, _ time.Time) (Event, bool) {
	id := unknownWorldID
	for i, tok := range tokens {
		if tok == "Joining" && i+1 < len(tokens) {
			id = tokens[i+1]
			break
		}
	}
	x.session.worldID = id
	return Event{}, false
}

func (x *Extractor) applyWorldJoined(_ []string, now time.Time) (Event, bool) {
	s := x.session
	s.silencedUntil = now.Add(x.config.Get().Silence.WorldJoinSilence)
	s.nextJoinIsLocalUser = true
	s.playerCountKnown = true
	return Event{Kind: KindWorldChanged, WorldName: s.worldName, WorldID: s.worldID}, true
}

func (x *Extractor) applyPlayerJoined(tokens []string, _ time.Time) (Event, bool) {
	name, id := playerFromTokens(tokens, "OnPlayerJoined")
	s := x.session
	s.playerCount++
	if s.nextJoinIsLocalUser {
		s.nextJoinIsLocalUser = false
		s.playerCount = 1
		x.log.Debug().Str("player", name).Msg("local user joined")
		return Event{}, false
	}
	return Event{Kind: KindPlayerJoined, Player: name, PlayerID: id}, true
}

func (x *Extractor) applyPlayerLeft(tokens []string, _ time.Time) (Event, bool) {
	name, id := playerFromTokens(tokens, "OnPlayerLeft")
	x.session.playerCount--
	return Event{Kind: KindPlayerLeft, Player: name, PlayerID: id}, true
}

func (x *Extractor) applyKeywordsExceeded(_ []string, _ time.Time) (Event, bool) {
	return Event{Kind: KindKeywordsExceeded}, true
}

func (x *Extractor) applyPortalDropped(_ []string, _ time.Time) (Event, bool) {
	return Event{Kind: KindPortalDropped}, true
}

func (x *Extractor) applyPlayerCap(tokens []string, _ time.Time) (Event, bool) {
	s := x.session
	limit, err := parseCap(tokens)
	if err != nil {
		s.playerCap = 0
		s.playerCapKnown = false
		x.log.Warn().Err(err).Msg("failed to retrieve player cap for instance")
		return Event{}, false
	}
	s.playerCap = limit
	s.playerCapKnown = true
	return Event{Kind: KindPlayerCapDiscovered, Cap: limit}, true
}

func parseCap(tokens []string) (int, error) {
	if len(tokens) == 0 {
		return 0, fmt.Errorf("empty cap line")
	}
	last := strings.TrimSpace(tokens[len(tokens)-1])
	n, err := strconv.Atoi(last)
	if err != nil {
		return 0, fmt.Errorf("parse cap %q: %w", last, err)
	}
	return n, nil
}

// normalizeLine strips carriage returns and tabs, trims, and collapses runs of
// whitespace into single spaces.
func normalizeLine(raw string) string {
	raw = strings.NewReplacer("\r", "", "\n", "", "\t", "").Replace(raw)
	return strings.Join(strings.Fields(raw), " ")
}

// tokensAfter returns everything after the first token equal to marker,
// re-joined with single spaces.
func tokensAfter(tokens []string, marker string) (string, bool) {
	for i, tok := range tokens {
		if tok != marker {
			continue
		}
		rest := strings.TrimSpace(strings.Join(tokens[i+1:], " "))
		return rest, rest != ""
	}
	return "", false
}

// playerFromTokens extracts the display name after marker and splits off a
// trailing "(usr_...)" id when present.
func playerFromTokens(tokens []string, marker string) (name, id string) {
	name, ok := tokensAfter(tokens, marker)
	if !ok {
		return unknownPlayer, ""
	}
	if i := strings.LastIndex(name, " (usr_"); i >= 0 && strings.HasSuffix(name, ")") {
		id = name[i+2 : len(name)-1]
		name = strings.TrimSpace(name[:i])
	}
	if name == "" {
		name = unknownPlayer
	}
	return name, id
}

// coldScanResult is what a backward scan recovered before hitting the anchor.
type coldScanResult struct {
	worldName   string
	worldID     string
	playerCount int
	playerCap   int
	capKnown    bool
	anchored    bool
}

// ColdScan walks up to maxBytes preceding offset in path, newest line first,
// and rebuilds world identity and player count/cap. No events are emitted.
// A non-positive maxBytes falls back to the default window.
func (x *Extractor) ColdScan(ctx context.Context, path string, offset, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = defaultColdScanMaxBytes
	}
	start := int64(0)
	if offset > maxBytes {
		start = offset - maxBytes
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, offset-start)
	n, err := f.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return fmt.Errorf("read %s: %w", path, err)
	}

	res := scanBackward(ctx, buf[:n])
	if !res.anchored {
		x.log.Info().Str("path", path).Msg("no existing instance found")
		return nil
	}

	s := x.session
	s.mu.Lock()
	s.playerCount = res.playerCount
	s.playerCountKnown = true
	s.playerCap = res.playerCap
	s.playerCapKnown = res.capKnown
	s.nextJoinIsLocalUser = false
	if res.worldName != "" {
		s.worldName = res.worldName
	}
	if res.worldID != "" {
		s.worldID = res.worldID
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	x.log.Info().
		Str("world", snap.WorldName).
		Str("world_id", snap.WorldID).
		Str("players", snap.Players()).
		Msg("discovered existing instance")
	return nil
}

func scanBackward(ctx context.Context, buf []byte) coldScanResult {
	var res coldScanResult
	end := len(buf)
	for end > 0 {
		if ctx.Err() != nil {
			return res
		}
		i := bytes.LastIndexByte(buf[:end], '\n')
		line := normalizeLine(string(buf[i+1 : end]))
		end = i
		if i < 0 {
			end = 0
		}
		if line == "" {
			continue
		}

		tokens := strings.Split(line, " ")
		switch {
		case strings.Contains(line, "[Behaviour] OnPlayerJoined"):
			res.playerCount++
		case strings.Contains(line, "[Behaviour] OnPlayerLeft "):
			res.playerCount--
		case strings.Contains(line, "Joining or"):
			if name, ok := tokensAfter(tokens, "Room:"); ok && res.worldName == "" {
				res.worldName = name
			}
		case strings.Contains(line, "Joining w"):
			for j, tok := range tokens {
				if tok == "Joining" && j+1 < len(tokens) && res.worldID == "" {
					res.worldID = tokens[j+1]
					break
				}
			}
		case strings.Contains(line, "[Behaviour] Hard max"):
			limit, err := parseCap(tokens)
			res.anchored = true
			res.playerCap = limit
			res.capKnown = err == nil
			return res
		}
	}
	return res
}

// Package engine owns the live working set of the chat service: presence,
// room membership, bounded history, sanctions, rank assignments, spam windows
// and progression. All mutation goes through Engine methods, which serialize
// access and keep the in-memory state consistent with the durable store.
// Writes go durable-first where correctness requires it (sanctions, ranks,
// rename, sessions) and memory-first where a crash merely loses ephemeral
// state (presence, history).
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yasser311511/chat-app2/internal/logging"
	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
	repository "github.com/yasser311511/chat-app2/internal/pkg/chat/persistence/repository/port"
)

// Broadcaster is the fan-out transport the engine pushes events through. The
// realtime router implements it.
type Broadcaster interface {
	Deliver(connIDs []string, payload []byte) int
	DeliverAll(payload []byte) int
	Notify(connID string, payload []byte) bool
	NotifyUser(username string, payload []byte) int
	CloseUser(username string, code int, reason string)
	RenameUser(old, new string)
}

// TaskQueue enqueues background persistence work (durable message log,
// audit events). May be nil; the engine then skips those writes.
type TaskQueue interface {
	Enqueue(ctx context.Context, taskType string, payload []byte) error
}

// Config tunes the engine. Zero values fall back to the domain defaults.
type Config struct {
	HistoryCapacity  int
	SpamWindow       time.Duration
	SpamThreshold    int
	SpamMuteDuration time.Duration
	CoalesceWindow   time.Duration
	SweepInterval    time.Duration
	Clock            func() time.Time
}

func (c Config) withDefaults() Config {
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = chat.HistoryCapacity
	}
	if c.SpamWindow <= 0 {
		c.SpamWindow = chat.SpamWindow
	}
	if c.SpamThreshold <= 0 {
		c.SpamThreshold = chat.SpamThreshold
	}
	if c.SpamMuteDuration <= 0 {
		c.SpamMuteDuration = chat.SpamMuteDuration
	}
	if c.CoalesceWindow <= 0 {
		c.CoalesceWindow = 2 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Engine is the serialized state owner. One instance exists per process.
type Engine struct {
	cfg   Config
	store repository.Store
	bc    Broadcaster
	queue TaskQueue
	log   logging.Logger
	now   func() time.Time

	mu        sync.Mutex
	hierarchy *chat.Hierarchy
	rooms     map[string]*chat.Room
	roomOrder []string
	history   map[string]*chat.History
	presence  map[string]*chat.Presence // connectionID -> presence
	ranks     map[string]chat.RankAssignment
	mod       *chat.ModerationSet
	throttle  *chat.Throttle
	progress  map[string]*chat.Progression

	// per-identity locks serialize privileged actions that span durable-store
	// suspension points, so two racing handlers for the same identity cannot
	// interleave their read-modify-write cycles
	lockMu  sync.Mutex
	idLocks map[string]*sync.Mutex

	members *coalescer
}

func New(store repository.Store, bc Broadcaster, queue TaskQueue, log logging.Logger, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:       cfg,
		store:     store,
		bc:        bc,
		queue:     queue,
		log:       log,
		now:       cfg.Clock,
		hierarchy: chat.NewHierarchy(chat.DefaultRanks()),
		rooms:     make(map[string]*chat.Room),
		history:   make(map[string]*chat.History),
		presence:  make(map[string]*chat.Presence),
		ranks:     make(map[string]chat.RankAssignment),
		mod:       chat.NewModerationSet(),
		throttle:  chat.NewThrottle(cfg.SpamWindow, cfg.SpamThreshold),
		progress:  make(map[string]*chat.Progression),
		idLocks:   make(map[string]*sync.Mutex),
	}
	for _, room := range chat.DefaultRooms() {
		e.rooms[room.ID] = room
		e.roomOrder = append(e.roomOrder, room.ID)
		e.history[room.ID] = chat.NewHistory(cfg.HistoryCapacity)
	}
	e.members = newCoalescer(cfg.CoalesceWindow, e.broadcastMembership)
	return e
}

// Load hydrates the working set from the durable store: rank definitions
// (seeding the defaults on first run), assignments, sanctions and the
// progression ledger.
func (e *Engine) Load(ctx context.Context) error {
	defs, err := e.store.ListRankDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("engine: load rank definitions: %w", err)
	}
	if len(defs) == 0 {
		defs = chat.DefaultRanks()
		if err := e.store.SeedRankDefinitions(ctx, defs); err != nil {
			return fmt.Errorf("engine: seed rank definitions: %w", err)
		}
	}

	roomList, err := e.store.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("engine: load rooms: %w", err)
	}
	if len(roomList) == 0 {
		roomList = chat.DefaultRooms()
		if err := e.store.SeedRooms(ctx, roomList); err != nil {
			return fmt.Errorf("engine: seed rooms: %w", err)
		}
	}

	assignments, err := e.store.ListRankAssignments(ctx)
	if err != nil {
		return fmt.Errorf("engine: load rank assignments: %w", err)
	}
	mutes, err := e.store.ListMutes(ctx)
	if err != nil {
		return fmt.Errorf("engine: load mutes: %w", err)
	}
	roomBans, err := e.store.ListRoomBans(ctx)
	if err != nil {
		return fmt.Errorf("engine: load room bans: %w", err)
	}
	siteBans, err := e.store.ListSiteBans(ctx)
	if err != nil {
		return fmt.Errorf("engine: load site bans: %w", err)
	}
	ledger, err := e.store.ListProgression(ctx)
	if err != nil {
		return fmt.Errorf("engine: load progression: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.hierarchy = chat.NewHierarchy(defs)
	e.rooms = make(map[string]*chat.Room, len(roomList))
	e.roomOrder = e.roomOrder[:0]
	e.history = make(map[string]*chat.History, len(roomList))
	for _, room := range roomList {
		e.rooms[room.ID] = room
		e.roomOrder = append(e.roomOrder, room.ID)
		e.history[room.ID] = chat.NewHistory(e.cfg.HistoryCapacity)
	}
	for _, a := range assignments {
		e.ranks[a.Username] = a
	}
	for _, m := range mutes {
		e.mod.SetMute(m)
	}
	for _, b := range roomBans {
		e.mod.BanRoom(b)
	}
	for _, b := range siteBans {
		e.mod.BanSite(b)
	}
	for _, p := range ledger {
		entry := p
		e.progress[p.Username] = &entry
	}
	return nil
}

// lockIdentity serializes handlers acting on the same identity. The returned
// function releases the lock.
func (e *Engine) lockIdentity(username string) func() {
	e.lockMu.Lock()
	l, ok := e.idLocks[username]
	if !ok {
		l = &sync.Mutex{}
		e.idLocks[username] = l
	}
	e.lockMu.Unlock()
	l.Lock()
	return l.Unlock
}

// lockIdentities locks two identities in a stable order to avoid deadlock.
func (e *Engine) lockIdentities(a, b string) func() {
	names := []string{a, b}
	sort.Strings(names)
	if names[0] == names[1] {
		return e.lockIdentity(names[0])
	}
	first := e.lockIdentity(names[0])
	second := e.lockIdentity(names[1])
	return func() {
		second()
		first()
	}
}

// rankOf returns the rank name currently assigned to username, or "" when
// unranked. An assignment past its expiry confers nothing even before the
// sweeper collects it. Caller holds e.mu.
func (e *Engine) rankOf(username string) string {
	if a, ok := e.ranks[username]; ok && !a.Expired(e.now()) {
		return a.Rank
	}
	return ""
}

// storeErr classifies a durable-store failure: known domain sentinels pass
// through untouched, anything else is surfaced as transient.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		chat.ErrNameTaken, chat.ErrIdentityNotFound, chat.ErrSessionInvalid,
		chat.ErrRoomNotFound, chat.ErrRoomExists, chat.ErrRankNotFound,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", chat.ErrStoreUnavailable, err)
}

// CanAct answers the authority predicate for two identities, a snapshot query
// for the presentation layer.
func (e *Engine) CanAct(actor, target string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hierarchy.CanAct(e.rankOf(actor), e.rankOf(target))
}

// Hierarchy returns the shared rank hierarchy.
func (e *Engine) Hierarchy() *chat.Hierarchy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hierarchy
}

// IsSiteBanned reports whether the identity currently holds a site ban.
func (e *Engine) IsSiteBanned(username string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mod.IsSiteBanned(username)
}

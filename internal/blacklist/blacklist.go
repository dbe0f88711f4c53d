// Package blacklist tracks token and creator addresses that must never be
// traded. The list is persisted to a JSON file and rewritten on every
// mutation so bans survive restarts.
package blacklist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Entry records one banned address and why it was banned.
type Entry struct {
	Address string    `json:"address"`
	Reason  string    `json:"reason"`
	AddedAt time.Time `json:"added_at"`
}

type fileFormat struct {
	Tokens   []Entry `json:"tokens"`
	Creators []Entry `json:"creators"`
}

// Blacklist is a persistent set of banned token mints and creator wallets.
type Blacklist struct {
	mu       sync.RWMutex
	path     string
	tokens   map[string]Entry
	creators map[string]Entry
	logger   zerolog.Logger
}

// Load opens (or initializes) the blacklist backed by the given file path.
// A missing file yields an empty blacklist; a corrupt file is an error.
func Load(path string, logger zerolog.Logger) (*Blacklist, error) {
	b := &Blacklist{
		path:     path,
		tokens:   make(map[string]Entry),
		creators: make(map[string]Entry),
		logger:   logger.With().Str("component", "Blacklist").Logger(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, fmt.Errorf("read blacklist file: %w", err)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse blacklist file: %w", err)
	}
	for _, e := range ff.Tokens {
		b.tokens[e.Address] = e
	}
	for _, e := range ff.Creators {
		b.creators[e.Address] = e
	}

	b.logger.Info().Int("tokens", len(b.tokens)).Int("creators", len(b.creators)).Msg("blacklist loaded")
	return b, nil
}

// BanToken adds a token mint to the blacklist and persists the change.
func (b *Blacklist) BanToken(address, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens[address] = Entry{Address: address, Reason: reason, AddedAt: time.Now()}
	b.logger.Warn().Str("address", address).Str("reason", reason).Msg("token blacklisted")
	return b.saveLocked()
}

// BanCreator adds a creator wallet to the blacklist and persists the change.
// Every token minted by a banned creator is treated as banned.
func (b *Blacklist) BanCreator(address, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.creators[address] = Entry{Address: address, Reason: reason, AddedAt: time.Now()}
	b.logger.Warn().Str("address", address).Str("reason", reason).Msg("creator blacklisted")
	return b.saveLocked()
}

// Unban removes an address from both sets and persists the change.
func (b *Blacklist) Unban(address string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.tokens, address)
	delete(b.creators, address)
	return b.saveLocked()
}

// IsTokenBanned reports whether a token mint is blacklisted.
func (b *Blacklist) IsTokenBanned(address string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.tokens[address]
	return ok
}

// IsCreatorBanned reports whether a creator wallet is blacklisted.
func (b *Blacklist) IsCreatorBanned(address string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.creators[address]
	return ok
}

// IsBanned reports whether a token should be rejected, considering both the
// mint itself and its creator (creator may be empty when unknown).
func (b *Blacklist) IsBanned(tokenAddress, creatorAddress string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.tokens[tokenAddress]; ok {
		return true
	}
	if creatorAddress != "" {
		if _, ok := b.creators[creatorAddress]; ok {
			return true
		}
	}
	return false
}

// Tokens returns all banned token entries sorted by address.
func (b *Blacklist) Tokens() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedEntries(b.tokens)
}

// Creators returns all banned creator entries sorted by address.
func (b *Blacklist) Creators() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedEntries(b.creators)
}

func sortedEntries(m map[string]Entry) []Entry {
	out := make([]Entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// saveLocked rewrites the backing file. Caller holds b.mu.
func (b *Blacklist) saveLocked() error {
	ff := fileFormat{
		Tokens:   sortedEntries(b.tokens),
		Creators: sortedEntries(b.creators),
	}
	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal blacklist: %w", err)
	}

	if dir := filepath.Dir(b.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create blacklist dir: %w", err)
		}
	}
	if err := os.WriteFile(b.path, data, 0o644); err != nil {
		return fmt.Errorf("write blacklist file: %w", err)
	}
	return nil
}

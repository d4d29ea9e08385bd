// Copyright (c) 2016-2017 Daniel Oaks <daniel@danieloaks.net>
// released under the MIT license

package irc

import (
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/cartisim/relayd/irc/kv"
	"github.com/cartisim/relayd/irc/logger"
	"github.com/cartisim/relayd/irc/modes"
	"github.com/cartisim/relayd/irc/names"
)

// this is exclusively the *persistence* layer for channel registration;
// channel creation and membership live in servercontext.go

const (
	keyChannelPrefix = "channel."
)

// RegisteredChannel is the stored form of a channel.
type RegisteredChannel struct {
	Name         string    `json:"name"`
	Welcome      string    `json:"welcome,omitempty"`
	Modes        string    `json:"modes"`
	Operators    []string  `json:"operators,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

func channelKey(name names.ChannelName) string {
	return keyChannelPrefix + name.Folded()
}

type ChannelRegistry struct {
	// serializes (read channel state, synchronously persist it)
	sync.Mutex
	server *Server
}

func NewChannelRegistry(server *Server) *ChannelRegistry {
	return &ChannelRegistry{
		server: server,
	}
}

func exportRegistration(info ChannelInfo) RegisteredChannel {
	result := RegisteredChannel{
		Name:         info.Name.String(),
		Welcome:      info.Welcome,
		Modes:        info.Modes.String(),
		RegisteredAt: info.Created.UTC(),
	}
	for _, op := range info.Operators {
		result.Operators = append(result.Operators, op.String())
	}
	return result
}

// StoreChannel persists a snapshot of a registered channel.
func (reg *ChannelRegistry) StoreChannel(info ChannelInfo) error {
	if !info.Registered {
		return nil
	}
	store := reg.server.store
	if store == nil {
		return nil
	}

	reg.Lock()
	defer reg.Unlock()

	encoded, err := json.Marshal(exportRegistration(info))
	if err != nil {
		return err
	}
	return store.Update(func(tx kv.Tx) error {
		_, _, err := tx.Set(channelKey(info.Name), string(encoded))
		return err
	})
}

// DeleteChannel removes a channel from the store; deleting an unknown
// channel is not an error.
func (reg *ChannelRegistry) DeleteChannel(name names.ChannelName) error {
	store := reg.server.store
	if store == nil {
		return nil
	}

	reg.Lock()
	defer reg.Unlock()

	err := store.Update(func(tx kv.Tx) error {
		_, err := tx.Delete(channelKey(name))
		return err
	})
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	return err
}

// AllChannels returns every stored channel, in key order. Records that
// cannot be decoded are logged and skipped.
func (reg *ChannelRegistry) AllChannels() (result []RegisteredChannel, err error) {
	store := reg.server.store
	if store == nil {
		return nil, nil
	}
	err = store.View(func(tx kv.Tx) error {
		return tx.AscendKeys(keyChannelPrefix+"*", func(key, value string) bool {
			var channel RegisteredChannel
			if err := json.Unmarshal([]byte(value), &channel); err != nil {
				reg.server.logger.Error(logger.TypeDatastore, "corrupt channel record", key, err.Error())
			} else {
				result = append(result, channel)
			}
			return true
		})
	})
	return
}

// loadChannels recreates every stored channel in the server context.
func (server *Server) loadChannels() error {
	channels, err := server.channelRegistry.AllChannels()
	if err != nil {
		return err
	}
	loaded := 0
	for _, stored := range channels {
		name, err := names.NewChannelName(stored.Name)
		if err != nil {
			server.logger.Warning(logger.TypeDatastore, "ignoring stored channel with invalid name", stored.Name)
			continue
		}
		channelModes, err := modes.ParseChannelModes(stored.Modes)
		if err != nil {
			server.logger.Warning(logger.TypeDatastore, "ignoring unknown modes on stored channel", stored.Name, err.Error())
		}
		var operators []names.DMIdentifier
		for _, op := range stored.Operators {
			if id, err := names.NewDMIdentifier(op); err == nil {
				operators = append(operators, id)
			}
		}
		if server.context.AddChannel(name, stored.Welcome, channelModes, operators, true) {
			loaded++
		}
	}
	if loaded != 0 {
		server.logger.Info(logger.TypeDatastore, "loaded registered channels", strconv.Itoa(loaded))
	}
	return nil
}

// storeChannel persists info, logging failures.
func (server *Server) storeChannel(info ChannelInfo) {
	if err := server.channelRegistry.StoreChannel(info); err != nil {
		server.logger.Error(logger.TypeDatastore, "could not store channel", info.Name.String(), err.Error())
	}
}

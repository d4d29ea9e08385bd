// Copyright (c) 2017 Daniel Oaks <daniel@danieloaks.net>
// released under the MIT license

package caps

import "errors"

// Capability represents an optional feature that a client may request from the server.
type Capability uint

const (
	// UserhostInNames renders NAMES entries as full nick!user@host.
	UserhostInNames Capability = iota
	// MultiPrefix renders every membership prefix in NAMES, not just the highest.
	MultiPrefix
	// ServerTime adds a time tag to messages on raw IRC line connections.
	ServerTime
	// RelayNotify reports relay failures to the sending session as NOTICEs.
	RelayNotify

	numCapabs
)

var (
	ErrUnknownCapability = errors.New("unknown capability")

	capabNames = [numCapabs]string{
		UserhostInNames: "userhost-in-names",
		MultiPrefix:     "multi-prefix",
		ServerTime:      "server-time",
		RelayNotify:     "cartisim.com/relay-notify",
	}

	nameToCapab = func() map[string]Capability {
		result := make(map[string]Capability, numCapabs)
		for i, name := range capabNames {
			result[name] = Capability(i)
		}
		return result
	}()
)

// Name returns the name of the given capability.
func (capability Capability) Name() string {
	if capability >= numCapabs {
		return ""
	}
	return capabNames[capability]
}

// NameToCapability looks up a capability by its wire name.
func NameToCapability(name string) (Capability, error) {
	if capab, ok := nameToCapab[name]; ok {
		return capab, nil
	}
	return 0, ErrUnknownCapability
}

// Version is used to select which max version of CAP the client supports.
type Version uint

const (
	// Cap301 refers to the base CAP spec.
	Cap301 Version = 301
	// Cap302 refers to the IRCv3.2 CAP spec.
	Cap302 Version = 302
)

// State shows whether we're negotiating caps, finished, etc for connection registration.
type State uint

const (
	// NoneState means CAP hasn't been negotiated at all.
	NoneState State = iota
	// NegotiatingState means CAP is being negotiated and registration should be paused.
	NegotiatingState
	// NegotiatedState means CAP negotiation has been successfully ended and reg should complete.
	NegotiatedState
)

// Copyright (c) 2012-2014 Jeremy Latt
// Copyright (c) 2014-2015 Edmund Huber
// Copyright (c) 2016-2017 Daniel Oaks <daniel@danieloaks.net>
// released under the MIT license

package irc

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/BurntSushi/toml"
	"github.com/ergochat/irc-go/ircutils"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/cartisim/relayd/irc/isupport"
	"github.com/cartisim/relayd/irc/kv"
	"github.com/cartisim/relayd/irc/logger"
	"github.com/cartisim/relayd/irc/modes"
	"github.com/cartisim/relayd/irc/names"
	"github.com/cartisim/relayd/irc/utils"
)

// here's how this works: exported (capitalized) members of the config structs
// are defined in the YAML (or TOML) file and deserialized directly from there.
// They may be postprocessed and overwritten by LoadConfig. Unexported
// (lowercase) members are derived from the exported members in LoadConfig.

const (
	envPrefix = "RELAYD__"

	defaultMaxSendQ            = "96k"
	defaultMaxReadQ            = "16k"
	defaultRegistrationTimeout = time.Minute
	defaultIdleTimeout         = time.Minute + 30*time.Second
	defaultPingTimeout         = time.Minute
)

// TLSListenConfig defines configuration options for listening on TLS.
type TLSListenConfig struct {
	Cert string
	Key  string
}

// Config returns the TLS configuration associated with this TLSListenConfig.
func (conf *TLSListenConfig) Config() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(conf.Cert, conf.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertKeyPair, err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
	}, nil
}

// ListenerConfigBlock is one entry of server.listeners, keyed by address.
type ListenerConfigBlock struct {
	// a nil TLS block means plaintext
	TLS       *TLSListenConfig
	WebSocket bool
	IRCLines  bool `yaml:"irc-lines" toml:"irc-lines"`
}

// listenerConfig is the processed form of a ListenerConfigBlock.
type listenerConfig struct {
	TLSConfig *tls.Config
	WebSocket bool
	IRCLines  bool
}

func (conf listenerConfig) codec() LineCodec {
	if conf.IRCLines {
		return IRCLineCodec{}
	}
	return JSONCodec{}
}

// DefaultChannelConfig describes a channel that exists from startup.
type DefaultChannelConfig struct {
	Name    string `validate:"required"`
	Welcome string
	Modes   string
}

type ServerConfig struct {
	Name      string
	Listeners map[string]ListenerConfigBlock
	// listeners is the processed form of Listeners, keyed by address
	listeners                  map[string]listenerConfig
	Password                   string
	MOTD                       string
	MaxSendQString             string `yaml:"max-sendq" toml:"max-sendq"`
	MaxSendQBytes              int    `yaml:"-" toml:"-"`
	MaxReadQString             string `yaml:"max-readq" toml:"max-readq"`
	MaxReadQBytes              int    `yaml:"-" toml:"-"`
	CheckIdent                 bool   `yaml:"check-ident" toml:"check-ident"`
	WatchConfig                bool   `yaml:"watch-config" toml:"watch-config"`
	ForbidConfusableIdentities bool   `yaml:"forbid-confusable-identities" toml:"forbid-confusable-identities"`
	Timeouts                   struct {
		Registration time.Duration `validate:"min=0"`
		// silence before we send PING
		Idle time.Duration `validate:"min=0"`
		// silence after PING before we disconnect
		Ping time.Duration `validate:"min=0"`
	}
}

func (conf *ServerConfig) passwordRequired() bool {
	return conf.Password != ""
}

// Config defines the overall configuration.
type Config struct {
	Network struct {
		Name string
	}

	Server ServerConfig

	API struct {
		Enabled        bool
		Listener       string   `validate:"required_if=Enabled true"`
		BearerTokens   []string `yaml:"bearer-tokens" toml:"bearer-tokens"`
		generatedToken string
	}

	Channels struct {
		Defaults     []DefaultChannelConfig `validate:"dive"`
		DefaultModes *string                `yaml:"default-modes" toml:"default-modes"`
		defaultModes modes.ChannelModeSet
		AutoJoin     bool `yaml:"auto-join" toml:"auto-join"`
		Persist      bool
		defaultNames []names.ChannelName
	}

	Datastore struct {
		Path   string
		Driver string         `validate:"omitempty,oneof=buntdb mysql"`
		MySQL  kv.MySQLConfig `yaml:"mysql" toml:"mysql"`
	}

	Relay struct {
		Enabled      bool
		BaseURL      string        `yaml:"base-url" toml:"base-url" validate:"omitempty,url"`
		Timeout      time.Duration `validate:"min=0"`
		SharedSecret string        `yaml:"shared-secret" toml:"shared-secret"`
		FetchKeys    bool          `yaml:"fetch-keys" toml:"fetch-keys"`
		TLS          *TLSListenConfig
		tlsConfig    *tls.Config
		ExpiryLeeway time.Duration `yaml:"expiry-leeway" toml:"expiry-leeway" validate:"min=0"`
		UserAgent    string        `yaml:"user-agent" toml:"user-agent"`
		// fixed at startup
		MaxConcurrentRequests int `yaml:"max-concurrent-requests" toml:"max-concurrent-requests" validate:"min=0"`
	}

	Logging []logger.LoggingConfig

	isupport *isupport.List

	Debug struct {
		RecoverFromErrors *bool `yaml:"recover-from-errors" toml:"recover-from-errors"`
		recoverFromErrors bool
	}

	Filename string `yaml:"-" toml:"-"`
}

type configPathError struct {
	name   string
	desc   string
	fmtErr error
}

func (cpe *configPathError) Error() string {
	if cpe.fmtErr != nil {
		return fmt.Sprintf("%s: %s: %v", cpe.name, cpe.desc, cpe.fmtErr)
	}
	return fmt.Sprintf("%s: %s", cpe.name, cpe.desc)
}

func isExported(field reflect.StructField) bool {
	return field.PkgPath == ""
}

func yamlName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
	return name
}

// mungeFromEnvironment applies one `RELAYD__SECTION__KEY=value` pair to
// config; the value is parsed as YAML. applied is false for variables
// without the prefix.
func mungeFromEnvironment(config *Config, envPair string) (applied bool, name string, err error) {
	equalIdx := strings.IndexByte(envPair, '=')
	if equalIdx < 0 {
		return false, "", nil
	}
	name, value := envPair[:equalIdx], envPair[equalIdx+1:]
	if !strings.HasPrefix(name, envPrefix) {
		return false, "", nil
	}
	name = strings.TrimPrefix(name, envPrefix)

	pathComponents := strings.Split(name, "__")
	for i, pathComponent := range pathComponents {
		if pathComponent == "" {
			return false, "", &configPathError{name, "invalid", nil}
		}
		pathComponents[i] = strings.ToLower(strings.ReplaceAll(pathComponent, "_", "-"))
	}

	v := reflect.Indirect(reflect.ValueOf(config))
	t := v.Type()
	for _, component := range pathComponents {
		if v.Kind() != reflect.Struct {
			return false, "", &configPathError{name, "index into non-struct", nil}
		}
		var nextField reflect.StructField
		success := false
		n := t.NumField()
		// preferentially get a field with an exact yaml tag match,
		// then fall back to case-insensitive comparison of field names
		for i := 0; i < n; i++ {
			field := t.Field(i)
			if isExported(field) && yamlName(field) == component {
				nextField = field
				success = true
				break
			}
		}
		if !success {
			for i := 0; i < n; i++ {
				field := t.Field(i)
				if isExported(field) && yamlName(field) != "-" && strings.ToLower(field.Name) == component {
					nextField = field
					success = true
					break
				}
			}
		}
		if !success {
			return false, "", &configPathError{name, fmt.Sprintf("couldn't resolve path component: `%s`", component), nil}
		}
		v = v.FieldByName(nextField.Name)
		// dereference pointer field if necessary, initialize new value if necessary
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = reflect.Indirect(v)
		}
		t = v.Type()
	}
	yamlErr := yaml.Unmarshal([]byte(value), v.Addr().Interface())
	if yamlErr != nil {
		return false, "", &configPathError{name, "couldn't deserialize YAML", yamlErr}
	}
	return true, name, nil
}

// environmentOverrides returns the override pairs to apply, in order: first
// those from a .env file next to the config file, then the process
// environment, so that the latter wins.
func environmentOverrides(configDir string) (result []string, err error) {
	dotenv, err := godotenv.Read(filepath.Join(configDir, ".env"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	keys := make([]string, 0, len(dotenv))
	for key := range dotenv {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		result = append(result, key+"="+dotenv[key])
	}
	return append(result, os.Environ()...), nil
}

func parseConfig(filename string, data []byte) (config *Config, err error) {
	config = new(Config)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		_, err = toml.Decode(string(data), config)
	default:
		err = yaml.Unmarshal(data, config)
	}
	if err != nil {
		return nil, err
	}
	return config, nil
}

// LoadRawConfig loads a configuration file and applies environment
// overrides, without validating it or deriving any fields.
func LoadRawConfig(filename string) (config *Config, err error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config, err = parseConfig(filename, data)
	if err != nil {
		return nil, err
	}
	config.Filename = filename

	overrides, err := environmentOverrides(filepath.Dir(filename))
	if err != nil {
		return nil, fmt.Errorf("couldn't read .env file: %w", err)
	}
	for _, envPair := range overrides {
		applied, name, envErr := mungeFromEnvironment(config, envPair)
		if envErr != nil {
			return nil, envErr
		} else if applied {
			log.Printf("applied environment override: %s\n", name)
		}
	}
	return config, nil
}

// LoadConfig loads the given YAML or TOML configuration file.
func LoadConfig(filename string) (config *Config, err error) {
	config, err = LoadRawConfig(filename)
	if err != nil {
		return nil, err
	}
	if err = config.postprocess(); err != nil {
		return nil, err
	}
	return config, nil
}

// postprocess validates config and fills in the derived fields.
func (config *Config) postprocess() (err error) {
	if config.Network.Name == "" {
		return ErrNetworkNameMissing
	}
	if config.Server.Name == "" {
		return ErrServerNameMissing
	} else if !ircutils.HostnameIsValid(config.Server.Name) {
		return ErrServerNameNotHostname
	}
	if len(config.Server.Listeners) == 0 {
		return ErrNoListenersDefined
	}
	if config.Relay.Enabled && config.Relay.BaseURL == "" {
		return ErrRelayBaseURLMissing
	}
	if config.Datastore.Driver != datastoreMySQL && config.Datastore.Path == "" {
		return ErrDatastorePathMissing
	}

	if err = validator.New().Struct(config); err != nil {
		return err
	}

	config.Server.listeners = make(map[string]listenerConfig, len(config.Server.Listeners))
	for addr, block := range config.Server.Listeners {
		var lconf listenerConfig
		if block.TLS != nil {
			lconf.TLSConfig, err = block.TLS.Config()
			if err != nil {
				return fmt.Errorf("listener %s: %w", addr, err)
			}
		}
		if block.WebSocket && block.IRCLines {
			return fmt.Errorf("listener %s: websocket and irc-lines are mutually exclusive", addr)
		}
		lconf.WebSocket = block.WebSocket
		lconf.IRCLines = block.IRCLines
		config.Server.listeners[addr] = lconf
	}

	if config.Server.MaxSendQString == "" {
		config.Server.MaxSendQString = defaultMaxSendQ
	}
	maxSendQBytes, err := bytefmt.ToBytes(config.Server.MaxSendQString)
	if err != nil {
		return fmt.Errorf("Could not parse maximum SendQ size (make sure it only contains whole numbers): %s", err.Error())
	}
	config.Server.MaxSendQBytes = int(maxSendQBytes)

	if config.Server.MaxReadQString == "" {
		config.Server.MaxReadQString = defaultMaxReadQ
	}
	maxReadQBytes, err := bytefmt.ToBytes(config.Server.MaxReadQString)
	if err != nil {
		return fmt.Errorf("Could not parse maximum ReadQ size (make sure it only contains whole numbers): %s", err.Error())
	}
	config.Server.MaxReadQBytes = int(maxReadQBytes)

	if config.Server.Timeouts.Registration == 0 {
		config.Server.Timeouts.Registration = defaultRegistrationTimeout
	}
	if config.Server.Timeouts.Idle == 0 {
		config.Server.Timeouts.Idle = defaultIdleTimeout
	}
	if config.Server.Timeouts.Ping == 0 {
		config.Server.Timeouts.Ping = defaultPingTimeout
	}

	for _, token := range config.API.BearerTokens {
		if token == "" {
			return errors.New("api bearer tokens must be nonempty")
		}
	}
	if config.API.Enabled && len(config.API.BearerTokens) == 0 {
		config.API.generatedToken = utils.GenerateSecretToken()
		config.API.BearerTokens = []string{config.API.generatedToken}
	}

	config.Channels.defaultModes = modes.DefaultChannelModes
	if config.Channels.DefaultModes != nil {
		config.Channels.defaultModes, err = modes.ParseChannelModes(strings.TrimPrefix(*config.Channels.DefaultModes, "+"))
		if err != nil {
			return fmt.Errorf("channels.default-modes: %w", err)
		}
	}
	config.Channels.defaultNames = nil
	for _, channel := range config.Channels.Defaults {
		name, err := names.NewChannelName(channel.Name)
		if err != nil {
			return fmt.Errorf("channels.defaults: %s: %w", channel.Name, err)
		}
		if _, err := modes.ParseChannelModes(strings.TrimPrefix(channel.Modes, "+")); err != nil {
			return fmt.Errorf("channels.defaults: %s: %w", channel.Name, err)
		}
		config.Channels.defaultNames = append(config.Channels.defaultNames, name)
	}

	if config.Relay.TLS != nil {
		config.Relay.tlsConfig, err = config.Relay.TLS.Config()
		if err != nil {
			return fmt.Errorf("relay client certificate: %w", err)
		}
	}

	for i := range config.Logging {
		if err = config.Logging[i].Resolve(); err != nil {
			return err
		}
	}

	if err = config.generateISupport(); err != nil {
		return err
	}

	config.Debug.recoverFromErrors = true
	if config.Debug.RecoverFromErrors != nil {
		config.Debug.recoverFromErrors = *config.Debug.RecoverFromErrors
	}

	return nil
}

// channelModes returns the parsed modes of a configured default channel,
// falling back to channels.default-modes.
func (config *Config) channelModes(channel DefaultChannelConfig) modes.ChannelModeSet {
	if channel.Modes == "" {
		return config.Channels.defaultModes
	}
	result, _ := modes.ParseChannelModes(strings.TrimPrefix(channel.Modes, "+"))
	return result
}

// Copyright (c) 2017 Daniel Oaks <daniel@danieloaks.net>
// released under the MIT license

package logger

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents the level to log messages at.
type Level int

const (
	// LogDebug represents debug messages.
	LogDebug Level = iota
	// LogInfo represents informational messages.
	LogInfo
	// LogWarning represents warnings.
	LogWarning
	// LogError represents errors.
	LogError
)

// Log types used by the server. Sinks select them by name; "*" selects all.
const (
	TypeServer     = "server"
	TypeConnect    = "connect"
	TypeSession    = "session"
	TypeRelay      = "relay"
	TypeRegistry   = "registry"
	TypeListeners  = "listeners"
	TypeRehash     = "rehash"
	TypeInternal   = "internal"
	TypeUserInput  = "userinput"
	TypeUserOutput = "useroutput"
	TypeAdmin      = "admin"
	TypeDatastore  = "datastore"
)

var (
	// LogLevelNames takes a config name and gives the real log level.
	LogLevelNames = map[string]Level{
		"debug":    LogDebug,
		"info":     LogInfo,
		"warn":     LogWarning,
		"warning":  LogWarning,
		"warnings": LogWarning,
		"error":    LogError,
		"errors":   LogError,
	}
	// LogLevelDisplayNames gives the display name to use for our log levels.
	LogLevelDisplayNames = map[Level]string{
		LogDebug:   "debug",
		LogInfo:    "info",
		LogWarning: "warn",
		LogError:   "error",
	}

	// older names that may still appear in configs
	typeAliases = map[string]string{
		"localconnect": TypeConnect,
		"relay-client": TypeRelay,
		"db":           TypeDatastore,
	}
)

func resolveTypeAlias(typeName string) (result string) {
	if canonicalized, ok := typeAliases[typeName]; ok {
		return canonicalized
	}
	return typeName
}

// Manager is the main interface used to log debug/info/error messages.
type Manager struct {
	configMutex     sync.RWMutex
	loggers         []singleLogger
	stdoutWriteLock sync.Mutex // use one lock for both stdout and stderr
	fileWriteLock   sync.Mutex
	loggingRawIO    atomic.Uint32
}

// LoggingConfig represents the configuration of a single logger.
type LoggingConfig struct {
	Method        string
	MethodStdout  bool     `yaml:"-" toml:"-"`
	MethodStderr  bool     `yaml:"-" toml:"-"`
	MethodFile    bool     `yaml:"-" toml:"-"`
	Filename      string   `yaml:"filename" toml:"filename"`
	TypeString    string   `yaml:"type" toml:"type"`
	Types         []string `yaml:"-" toml:"-"`
	ExcludedTypes []string `yaml:"-" toml:"-"`
	LevelString   string   `yaml:"level" toml:"level"`
	Level         Level    `yaml:"-" toml:"-"`
	// Writer, when set, receives output in addition to the configured methods
	Writer io.Writer `yaml:"-" toml:"-"`
}

// Resolve fills in the derived fields from Method, TypeString and LevelString.
func (config *LoggingConfig) Resolve() error {
	config.MethodStdout, config.MethodStderr, config.MethodFile = false, false, false
	for _, method := range strings.Fields(config.Method) {
		switch method {
		case "stdout":
			config.MethodStdout = true
		case "stderr":
			config.MethodStderr = true
		case "file":
			config.MethodFile = true
		case "none":
		default:
			return fmt.Errorf("unknown logging method: %s", method)
		}
	}
	if config.MethodFile && config.Filename == "" {
		return fmt.Errorf("logging method file requires a filename")
	}

	levelName := strings.ToLower(config.LevelString)
	if levelName == "" {
		levelName = "info"
	}
	level, ok := LogLevelNames[levelName]
	if !ok {
		return fmt.Errorf("unknown logging level: %s", config.LevelString)
	}
	config.Level = level

	config.Types, config.ExcludedTypes = nil, nil
	typeString := config.TypeString
	if typeString == "" {
		typeString = "*"
	}
	for _, typeName := range strings.Fields(typeString) {
		if strings.HasPrefix(typeName, "-") {
			config.ExcludedTypes = append(config.ExcludedTypes, typeName[1:])
		} else {
			config.Types = append(config.Types, typeName)
		}
	}
	if len(config.Types) == 0 {
		return fmt.Errorf("logger has no types to log")
	}
	return nil
}

// NewManager returns a new log manager.
func NewManager(config []LoggingConfig) (*Manager, error) {
	var logger Manager

	if err := logger.ApplyConfig(config); err != nil {
		return nil, err
	}

	return &logger, nil
}

// ApplyConfig applies the given config to this logger (rehashes the config, in other words).
func (logger *Manager) ApplyConfig(config []LoggingConfig) error {
	logger.configMutex.Lock()
	defer logger.configMutex.Unlock()

	for _, logger := range logger.loggers {
		logger.Close()
	}

	logger.loggers = nil
	logger.loggingRawIO.Store(0)

	var lastErr error
	for _, logConfig := range config {
		typeMap := make(map[string]bool)
		for _, name := range logConfig.Types {
			typeMap[resolveTypeAlias(name)] = true
		}
		excludedTypeMap := make(map[string]bool)
		for _, name := range logConfig.ExcludedTypes {
			excludedTypeMap[resolveTypeAlias(name)] = true
		}

		sLogger := singleLogger{
			MethodSTDOUT: logConfig.MethodStdout,
			MethodSTDERR: logConfig.MethodStderr,
			MethodFile: fileMethod{
				Enabled:  logConfig.MethodFile,
				Filename: logConfig.Filename,
			},
			Writer:          logConfig.Writer,
			Level:           logConfig.Level,
			Types:           typeMap,
			ExcludedTypes:   excludedTypeMap,
			stdoutWriteLock: &logger.stdoutWriteLock,
			fileWriteLock:   &logger.fileWriteLock,
		}
		ioEnabled := typeMap[TypeUserInput] || typeMap[TypeUserOutput] || (typeMap["*"] && !(excludedTypeMap[TypeUserInput] && excludedTypeMap[TypeUserOutput]))
		// raw I/O is only logged at level debug
		if ioEnabled && logConfig.Level == LogDebug {
			logger.loggingRawIO.Store(1)
		}
		if sLogger.MethodFile.Enabled {
			file, err := os.OpenFile(sLogger.MethodFile.Filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
			if err != nil {
				lastErr = fmt.Errorf("Could not open log file %s [%s]", sLogger.MethodFile.Filename, err.Error())
				sLogger.MethodFile.Enabled = false
			} else {
				sLogger.MethodFile.File = file
				sLogger.MethodFile.Writer = bufio.NewWriter(file)
			}
		}
		logger.loggers = append(logger.loggers, sLogger)
	}

	return lastErr
}

// Close flushes and closes every file sink.
func (logger *Manager) Close() {
	logger.configMutex.Lock()
	defer logger.configMutex.Unlock()
	for _, sLogger := range logger.loggers {
		sLogger.Close()
	}
	logger.loggers = nil
}

// IsLoggingRawIO returns true if raw user input and output is being logged.
func (logger *Manager) IsLoggingRawIO() bool {
	return logger.loggingRawIO.Load() == 1
}

// Log logs the given message with the given details.
func (logger *Manager) Log(level Level, logType string, messageParts ...string) {
	logger.configMutex.RLock()
	defer logger.configMutex.RUnlock()

	for i := range logger.loggers {
		logger.loggers[i].Log(level, logType, messageParts...)
	}
}

// Debug logs the given message as a debug message.
func (logger *Manager) Debug(logType string, messageParts ...string) {
	logger.Log(LogDebug, logType, messageParts...)
}

// Info logs the given message as an info message.
func (logger *Manager) Info(logType string, messageParts ...string) {
	logger.Log(LogInfo, logType, messageParts...)
}

// Warning logs the given message as a warning message.
func (logger *Manager) Warning(logType string, messageParts ...string) {
	logger.Log(LogWarning, logType, messageParts...)
}

// Error logs the given message as an error message.
func (logger *Manager) Error(logType string, messageParts ...string) {
	logger.Log(LogError, logType, messageParts...)
}

type fileMethod struct {
	Enabled  bool
	Filename string
	File     *os.File
	Writer   *bufio.Writer
}

// singleLogger represents a single logger instance.
type singleLogger struct {
	stdoutWriteLock *sync.Mutex
	fileWriteLock   *sync.Mutex
	MethodSTDOUT    bool
	MethodSTDERR    bool
	MethodFile      fileMethod
	Writer          io.Writer
	Level           Level
	Types           map[string]bool
	ExcludedTypes   map[string]bool
}

func (logger *singleLogger) Close() error {
	if logger.MethodFile.Enabled {
		flushErr := logger.MethodFile.Writer.Flush()
		closeErr := logger.MethodFile.File.Close()
		if flushErr != nil {
			return flushErr
		}
		return closeErr
	}
	return nil
}

// Log logs the given message with the given details.
func (logger *singleLogger) Log(level Level, logType string, messageParts ...string) {
	// no logging enabled
	if !(logger.MethodSTDOUT || logger.MethodSTDERR || logger.MethodFile.Enabled || logger.Writer != nil) {
		return
	}

	// ensure we're logging to the given level
	if level < logger.Level {
		return
	}

	// ensure we're capturing this logType
	capturing := (logger.Types["*"] || logger.Types[logType]) && !logger.ExcludedTypes["*"] && !logger.ExcludedTypes[logType]
	if !capturing {
		return
	}

	// assemble full line

	var rawBuf bytes.Buffer
	// 10 is len("useroutput"), the longest type name; longer ones just misalign
	fmt.Fprintf(&rawBuf, "%s : %-5s : %-10s : ", time.Now().UTC().Format("2006-01-02T15:04:05.000Z"), LogLevelDisplayNames[level], logType)
	for i, p := range messageParts {
		rawBuf.WriteString(p)

		if i != len(messageParts)-1 {
			rawBuf.WriteString(" : ")
		}
	}
	rawBuf.WriteRune('\n')

	// output
	if logger.MethodSTDOUT {
		logger.stdoutWriteLock.Lock()
		os.Stdout.Write(rawBuf.Bytes())
		logger.stdoutWriteLock.Unlock()
	}
	if logger.MethodSTDERR {
		logger.stdoutWriteLock.Lock()
		os.Stderr.Write(rawBuf.Bytes())
		logger.stdoutWriteLock.Unlock()
	}
	if logger.Writer != nil {
		logger.stdoutWriteLock.Lock()
		logger.Writer.Write(rawBuf.Bytes())
		logger.stdoutWriteLock.Unlock()
	}
	if logger.MethodFile.Enabled {
		logger.fileWriteLock.Lock()
		logger.MethodFile.Writer.Write(rawBuf.Bytes())
		logger.MethodFile.Writer.Flush()
		logger.fileWriteLock.Unlock()
	}
}

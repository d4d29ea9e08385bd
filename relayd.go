// Copyright (c) 2012-2014 Jeremy Latt
// Copyright (c) 2014-2015 Edmund Huber
// Copyright (c) 2016-2017 Daniel Oaks <daniel@danieloaks.net>
// released under the MIT license

package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/docopt/docopt-go"

	"github.com/cartisim/relayd/irc"
	"github.com/cartisim/relayd/irc/logger"
	"github.com/cartisim/relayd/irc/mkcerts"
)

// set via linker flags, either by make or by goreleaser:
var commit = ""  // git hash
var version = "" // tagged version

// get a password from stdin from the user
func getPasswordFromTerminal() string {
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		log.Fatal("Error reading password:", err.Error())
	}
	return string(bytePassword)
}

func fileDoesNotExist(file string) bool {
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return true
	}
	return false
}

func makeCert(host, cert, key string, usage mkcerts.Usage, quiet bool) {
	if !(fileDoesNotExist(cert) && fileDoesNotExist(key)) {
		log.Fatalf("Preexisting TLS cert and/or key files: %s %s", cert, key)
	}
	err := mkcerts.CreateCert("relayd", host, usage, cert, key)
	if err != nil {
		log.Fatal("  Could not create certificate:", err.Error())
	}
	if !quiet {
		log.Printf("  Certificate created at %s : %s\n", cert, key)
	}
}

// implements the `relayd mkcerts` command
func doMkcerts(configFile string, quiet bool) {
	config, err := irc.LoadRawConfig(configFile)
	if err != nil {
		log.Fatal(err)
	}
	if !quiet {
		log.Println("making self-signed certificates")
	}

	certToKey := make(map[string]string)
	for name, conf := range config.Server.Listeners {
		if conf.TLS == nil || conf.TLS.Cert == "" {
			continue
		}
		existingKey, ok := certToKey[conf.TLS.Cert]
		if ok {
			if existingKey == conf.TLS.Key {
				continue
			} else {
				log.Fatal("Conflicting TLS key files for ", conf.TLS.Cert)
			}
		}
		if !quiet {
			log.Printf(" making cert for %s listener\n", name)
		}
		makeCert(config.Server.Name, conf.TLS.Cert, conf.TLS.Key, mkcerts.ServerUsage, quiet)
		certToKey[conf.TLS.Cert] = conf.TLS.Key
	}

	if relayTLS := config.Relay.TLS; relayTLS != nil && relayTLS.Cert != "" {
		if _, ok := certToKey[relayTLS.Cert]; !ok {
			if !quiet {
				log.Println(" making relay client cert")
			}
			makeCert(config.Server.Name, relayTLS.Cert, relayTLS.Key, mkcerts.ClientUsage, quiet)
		}
	}
}

// implements the `relayd genpasswd` command
func doGenpasswd() {
	var password string
	if term.IsTerminal(int(syscall.Stdin)) {
		fmt.Print("Enter Password: ")
		password = getPasswordFromTerminal()
		fmt.Print("\n")
		fmt.Print("Reenter Password: ")
		confirm := getPasswordFromTerminal()
		fmt.Print("\n")
		if confirm != password {
			log.Fatal("passwords do not match")
		}
	} else {
		reader := bufio.NewReader(os.Stdin)
		text, _ := reader.ReadString('\n')
		password = strings.TrimSpace(text)
	}
	hash, err := irc.GenerateEncodedPassword(password, bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("encoding error:", err.Error())
	}
	fmt.Println(hash)
}

func main() {
	irc.SetVersionString(version, commit)
	usage := `relayd.
Usage:
	relayd initdb [--conf <filename>] [--quiet]
	relayd genpasswd [--conf <filename>] [--quiet]
	relayd mkcerts [--conf <filename>] [--quiet]
	relayd checkconfig [--conf <filename>] [--quiet]
	relayd run [--conf <filename>] [--quiet] [--smoke]
	relayd -h | --help
	relayd --version
Options:
	--conf <filename>  Configuration file to use [default: relayd.yaml].
	--quiet            Don't show startup/shutdown lines.
	-h --help          Show this screen.
	--version          Show version.`

	arguments, _ := docopt.ParseArgs(usage, nil, irc.Ver)

	// don't require a config file for genpasswd
	if arguments["genpasswd"].(bool) {
		doGenpasswd()
		return
	} else if arguments["mkcerts"].(bool) {
		doMkcerts(arguments["--conf"].(string), arguments["--quiet"].(bool))
		return
	}

	configfile := arguments["--conf"].(string)
	config, err := irc.LoadConfig(configfile)
	if err != nil {
		log.Fatal("Config file did not load successfully: ", err.Error())
	}

	if arguments["checkconfig"].(bool) {
		if !arguments["--quiet"].(bool) {
			log.Println("config file is valid: ", configfile)
		}
		return
	}

	logman, err := logger.NewManager(config.Logging)
	if err != nil {
		log.Fatal("Logger did not load successfully:", err.Error())
	}

	if arguments["initdb"].(bool) {
		err = irc.InitDB(config)
		if err != nil {
			log.Fatal("Error while initializing db:", err.Error())
		}
		if !arguments["--quiet"].(bool) {
			log.Println("database initialized: ", config.Datastore.Path)
		}
	} else if arguments["run"].(bool) {
		if !arguments["--quiet"].(bool) {
			logman.Info(logger.TypeServer, fmt.Sprintf("%s starting", irc.Ver))
		}

		// warning if running a non-final version
		if strings.Contains(irc.Ver, "unreleased") {
			logman.Warning(logger.TypeServer, "You are currently running an unreleased beta version of relayd that may be unstable.")
		}

		server, err := irc.NewServer(config, logman)
		if err != nil {
			logman.Error(logger.TypeServer, fmt.Sprintf("Could not load server: %s", err.Error()))
			os.Exit(1)
		}
		if !arguments["--smoke"].(bool) {
			server.Run()
		} else {
			server.Shutdown()
		}
		logman.Close()
	}
}

// MIT License
//
// Copyright (c) 2023 TTBT Enterprises LLC
// Copyright (c) 2023 Robin Thellend <rthellend@rthellend.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// bud is a TLS terminating proxy. It loads a JSON configuration, builds
// one TLS context per configured server name (falling back to a remote
// SNI pool for names it doesn't know locally), and forwards terminated
// connections to a single plaintext backend.
package main

import (
	"crypto/tls"
	"flag"
	"io"
	"log"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/budtls/bud/ctm"
	"github.com/budtls/bud/internal/backend"
	"github.com/budtls/bud/internal/httppool"
	"github.com/budtls/bud/internal/logging"
)

// Version is set with -ldflags="-X main.Version=${VERSION}"
var Version = "dev"

func main() {
	configFile := flag.String("config", "", "The config file name.")
	flag.StringVar(configFile, "c", "", "The config file name (shorthand).")
	versionFlag := flag.Bool("version", false, "Show the version.")
	flag.BoolVar(versionFlag, "v", false, "Show the version (shorthand).")
	defaultConfigFlag := flag.Bool("default-config", false, "Print the default configuration and exit.")
	daemonizeFlag := flag.Bool("daemonize", false, "Run as a daemon.")
	flag.BoolVar(daemonizeFlag, "d", false, "Run as a daemon (shorthand).")
	workerFlag := flag.Bool("worker", false, "Internal: run as a pre-forked worker.")
	flag.CommandLine.SetOutput(os.Stdout)
	flag.Parse()

	if *versionFlag {
		os.Stdout.WriteString(Version + " " + runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH + "\n")
		return
	}
	if *defaultConfigFlag {
		if err := ctm.WriteDefaultJSON(os.Stdout); err != nil {
			log.Fatalf("ERR  %v", err)
		}
		return
	}
	if *configFile == "" {
		log.Fatal("ERR  --config (or -c) must be set")
	}

	cfg, err := ctm.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("ERR  %v", err)
	}
	cfg.IsDaemon = *daemonizeFlag
	cfg.IsWorker = *workerFlag

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("ERR  logging: %v", err)
	}
	logger.Infof("bud %s %s %s/%s", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)

	var sniPool, staplingPool ctm.HTTPPool
	if cfg.SNI.Enabled {
		sniPool = httppool.New(5 * time.Second)
	}
	if cfg.Stapling.Enabled {
		staplingPool = httppool.New(5 * time.Second)
	}
	set, err := ctm.BuildContextSet(cfg, sniPool, staplingPool)
	if err != nil {
		logger.Fatalf("context set: %v", err)
	}
	logger.Infof("loaded %d TLS context(s)", set.Len())

	frontendAddr, backendAddr, err := cfg.BindAddresses()
	if err != nil {
		logger.Fatalf("bind addresses: %v", err)
	}

	tlsConfig := &tls.Config{
		GetConfigForClient: set.GetConfigForClient,
	}
	ln, err := tls.Listen("tcp", frontendAddr.String(), tlsConfig)
	if err != nil {
		logger.Fatalf("listen %s: %v", frontendAddr, err)
	}
	logger.Infof("listening on %s, backend %s", frontendAddr, backendAddr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			logger.Errorf("accept: %v", err)
			continue
		}
		go handleConn(conn, backendAddr, cfg, logger)
	}
}

// handleConn completes the TLS handshake explicitly (tls.Conn.Handshake)
// before dialing the backend, then pumps bytes between the terminated frontend connection and the
// dialed backend. This loop is deliberately minimal: the TLS context
// lifecycle it depends on (component D/E/F) is this module's subject;
// the data-plane pump itself carries none of that module's invariants.
func handleConn(conn net.Conn, backendAddr *net.TCPAddr, cfg *ctm.Config, logger *logging.Logger) {
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if ok {
		if err := tlsConn.Handshake(); err != nil {
			logger.Errorf("%s handshake: %v", conn.RemoteAddr(), err)
			return
		}
	}

	be, err := backend.Dial(backendAddr, conn.RemoteAddr(), cfg.Frontend.Proxyline, time.Duration(cfg.Backend.Keepalive)*time.Second)
	if err != nil {
		logger.Errorf("%s dial backend: %v", conn.RemoteAddr(), err)
		return
	}
	defer be.Close()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(be, conn)
		be.(interface{ CloseWrite() error }).CloseWrite()
		done <- struct{}{}
	}()
	go func() {
		io.Copy(conn, be)
		done <- struct{}{}
	}()
	<-done
	<-done
}

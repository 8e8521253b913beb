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

package ctm

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
)

// LogConfig holds the logger settings. The logger itself is an external
// collaborator (see internal/logging); this is just the config shape.
type LogConfig struct {
	Level    string
	Facility string
	Stdio    bool
	Syslog   bool
}

// HTTPPoolConfig describes one of the two helper pools (sni, stapling).
type HTTPPoolConfig struct {
	Enabled  bool
	Host     string
	Port     uint16
	QueryFmt string
}

// FrontendConfig is the frontend.* section.
type FrontendConfig struct {
	Port              uint16
	Host              string
	Proxyline         bool
	Security          string
	Ciphers           string
	ECDH              string
	NPN               []string
	Cert              string
	Key               string
	Keepalive        int
	ServerPreference bool
	SSL3             bool
	RenegWindow      int
	RenegLimit       int
	TrustedCAs       []string // EXPANSION: seeds the issuer trust-store fallback (§4.C)
}

// BackendConfig is the backend.* section.
type BackendConfig struct {
	Host      string
	Port      uint16
	Keepalive int
}

// ContextConfig is one entry of contexts[].
type ContextConfig struct {
	ServerName string
	Cert       string
	Key        string
	Ciphers    string
	ECDH       string
	NPN        []string
}

// Config is the fully loaded, defaulted, validated proxy configuration.
// It is immutable after LoadConfig returns.
type Config struct {
	Workers         int
	RestartTimeout  int
	Log             LogConfig
	Frontend        FrontendConfig
	Backend         BackendConfig
	SNI             HTTPPoolConfig
	Stapling        HTTPPoolConfig
	Contexts        []ContextConfig

	// EXPANSION fields recovered from bud_config_cli_load; see SPEC_FULL.md §3.
	IsDaemon bool
	IsWorker bool
	ExePath  string
}

// rawConfig mirrors Config but with every scalar as a pointer (or a
// json.RawMessage stand-in for arrays), so LoadConfig can tell "absent"
// from "explicitly zero" without the C source's -1-sentinel trick.
type rawConfig struct {
	Workers        *int           `json:"workers"`
	RestartTimeout *int           `json:"restart_timeout"`
	Log            *rawLog        `json:"log"`
	Frontend       *rawFrontend   `json:"frontend"`
	Backend        *rawBackend    `json:"backend"`
	SNI            *rawHTTPPool   `json:"sni"`
	Stapling       *rawHTTPPool   `json:"stapling"`
	Contexts       []json.RawMessage `json:"contexts"`
}

type rawLog struct {
	Level    *string `json:"level"`
	Facility *string `json:"facility"`
	Stdio    *bool   `json:"stdio"`
	Syslog   *bool   `json:"syslog"`
}

type rawFrontend struct {
	Port             *uint16  `json:"port"`
	Host             *string  `json:"host"`
	Proxyline        *bool    `json:"proxyline"`
	Security         *string  `json:"security"`
	Ciphers          *string  `json:"ciphers"`
	ECDH             *string  `json:"ecdh"`
	NPN              []any    `json:"npn"`
	Cert             *string  `json:"cert"`
	Key              *string  `json:"key"`
	Keepalive        *int     `json:"keepalive"`
	ServerPreference *bool    `json:"server_preference"`
	SSL3             *bool    `json:"ssl3"`
	RenegWindow      *int     `json:"reneg_window"`
	RenegLimit       *int     `json:"reneg_limit"`
	TrustedCAs       []string `json:"trusted_cas"`
}

type rawBackend struct {
	Host      *string `json:"host"`
	Port      *uint16 `json:"port"`
	Keepalive *int    `json:"keepalive"`
}

type rawHTTPPool struct {
	Enabled *bool   `json:"enabled"`
	Host    *string `json:"host"`
	Port    *uint16 `json:"port"`
	Query   *string `json:"query"`
}

type rawContext struct {
	ServerName *string `json:"servername"`
	Cert       *string `json:"cert"`
	Key        *string `json:"key"`
	Ciphers    *string `json:"ciphers"`
	ECDH       *string `json:"ecdh"`
	NPN        []any   `json:"npn"`
}

// LoadConfig reads path, parses it as a JSON object, and returns a fully
// defaulted, validated Config. See spec.md §4.B.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errKind(KindJSONParse, err.Error())
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*Config, error) {
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errKind(KindJSONParse, err.Error())
	}
	if _, ok := probe.(map[string]any); !ok {
		return nil, errKind(KindJSONRootNotObject, "")
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errKind(KindJSONParse, err.Error())
	}

	cfg := &Config{}
	cfg.Workers = intOrDefault(raw.Workers, 1)
	cfg.RestartTimeout = intOrDefault(raw.RestartTimeout, 250)

	var rawLogV rawLog
	if raw.Log != nil {
		rawLogV = *raw.Log
	}
	cfg.Log.Level = strOrDefault(rawLogV.Level, "info")
	cfg.Log.Facility = strOrDefault(rawLogV.Facility, "user")
	cfg.Log.Stdio = boolOrDefault(rawLogV.Stdio, true)
	cfg.Log.Syslog = boolOrDefault(rawLogV.Syslog, false)

	var f rawFrontend
	if raw.Frontend != nil {
		f = *raw.Frontend
	}
	cfg.Frontend.Port = u16OrDefault(f.Port, 1443)
	cfg.Frontend.Host = strOrDefault(f.Host, "0.0.0.0")
	cfg.Frontend.Proxyline = boolOrDefault(f.Proxyline, false)
	cfg.Frontend.Security = strOrDefault(f.Security, "ssl23")
	cfg.Frontend.Ciphers = strOrDefault(f.Ciphers, "")
	cfg.Frontend.ECDH = strOrDefault(f.ECDH, "prime256v1")
	npn, err := verifyAndConvertNPN(f.NPN)
	if err != nil {
		return nil, err
	}
	cfg.Frontend.NPN = npn
	cfg.Frontend.Cert = strOrDefault(f.Cert, "keys/cert.pem")
	cfg.Frontend.Key = strOrDefault(f.Key, "keys/key.pem")
	cfg.Frontend.Keepalive = intOrDefault(f.Keepalive, 3600)
	cfg.Frontend.ServerPreference = boolOrDefault(f.ServerPreference, true)
	cfg.Frontend.SSL3 = boolOrDefault(f.SSL3, false)
	cfg.Frontend.RenegWindow = intOrDefault(f.RenegWindow, 600)
	cfg.Frontend.RenegLimit = intOrDefault(f.RenegLimit, 3)
	cfg.Frontend.TrustedCAs = f.TrustedCAs

	var b rawBackend
	if raw.Backend != nil {
		b = *raw.Backend
	}
	cfg.Backend.Host = strOrDefault(b.Host, "127.0.0.1")
	cfg.Backend.Port = u16OrDefault(b.Port, 8000)
	cfg.Backend.Keepalive = intOrDefault(b.Keepalive, 3600)

	readPool(raw.SNI, &cfg.SNI, 9000, "127.0.0.1", "/bud/sni/%s")
	readPool(raw.Stapling, &cfg.Stapling, 9000, "127.0.0.1", "/bud/stapling/%s")

	for i, rawCtxMsg := range raw.Contexts {
		var probe any
		if err := json.Unmarshal(rawCtxMsg, &probe); err != nil {
			return nil, errKind(KindJSONParse, err.Error())
		}
		if _, ok := probe.(map[string]any); !ok {
			return nil, errKind(KindJSONCtxNotObject, fmt.Sprintf("contexts[%d]", i))
		}
		var rc rawContext
		if err := json.Unmarshal(rawCtxMsg, &rc); err != nil {
			return nil, errKind(KindJSONParse, err.Error())
		}
		npn, err := verifyAndConvertNPN(rc.NPN)
		if err != nil {
			return nil, err
		}
		var cc ContextConfig
		if rc.ServerName != nil {
			cc.ServerName = *rc.ServerName
		}
		if rc.Cert != nil {
			cc.Cert = *rc.Cert
		}
		if rc.Key != nil {
			cc.Key = *rc.Key
		}
		if rc.Ciphers != nil {
			cc.Ciphers = *rc.Ciphers
		}
		if rc.ECDH != nil {
			cc.ECDH = *rc.ECDH
		}
		cc.NPN = npn
		cfg.Contexts = append(cfg.Contexts, cc)
	}

	if exe, err := os.Executable(); err == nil {
		cfg.ExePath = exe
	} else {
		return nil, errKind(KindExePath, err.Error())
	}

	return cfg, nil
}

func readPool(r *rawHTTPPool, out *HTTPPoolConfig, defPort uint16, defHost, defQuery string) {
	var v rawHTTPPool
	if r != nil {
		v = *r
	}
	out.Enabled = boolOrDefault(v.Enabled, false)
	out.Host = strOrDefault(v.Host, defHost)
	out.Port = u16OrDefault(v.Port, defPort)
	out.QueryFmt = strOrDefault(v.Query, defQuery)
}

func intOrDefault(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

func u16OrDefault(p *uint16, def uint16) uint16 {
	if p != nil {
		return *p
	}
	return def
}

func strOrDefault(p *string, def string) string {
	if p != nil {
		return *p
	}
	return def
}

func boolOrDefault(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

// verifyAndConvertNPN enforces "every element must be a string" (kNpnNonString)
// and converts the raw []any into []string. A nil/absent array stays nil.
func verifyAndConvertNPN(raw []any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	names := make([]string, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, errKind(KindNPNNonString, fmt.Sprintf("npn[%d]", i))
		}
		names[i] = s
	}
	return names, nil
}

// setDefaults applies every non-boolean default in spec.md §4.B's table
// to a fresh zero Config, the shape WriteDefaultJSON needs. Boolean
// defaults (log.stdio and frontend.server_preference are true) are not
// set here; WriteDefaultJSON writes them literally. parseConfig does not
// call this: it resolves absent-vs-explicit-zero per field straight off
// the raw pointers (via *OrDefault), since by the time a Config exists
// the zero value and "explicitly set to zero" are indistinguishable.
func setDefaults(cfg *Config) {
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.RestartTimeout == 0 {
		cfg.RestartTimeout = 250
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Facility == "" {
		cfg.Log.Facility = "user"
	}
	if cfg.Frontend.Port == 0 {
		cfg.Frontend.Port = 1443
	}
	if cfg.Frontend.Host == "" {
		cfg.Frontend.Host = "0.0.0.0"
	}
	if cfg.Frontend.Security == "" {
		cfg.Frontend.Security = "ssl23"
	}
	if cfg.Frontend.ECDH == "" {
		cfg.Frontend.ECDH = "prime256v1"
	}
	if cfg.Frontend.Keepalive == 0 {
		cfg.Frontend.Keepalive = 3600
	}
	if cfg.Frontend.Cert == "" {
		cfg.Frontend.Cert = "keys/cert.pem"
	}
	if cfg.Frontend.Key == "" {
		cfg.Frontend.Key = "keys/key.pem"
	}
	if cfg.Frontend.RenegWindow == 0 {
		cfg.Frontend.RenegWindow = 600
	}
	if cfg.Frontend.RenegLimit == 0 {
		cfg.Frontend.RenegLimit = 3
	}
	if cfg.Backend.Port == 0 {
		cfg.Backend.Port = 8000
	}
	if cfg.Backend.Host == "" {
		cfg.Backend.Host = "127.0.0.1"
	}
	if cfg.Backend.Keepalive == 0 {
		cfg.Backend.Keepalive = 3600
	}
	if cfg.SNI.Port == 0 {
		cfg.SNI.Port = 9000
	}
	if cfg.SNI.Host == "" {
		cfg.SNI.Host = "127.0.0.1"
	}
	if cfg.SNI.QueryFmt == "" {
		cfg.SNI.QueryFmt = "/bud/sni/%s"
	}
	if cfg.Stapling.Port == 0 {
		cfg.Stapling.Port = 9000
	}
	if cfg.Stapling.Host == "" {
		cfg.Stapling.Host = "127.0.0.1"
	}
	if cfg.Stapling.QueryFmt == "" {
		cfg.Stapling.QueryFmt = "/bud/stapling/%s"
	}
}

// WriteDefaultJSON writes the default configuration, key order matching
// spec.md §4.B exactly, the way bud_config_print_default emits it with
// sequential fprintf calls rather than a generic marshaler.
func WriteDefaultJSON(w io.Writer) error {
	cfg := &Config{}
	setDefaults(cfg)

	fmt.Fprintf(w, "{\n")
	fmt.Fprintf(w, "  \"workers\": %d,\n", cfg.Workers)
	fmt.Fprintf(w, "  \"restart_timeout\": %d,\n", cfg.RestartTimeout)
	fmt.Fprintf(w, "  \"log\": {\n")
	fmt.Fprintf(w, "    \"level\": %q,\n", cfg.Log.Level)
	fmt.Fprintf(w, "    \"facility\": %q,\n", cfg.Log.Facility)
	fmt.Fprintf(w, "    \"stdio\": true,\n")
	fmt.Fprintf(w, "    \"syslog\": false\n")
	fmt.Fprintf(w, "  },\n")
	fmt.Fprintf(w, "  \"frontend\": {\n")
	fmt.Fprintf(w, "    \"port\": %d,\n", cfg.Frontend.Port)
	fmt.Fprintf(w, "    \"host\": %q,\n", cfg.Frontend.Host)
	fmt.Fprintf(w, "    \"proxyline\": false,\n")
	fmt.Fprintf(w, "    \"security\": %q,\n", cfg.Frontend.Security)
	fmt.Fprintf(w, "    \"ecdh\": %q,\n", cfg.Frontend.ECDH)
	fmt.Fprintf(w, "    \"keepalive\": %d,\n", cfg.Frontend.Keepalive)
	fmt.Fprintf(w, "    \"server_preference\": true,\n")
	fmt.Fprintf(w, "    \"ssl3\": false,\n")
	fmt.Fprintf(w, "    \"cert\": %q,\n", cfg.Frontend.Cert)
	fmt.Fprintf(w, "    \"key\": %q,\n", cfg.Frontend.Key)
	fmt.Fprintf(w, "    \"reneg_window\": %d,\n", cfg.Frontend.RenegWindow)
	fmt.Fprintf(w, "    \"reneg_limit\": %d\n", cfg.Frontend.RenegLimit)
	fmt.Fprintf(w, "  },\n")
	fmt.Fprintf(w, "  \"backend\": {\n")
	fmt.Fprintf(w, "    \"port\": %d,\n", cfg.Backend.Port)
	fmt.Fprintf(w, "    \"host\": %q,\n", cfg.Backend.Host)
	fmt.Fprintf(w, "    \"keepalive\": %d\n", cfg.Backend.Keepalive)
	fmt.Fprintf(w, "  },\n")
	fmt.Fprintf(w, "  \"sni\": {\n")
	fmt.Fprintf(w, "    \"enabled\": false,\n")
	fmt.Fprintf(w, "    \"port\": %d,\n", cfg.SNI.Port)
	fmt.Fprintf(w, "    \"host\": %q,\n", cfg.SNI.Host)
	fmt.Fprintf(w, "    \"query\": %q\n", cfg.SNI.QueryFmt)
	fmt.Fprintf(w, "  },\n")
	fmt.Fprintf(w, "  \"stapling\": {\n")
	fmt.Fprintf(w, "    \"enabled\": false,\n")
	fmt.Fprintf(w, "    \"port\": %d,\n", cfg.Stapling.Port)
	fmt.Fprintf(w, "    \"host\": %q,\n", cfg.Stapling.Host)
	fmt.Fprintf(w, "    \"query\": %q\n", cfg.Stapling.QueryFmt)
	fmt.Fprintf(w, "  },\n")
	fmt.Fprintf(w, "  \"contexts\": []\n")
	fmt.Fprintf(w, "}\n")
	return nil
}

// BindAddresses resolves the frontend and backend addresses. It is the
// only place Config touches the network layer (§4.B: "no side effects
// until bind_addresses is called").
func (c *Config) BindAddresses() (frontend, backend *net.TCPAddr, err error) {
	frontend, err = ParseHostPort(c.Frontend.Host, c.Frontend.Port)
	if err != nil {
		return nil, nil, errKind(KindPton, formatAddr(c.Frontend.Host, c.Frontend.Port))
	}
	backend, err = ParseHostPort(c.Backend.Host, c.Backend.Port)
	if err != nil {
		return nil, nil, errKind(KindPton, formatAddr(c.Backend.Host, c.Backend.Port))
	}
	return frontend, backend, nil
}

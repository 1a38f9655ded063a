// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/wiicon_remote/internal/sensors"
)

// RegisterDebugSession holds WebSocket connection state for register debugging
type RegisterDebugSession struct {
	Conn     *websocket.Conn
	pipeline *Pipeline
	writable []AddrRange
}

// RegisterCmd is any register debug request.
type RegisterCmd struct {
	Action  string `json:"action"` // "get_map", "read", "read_all", "write", "export_config"
	Address string `json:"addr,omitempty"`
	Value   string `json:"value,omitempty"`
}

// RegisterResponse is sent back for every command.
type RegisterResponse struct {
	Type        string                 `json:"type"` // "register_data", "register_map", "export_config", "error"
	Device      string                 `json:"device,omitempty"`
	Address     string                 `json:"addr,omitempty"`
	Value       string                 `json:"value,omitempty"`
	Registers   map[string]string      `json:"registers,omitempty"` // for bulk read
	Timestamp   string                 `json:"timestamp,omitempty"`
	Message     string                 `json:"message,omitempty"`
	RegisterMap []sensors.RegisterInfo `json:"register_map,omitempty"`
	Config      *RegisterConfigFile    `json:"config,omitempty"`
	Filename    string                 `json:"filename,omitempty"`
}

// RegisterConfigFile represents the JSON structure for exported register configuration
type RegisterConfigFile struct {
	Version   int               `json:"version"`
	Device    string            `json:"device"`
	Timestamp string            `json:"timestamp"`
	Registers map[string]string `json:"registers"` // hex address -> hex value
}

// AddrRange is an inclusive register address range.
type AddrRange struct {
	Lo, Hi byte
}

// ParseAddrRanges parses "0x40-0x43,0x69" into ranges. Empty input allows nothing.
func ParseAddrRanges(s string) ([]AddrRange, error) {
	var out []AddrRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		a, err := parseHexByte(lo)
		if err != nil {
			return nil, err
		}
		b := a
		if isRange {
			if b, err = parseHexByte(hi); err != nil {
				return nil, err
			}
		}
		if b < a {
			return nil, fmt.Errorf("register range %q is reversed", part)
		}
		out = append(out, AddrRange{Lo: a, Hi: b})
	}
	return out, nil
}

func parseHexByte(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid register value %q", s)
	}
	return byte(v), nil
}

func isRegisterWritable(addr byte, ranges []AddrRange) bool {
	for _, r := range ranges {
		if addr >= r.Lo && addr <= r.Hi {
			return true
		}
	}
	return false
}

// HandleRegisterDebugWS handles the WebSocket connection for register debugging
func (ws *WebServer) HandleRegisterDebugWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("register_debug: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := &RegisterDebugSession{Conn: conn, pipeline: ws.pipeline, writable: ws.writable}

	if err := session.sendRegisterMap(); err != nil {
		log.Warnf("register_debug: error sending register map: %v", err)
		return
	}

	for {
		var cmd RegisterCmd
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("register_debug: websocket error: %v", err)
			}
			return
		}

		var resp RegisterResponse
		switch cmd.Action {
		case "get_map":
			if err := session.sendRegisterMap(); err != nil {
				return
			}
			continue
		case "read":
			resp = session.handleRead(cmd)
		case "read_all":
			resp = session.handleReadAll()
		case "write":
			resp = session.handleWrite(cmd)
		case "export_config":
			resp = session.handleExportConfig()
		default:
			resp = errorResponse(fmt.Sprintf("unknown action: %s", cmd.Action))
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func errorResponse(message string) RegisterResponse {
	return RegisterResponse{Type: "error", Message: message}
}

func (s *RegisterDebugSession) handleRead(cmd RegisterCmd) RegisterResponse {
	addr, err := parseHexByte(cmd.Address)
	if err != nil {
		return errorResponse(err.Error())
	}
	value, err := s.pipeline.ReadRegister(addr)
	if err != nil {
		return errorResponse(fmt.Sprintf("read error: %v", err))
	}
	return RegisterResponse{
		Type:      "register_data",
		Device:    s.pipeline.DeviceName(),
		Address:   fmt.Sprintf("0x%02X", addr),
		Value:     fmt.Sprintf("0x%02X", value),
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func (s *RegisterDebugSession) readAll() (map[string]string, error) {
	regMap, err := s.pipeline.RegisterMap()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(regMap))
	for _, info := range regMap {
		if info.Access == "W" {
			continue
		}
		addr, err := parseHexByte(info.Address)
		if err != nil {
			return nil, err
		}
		v, err := s.pipeline.ReadRegister(addr)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", info.Name, err)
		}
		out[fmt.Sprintf("0x%02X", addr)] = fmt.Sprintf("0x%02X", v)
	}
	return out, nil
}

func (s *RegisterDebugSession) handleReadAll() RegisterResponse {
	regs, err := s.readAll()
	if err != nil {
		return errorResponse(fmt.Sprintf("read all error: %v", err))
	}
	return RegisterResponse{
		Type:      "register_data",
		Device:    s.pipeline.DeviceName(),
		Registers: regs,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func (s *RegisterDebugSession) handleWrite(cmd RegisterCmd) RegisterResponse {
	addr, err := parseHexByte(cmd.Address)
	if err != nil {
		return errorResponse(err.Error())
	}
	value, err := parseHexByte(cmd.Value)
	if err != nil {
		return errorResponse(err.Error())
	}
	if !isRegisterWritable(addr, s.writable) {
		return errorResponse(fmt.Sprintf("register 0x%02X not in allowed write ranges", addr))
	}
	if err := s.pipeline.WriteRegister(addr, value); err != nil {
		return errorResponse(fmt.Sprintf("write error: %v", err))
	}
	log.Infof("register_debug: wrote 0x%02X to 0x%02X", value, addr)
	return RegisterResponse{
		Type:      "register_data",
		Device:    s.pipeline.DeviceName(),
		Address:   fmt.Sprintf("0x%02X", addr),
		Value:     fmt.Sprintf("0x%02X", value),
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   "write successful",
	}
}

func (s *RegisterDebugSession) handleExportConfig() RegisterResponse {
	regs, err := s.readAll()
	if err != nil {
		return errorResponse(fmt.Sprintf("export error: %v", err))
	}
	now := time.Now()
	device := s.pipeline.DeviceName()
	return RegisterResponse{
		Type:    "export_config",
		Device:  device,
		Message: "config exported",
		Config: &RegisterConfigFile{
			Version:   1,
			Device:    device,
			Timestamp: now.Format(time.RFC3339),
			Registers: regs,
		},
		Filename: fmt.Sprintf("%s_%s_registers.json", device, now.Format("20060102_150405")),
	}
}

func (s *RegisterDebugSession) sendRegisterMap() error {
	regMap, err := s.pipeline.RegisterMap()
	if err != nil {
		return s.Conn.WriteJSON(errorResponse(err.Error()))
	}
	return s.Conn.WriteJSON(RegisterResponse{
		Type:        "register_map",
		Device:      s.pipeline.DeviceName(),
		RegisterMap: regMap,
	})
}

// MarshalRegisters renders a register dump as indented JSON, for the CLI.
func MarshalRegisters(device string, regs map[string]string) ([]byte, error) {
	return json.MarshalIndent(RegisterConfigFile{
		Version:   1,
		Device:    device,
		Timestamp: time.Now().Format(time.RFC3339),
		Registers: regs,
	}, "", "  ")
}

// DumpRegisters reads every readable register of the pipeline's device.
func DumpRegisters(p *Pipeline) (map[string]string, error) {
	s := &RegisterDebugSession{pipeline: p}
	return s.readAll()
}

// Package ipc is the remote control socket: newline-delimited JSON over a unix
// socket, one request and one response per connection.
package ipc

import "github.com/mil-ad/bluepanel/internal/radio"

// Commands understood by the server.
const (
	CommandStatus  = "status"
	CommandScan    = "scan"
	CommandConnect = "connect"
)

// Request is sent from the CLI client to the running panel.
type Request struct {
	Command string `json:"command"`         // "status" | "scan" | "connect"
	Index   *int   `json:"index,omitempty"` // roster index, connect only
}

// DeviceInfo is one roster entry as reported over the socket.
type DeviceInfo struct {
	Index     int    `json:"index"`
	Address   string `json:"address"`
	Name      string `json:"name,omitempty"`
	Paired    bool   `json:"paired"`
	Connected bool   `json:"connected"`
}

// Response is sent from the panel back to the CLI client.
type Response struct {
	Powered  bool         `json:"powered"`
	Scan     string       `json:"scan,omitempty"`    // "disabled", "scanning", "finished", "failed"
	Connect  string       `json:"connect,omitempty"` // "disabled", "connecting", "finished", "failed: ..."
	Devices  []DeviceInfo `json:"devices,omitempty"`
	Accepted bool         `json:"accepted,omitempty"` // scan/connect command was queued
	Error    string       `json:"error,omitempty"`
}

// StatusResponse converts published panel state into a response.
func StatusResponse(st radio.Status) Response {
	resp := Response{
		Powered: st.Powered,
		Scan:    st.Scan.String(),
		Connect: st.Connect.String(),
	}
	if st.Roster == nil {
		return resp
	}
	for i, d := range st.Roster.Devices {
		resp.Devices = append(resp.Devices, DeviceInfo{
			Index:     i,
			Address:   d.Address.String(),
			Name:      d.Name,
			Paired:    d.Paired,
			Connected: d.Connected,
		})
	}
	return resp
}

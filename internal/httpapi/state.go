package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/warpcomdev/mjpegd/internal/broker"
	"github.com/warpcomdev/mjpegd/internal/registry"
)

type clientStat struct {
	Key            string `json:"key"`
	AdvanceHeaders bool   `json:"advance_headers"`
	ExtraHeaders   bool   `json:"extra_headers"`
	ZeroData       bool   `json:"zero_data"`
	FPS            int    `json:"fps"`
}

type stateResult struct {
	InstanceID string `json:"instance_id"`
	Encoder    struct {
		Type    string `json:"type"`
		Quality int    `json:"quality"`
	} `json:"encoder"`
	Source struct {
		Resolution struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"resolution"`
		Online      bool `json:"online"`
		DesiredFPS  int  `json:"desired_fps"`
		CapturedFPS int  `json:"captured_fps"`
	} `json:"source"`
	Stream struct {
		QueuedFPS   int                   `json:"queued_fps"`
		Clients     int                   `json:"clients"`
		ClientsStat map[string]clientStat `json:"clients_stat"`
	} `json:"stream"`
}

type stateResponse struct {
	OK     string      `json:"ok"`
	Result stateResult `json:"result"`
}

// StateEndpoint serves GET /state.
type StateEndpoint struct {
	Broker   *broker.Broker
	Registry *registry.Registry
	Quality  int
}

func (e *StateEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	bstate := e.Broker.Snapshot()
	sessions := e.Registry.Snapshot()

	resp := stateResponse{OK: "true"}
	resp.Result.InstanceID = ""
	resp.Result.Encoder.Type = "CPU"
	resp.Result.Encoder.Quality = e.Quality
	resp.Result.Source.Resolution.Width = bstate.Width
	resp.Result.Source.Resolution.Height = bstate.Height
	resp.Result.Source.Online = bstate.Online
	resp.Result.Source.DesiredFPS = bstate.DesiredFPS
	resp.Result.Source.CapturedFPS = bstate.PerSecondFPS
	resp.Result.Stream.QueuedFPS = bstate.PerSecondFPS
	resp.Result.Stream.Clients = len(sessions)
	resp.Result.Stream.ClientsStat = make(map[string]clientStat, len(sessions))
	for _, s := range sessions {
		resp.Result.Stream.ClientsStat[s.ClientID] = clientStat{
			Key:            s.Key,
			AdvanceHeaders: s.AdvanceHeaders,
			ExtraHeaders:   false,
			ZeroData:       false,
			FPS:            s.FPS,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

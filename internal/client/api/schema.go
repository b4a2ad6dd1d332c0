package api

import (
	"encoding/json"
	"time"
)

// Some structs to handle the Json, coming from the server
type RemoteCommand struct {
	IssuedAt  time.Time
	Arguments map[string]string `json:"arguments"`
	Id        string            `json:"id"`
	Name      string            `json:"name"`
	Status    string            `json:"status"`
}

// Custom unmarshaller so we can use time.Time within the go code and avoid time mistakes
func (c *RemoteCommand) UnmarshalJSON(data []byte) error {
	type Alias RemoteCommand // Create an alias for the struct to avoid infinite recursion
	aux := &struct {
		*Alias
		IssuedAt int64 `json:"issued_at"`
	}{
		Alias: (*Alias)(c),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.IssuedAt = time.Unix(aux.IssuedAt, 0).UTC()
	return nil
}

func (c *RemoteCommand) Json() string {
	js, _ := json.Marshal(c)
	return string(js)
}

type RemoteCommandResponse struct {
	Message string
	Data    []RemoteCommand
	Code    int
}

// DeviceStatus is the periodic health report
type DeviceStatus struct {
	OsVersion     string   `json:"os_version"`
	StatusTime    int64    `json:"status_time"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	LocationLat   *float64 `json:"location_lat,omitempty"`
	LocationLon   *float64 `json:"location_lon,omitempty"`
	GpsFixStatus  string   `json:"gps_fix_status"`
	Temperature   *float64 `json:"temperature_celsius,omitempty"`
	SignalQuality string   `json:"signal_quality,omitempty"`
	SmsSent       int      `json:"sms_sent"`
	SmsFailed     int      `json:"sms_failed"`
	LTE           string   `json:"LTE,omitempty"`
	WiFi          string   `json:"WiFi,omitempty"`
	Ethernet      string   `json:"Ethernet,omitempty"`
}

// DetectionUpload is the wire form of one detection cycle result
type DetectionUpload struct {
	Id           string            `json:"id"`
	Time         int64             `json:"time"`
	Counts       map[string]int    `json:"counts"`
	Detections   []DetectionEntry  `json:"detections"`
	LocationLat  *float64          `json:"location_lat,omitempty"`
	LocationLon  *float64          `json:"location_lon,omitempty"`
	SnapshotName string            `json:"snapshot_name,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

type DetectionEntry struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

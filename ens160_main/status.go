package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	humanize "github.com/dustin/go-humanize"
)

type statusResponse struct {
	Connected    bool
	Address      string `json:",omitempty"`
	Firmware     string `json:",omitempty"`
	Started      string
	TemperatureC float64
	Humidity     float64

	HaveReading    bool
	AQI            uint8     `json:",omitempty"`
	TVOC           uint16    `json:",omitempty"`
	ECO2           uint16    `json:",omitempty"`
	Validity       string    `json:",omitempty"`
	Error          bool      `json:",omitempty"`
	LastReading    time.Time `json:",omitempty"`
	LastReadingAge string    `json:",omitempty"`

	DatalogDropped uint64 `json:",omitempty"`
}

func (d *ens160d) status() statusResponse {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st := statusResponse{
		Connected:    d.sensor != nil,
		Firmware:     d.fw,
		Started:      humanize.Time(d.started),
		TemperatureC: *d.cfg.Compensation.Temperature,
		Humidity:     *d.cfg.Compensation.Humidity,
	}
	if d.sensor != nil {
		st.Address = fmt.Sprintf("0x%02X", d.address)
		if s, ok := d.sensor.LastReading(); ok {
			st.HaveReading = true
			st.AQI = s.AQI
			st.TVOC = s.TVOC
			st.ECO2 = s.ECO2
			st.Validity = s.Status.Validity.String()
			st.Error = s.Status.Error
			st.LastReading = s.Time
			st.LastReadingAge = d.clock.HumanizeTime(s.Time)
		}
	}
	if d.datalog != nil {
		st.DatalogDropped = d.datalog.Dropped()
	}
	return st
}

func (d *ens160d) handleStatusRequest(w http.ResponseWriter, r *http.Request) {
	statusJSON, err := json.Marshal(d.status())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(statusJSON)
}

package main

import (
	"bytes"
	"testing"

	"github.com/neilo40/scopewave/internal/scope"
)

func TestWriteCSV(t *testing.T) {
	sw := &scope.Sweeps{
		Channels: []scope.ChannelID{scope.Analog(1), scope.Analog(3)},
		Waveforms: []scope.Waveform{
			{{T: 0, V: 0.5}, {T: 1e-6, V: -0.25}},
			{{T: 0, V: 2}},
		},
	}
	var buf bytes.Buffer
	if err := writeCSV(&buf, sw); err != nil {
		t.Fatal(err)
	}
	want := "t_ch1,ch1,t_ch3,ch3\n0,0.5,0,2\n1e-06,-0.25,,\n"
	if buf.String() != want {
		t.Errorf("csv:\n%s\nwant:\n%s", buf.String(), want)
	}
}

package stats

import (
	"math"
	"testing"

	"github.com/luki/sensormon/internal/anomaly"
	"github.com/luki/sensormon/internal/reading"
)

func TestSeries(t *testing.T) {
	s := NewSeries()
	if s.Avg() != 0 || s.Lo() != 0 || s.Hi() != 0 {
		t.Errorf("empty series: avg %f lo %f hi %f", s.Avg(), s.Lo(), s.Hi())
	}

	for i := 0; i < 7; i++ {
		s.Push(float64(30 + i))
	}
	if s.Count != 7 {
		t.Errorf("Count: got %d, want 7", s.Count)
	}
	if s.Min != 30.0 {
		t.Errorf("Min: got %f, want 30.0", s.Min)
	}
	if s.Peak != 36.0 {
		t.Errorf("Peak: got %f, want 36.0", s.Peak)
	}
	if math.Abs(s.Avg()-33.0) > 1e-9 {
		t.Errorf("Avg: got %f, want 33.0", s.Avg())
	}
}

func TestCollect(t *testing.T) {
	rows := []reading.Reading{
		{Node: "Node1", Temperature: 25, Humidity: 55},
		{Node: "Node2", Temperature: 32, Humidity: 35},
		{Node: "Node1", Temperature: 31, Humidity: 75},
		{Node: "Node2", Temperature: 28, Humidity: 50},
	}

	nodes := Collect(rows, anomaly.DefaultThresholds)
	if len(nodes) != 2 || nodes[0].Node != "Node1" || nodes[1].Node != "Node2" {
		t.Fatalf("Collect: got %+v", nodes)
	}

	n1 := nodes[0]
	if n1.Count() != 2 || n1.TempHigh != 1 || n1.HumidityHigh != 1 || n1.Anomalous != 1 {
		t.Errorf("Node1 stats: %+v", n1)
	}
	if n1.Temp.Avg() != 28 || n1.Humidity.Hi() != 75 {
		t.Errorf("Node1 series: temp avg %f humidity peak %f", n1.Temp.Avg(), n1.Humidity.Hi())
	}

	n2 := nodes[1]
	if n2.HumidityLow != 1 || n2.Ratio(n2.Anomalous) != 0.5 {
		t.Errorf("Node2 stats: %+v", n2)
	}
}

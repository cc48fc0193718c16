package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPrometheusAdapter_Collect(t *testing.T) {
	var gotQuery, gotStart, gotEnd, gotStep string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query_range" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		gotQuery, gotStart, gotEnd, gotStep = q.Get("query"), q.Get("start"), q.Get("end"), q.Get("step")

		// two zones summed per timestamp; the end sample is outside the window
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"matrix","result":[
			{"metric":{"zone":"north"},"values":[[1735689600,"20000"],[1735693200,"21000"],[1735776000,"1"]]},
			{"metric":{"zone":"south"},"values":[[1735689600,"25000.5"],[1735693200,"NaN"]]}
		]}}`)
	}))
	defer server.Close()

	p := &PrometheusAdapter{ServerURL: server.URL, Query: `sum by (zone) (load_mw)`}
	readings, err := p.Collect(context.Background(), Window{Start: jan1, End: jan1.Add(24 * time.Hour)})
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}

	if gotQuery != `sum by (zone) (load_mw)` || gotStart != "1735689600" || gotEnd != "1735776000" || gotStep != "3600" {
		t.Errorf("query=%q start=%s end=%s step=%s", gotQuery, gotStart, gotEnd, gotStep)
	}

	want := []Reading{
		{Timestamp: jan1, LoadMW: 45000.5},
		{Timestamp: jan1.Add(time.Hour), LoadMW: 21000},
	}
	if len(readings) != len(want) {
		t.Fatalf("readings = %+v, want %+v", readings, want)
	}
	for i := range want {
		if !readings[i].Timestamp.Equal(want[i].Timestamp) || readings[i].LoadMW != want[i].LoadMW {
			t.Errorf("reading %d = %+v, want %+v", i, readings[i], want[i])
		}
	}
}

func TestPrometheusAdapter_DefaultWindow(t *testing.T) {
	var gotStart, gotEnd string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStart, gotEnd = r.URL.Query().Get("start"), r.URL.Query().Get("end")
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"matrix","result":[]}}`)
	}))
	defer server.Close()

	now := time.Date(2025, 3, 10, 14, 37, 0, 0, time.UTC)
	p := &PrometheusAdapter{
		ServerURL: server.URL,
		Query:     "load_mw",
		Lookback:  48 * time.Hour,
		now:       func() time.Time { return now },
	}
	readings, err := p.Collect(context.Background(), Window{})
	if err != nil {
		t.Fatal(err)
	}
	if len(readings) != 0 {
		t.Errorf("readings = %+v, want none", readings)
	}

	end := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	if gotEnd != fmt.Sprint(end.Unix()) || gotStart != fmt.Sprint(end.Add(-48*time.Hour).Unix()) {
		t.Errorf("start=%s end=%s", gotStart, gotEnd)
	}
}

func TestPrometheusAdapter_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, "bad gateway"},
		{"query error", http.StatusOK, `{"status":"error","error":"parse error"}`},
		{"bad json", http.StatusOK, `{"status":`},
		{"bad value", http.StatusOK, `{"status":"success","data":{"result":[{"values":[[1735689600,"high"]]}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			p := &PrometheusAdapter{ServerURL: server.URL, Query: "load_mw"}
			if _, err := p.Collect(context.Background(), Window{Start: jan1, End: jan1.Add(time.Hour)}); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, err := (&PrometheusAdapter{Query: "up"}).Collect(context.Background(), Window{}); err == nil {
		t.Error("expected error without ServerURL")
	}
	p := &PrometheusAdapter{ServerURL: "http://localhost:9090", Query: "up"}
	if _, err := p.Collect(context.Background(), Window{Start: jan1, End: jan1}); err == nil {
		t.Error("expected error for empty window")
	}
}

func TestAggregateRangeResult_InvalidPair(t *testing.T) {
	_, err := AggregateRangeResult([]RangeSeries{{Values: [][]any{{float64(1)}}}})
	if err == nil {
		t.Fatal("expected error for short pair")
	}
}

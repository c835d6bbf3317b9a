package modelsrv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/txn2/tabular/pkg/modelproxy"
	"github.com/txn2/tabular/pkg/query"
	"github.com/txn2/tabular/pkg/schema"
	"github.com/txn2/tabular/pkg/taberr"
)

// scoringServer answers predict calls by labeling each row from the sum
// of its inputs.
func scoringServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/models/iris/predict", func(w http.ResponseWriter, r *http.Request) {
		var rows [][]float64
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		preds := make([]string, len(rows))
		for i, row := range rows {
			sum := 0.0
			for _, v := range row {
				sum += v
			}
			if sum > 5 {
				preds[i] = "virginica"
			} else {
				preds[i] = "setosa"
			}
		}
		_ = json.NewEncoder(w).Encode(preds)
	})
	return httptest.NewServer(mux)
}

func newIrisHandler(t *testing.T, baseURL string, batch bool) *Handler {
	t.Helper()
	cfg, err := ParseConfig(map[string]any{
		"base_url":    baseURL,
		"health_path": "/healthz",
		"models": []any{
			map[string]any{
				"name":         "iris",
				"predict_path": "/models/iris/predict",
				"batch":        batch,
				"workers":      float64(2),
				"input_columns": []any{
					map[string]any{"name": "sepal_length", "type": "float"},
					map[string]any{"name": "sepal_width", "type": "float"},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("ParseConfig() error: %v", err)
	}
	h, err := New("scoring", cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if s := h.Connect(context.Background()); !s.Success {
		t.Fatalf("Connect() failed: %s", s.ErrorMessage)
	}
	t.Cleanup(func() { _ = h.Disconnect() })
	return h
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{
		"base_url": "http://scoring.test",
		"models": []any{
			map[string]any{
				"name":         "iris",
				"predict_path": "/predict",
				"input_columns": []any{
					map[string]any{"name": "a"},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("ParseConfig() error: %v", err)
	}
	if len(cfg.Models) != 1 {
		t.Fatalf("models = %d", len(cfg.Models))
	}
	// Untyped input columns default to string.
	if cfg.Models[0].InputColumns[0].Type != schema.TypeString {
		t.Errorf("column type = %q, want string default", cfg.Models[0].InputColumns[0].Type)
	}
}

func TestParseConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		cfg  map[string]any
	}{
		{"missing base_url", map[string]any{
			"models": []any{map[string]any{"name": "m", "predict_path": "/p",
				"input_columns": []any{map[string]any{"name": "a"}}}},
		}},
		{"no models", map[string]any{"base_url": "http://x.test"}},
		{"model without predict_path", map[string]any{
			"base_url": "http://x.test",
			"models": []any{map[string]any{"name": "m",
				"input_columns": []any{map[string]any{"name": "a"}}}},
		}},
		{"model without input_columns", map[string]any{
			"base_url": "http://x.test",
			"models":   []any{map[string]any{"name": "m", "predict_path": "/p"}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseConfig(tc.cfg); err == nil {
				t.Error("ParseConfig() should fail")
			}
		})
	}
}

func TestHandlerIdentity(t *testing.T) {
	srv := scoringServer(t)
	defer srv.Close()
	h := newIrisHandler(t, srv.URL, false)

	if h.Kind() != HandlerKind {
		t.Errorf("Kind() = %q", h.Kind())
	}
	if got := h.Tables(); len(got) != 1 || got[0] != "iris" {
		t.Errorf("Tables() = %v", got)
	}
	if h.Describe().Kind != "predictive" {
		t.Errorf("descriptor kind = %q", h.Describe().Kind)
	}
}

func TestHandlerQueryPrediction(t *testing.T) {
	srv := scoringServer(t)
	defer srv.Close()
	h := newIrisHandler(t, srv.URL, false)

	res, err := h.Query(context.Background(), query.Select{
		From: "iris",
		Where: query.And{Preds: []query.Predicate{
			query.Condition{Column: "sepal_length", Op: query.OpEquals, Value: 5.1},
			query.Condition{Column: "sepal_width", Op: query.OpEquals, Value: 3.5},
		}},
	})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(res.Rows))
	}
	row := res.Rows[0]
	if row[modelproxy.PredictionColumn] != "virginica" {
		t.Errorf("prediction = %v", row[modelproxy.PredictionColumn])
	}
	if row["sepal_length"] != 5.1 {
		t.Errorf("input echo = %v", row["sepal_length"])
	}
}

func TestHandlerQueryPredictionProjected(t *testing.T) {
	srv := scoringServer(t)
	defer srv.Close()
	h := newIrisHandler(t, srv.URL, false)

	res, err := h.Query(context.Background(), query.Select{
		From:       "iris",
		Projection: []string{modelproxy.PredictionColumn},
		Where: query.And{Preds: []query.Predicate{
			query.Condition{Column: "sepal_length", Op: query.OpEquals, Value: 5.1},
			query.Condition{Column: "sepal_width", Op: query.OpEquals, Value: 3.5},
		}},
	})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(res.Rows))
	}
	// Input echo columns drop out; the row carries exactly what the
	// projection promised.
	row := res.Rows[0]
	if len(row) != 1 || row[modelproxy.PredictionColumn] != "virginica" {
		t.Errorf("row = %v, want only the prediction", row)
	}
}

func TestHandlerQueryMissingInput(t *testing.T) {
	srv := scoringServer(t)
	defer srv.Close()
	h := newIrisHandler(t, srv.URL, false)

	_, err := h.Query(context.Background(), query.Select{
		From:  "iris",
		Where: query.Condition{Column: "sepal_length", Op: query.OpEquals, Value: 5.1},
	})
	if !taberr.Is(err, taberr.KindUnsupportedQuery) {
		t.Errorf("kind = %q, want unsupported_query", taberr.KindOf(err))
	}
}

func TestHandlerQueryMutationRejected(t *testing.T) {
	srv := scoringServer(t)
	defer srv.Close()
	h := newIrisHandler(t, srv.URL, false)

	_, err := h.Query(context.Background(), query.Insert{
		Into: "iris",
		Rows: []map[string]any{{"sepal_length": 1.0}},
	})
	if !taberr.Is(err, taberr.KindUnsupportedQuery) {
		t.Errorf("kind = %q, want unsupported_query", taberr.KindOf(err))
	}
}

func TestHandlerPredictBatch(t *testing.T) {
	srv := scoringServer(t)
	defer srv.Close()
	h := newIrisHandler(t, srv.URL, true)

	preds, err := h.PredictBatch(context.Background(), "iris", []map[string]any{
		{"sepal_length": 1.0, "sepal_width": 1.0},
		{"sepal_length": 4.0, "sepal_width": 4.0},
	})
	if err != nil {
		t.Fatalf("PredictBatch() error: %v", err)
	}
	if preds[0].Row[modelproxy.PredictionColumn] != "setosa" {
		t.Errorf("row 0 = %v", preds[0].Row)
	}
	if preds[1].Row[modelproxy.PredictionColumn] != "virginica" {
		t.Errorf("row 1 = %v", preds[1].Row)
	}
}

func TestHandlerPredictBatchUnknownModel(t *testing.T) {
	srv := scoringServer(t)
	defer srv.Close()
	h := newIrisHandler(t, srv.URL, true)

	_, err := h.PredictBatch(context.Background(), "ghost", nil)
	if !taberr.Is(err, taberr.KindUnsupportedQuery) {
		t.Errorf("kind = %q, want unsupported_query", taberr.KindOf(err))
	}
}

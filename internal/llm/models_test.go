package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestModelIDs(t *testing.T) {
	got := ModelIDs([]ModelInfo{
		{ID: "deepseek-ai/DeepSeek-V3"},
		{ID: ""},
		{ID: "Qwen/Qwen2.5-7B-Instruct"},
		{ID: "deepseek-ai/DeepSeek-V3"},
		{ID: "THUDM/glm-4-9b-chat"},
	})
	want := []string{"Qwen/Qwen2.5-7B-Instruct", "THUDM/glm-4-9b-chat", "deepseek-ai/DeepSeek-V3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ModelIDs() = %v, want %v", got, want)
	}
}

func TestPreferredModel(t *testing.T) {
	ids := []string{"THUDM/glm-4-9b-chat", "deepseek-ai/DeepSeek-V3", "x/Qwen3-8B"}
	tests := []struct {
		name    string
		ids     []string
		current string
		want    string
	}{
		{"keeps current", ids, "deepseek-ai/DeepSeek-V3", "deepseek-ai/DeepSeek-V3"},
		{"prefers qwen", ids, "gone/model", "x/Qwen3-8B"},
		{"falls back to first", []string{"b", "c"}, "a", "b"},
		{"empty list", nil, "a", ""},
		{"family match is case sensitive", []string{"a/model", "b/qwen-lower"}, "", "a/model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PreferredModel(tt.ids, tt.current); got != tt.want {
				t.Errorf("PreferredModel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestListModels(t *testing.T) {
	queries := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		queries <- r.URL.Query().Get("type") + "/" + r.URL.Query().Get("sub_type")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"object":"list","data":[
			{"id":"Qwen/Qwen2.5-72B-Instruct","object":"model","created":1,"owned_by":"qwen"},
			{"id":"deepseek-ai/DeepSeek-V3","object":"model","created":2,"owned_by":"deepseek"}
		]}`)
	}))
	defer srv.Close()

	models, err := newTestProvider(srv).ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if q := <-queries; q != "text/chat" {
		t.Errorf("query = %q, want text/chat", q)
	}
	if len(models) != 2 || models[0].ID != "Qwen/Qwen2.5-72B-Instruct" || models[1].OwnedBy != "deepseek" {
		t.Errorf("models = %+v", models)
	}
}

func TestListModels_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"message":"forbidden"}`)
	}))
	defer srv.Close()

	_, err := newTestProvider(srv).ListModels(context.Background())
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected *TransportError, got %T: %v", err, err)
	}
	if transportErr.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d", transportErr.StatusCode)
	}
}

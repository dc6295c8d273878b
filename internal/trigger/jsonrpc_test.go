package trigger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-structdata/internal/storage"
)

func rpcOK(t *testing.T, check func(req JSONRPCRequest)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JSONRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if check != nil {
			check(req)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JSONRPCResponse{JSONRPC: "2.0", Result: json.RawMessage(`"ok"`), ID: req.ID})
	}
}

func TestRPCClient_Call_Success(t *testing.T) {
	col := "wins"
	idx := 2
	entry := storage.HistoryEntry{
		ID:         uuid.New(),
		UnitID:     uuid.New(),
		UserID:     uuid.New(),
		ChangeType: storage.ChangeUpdateCell,
		ColumnName: &col,
		RowIndex:   &idx,
		CreatedAt:  time.Now(),
	}

	srv := httptest.NewServer(rpcOK(t, func(req JSONRPCRequest) {
		if req.JSONRPC != "2.0" {
			t.Errorf("jsonrpc: got %q, want 2.0", req.JSONRPC)
		}
		if req.Method != MethodChangeRecorded {
			t.Errorf("method: got %q, want %q", req.Method, MethodChangeRecorded)
		}
		params, _ := req.Params.(map[string]any)
		if params["change_type"] != "UPDATE_CELL" {
			t.Errorf("change_type: got %v", params["change_type"])
		}
		if params["structured_data_id"] != entry.UnitID.String() {
			t.Errorf("structured_data_id: got %v, want %s", params["structured_data_id"], entry.UnitID)
		}
		if params["column_name"] != "wins" {
			t.Errorf("column_name: got %v", params["column_name"])
		}
	}))
	defer srv.Close()

	client := NewRPCClient(0, time.Millisecond, 5*time.Second)
	resp, err := client.Call(context.Background(), srv.URL, MethodChangeRecorded, NewChangeRecordedParams(entry))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Error != nil {
		t.Errorf("unexpected RPC error: %v", resp.Error)
	}
}

func TestRPCClient_Call_RPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req JSONRPCRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JSONRPCResponse{
			JSONRPC: "2.0",
			Error:   &JSONRPCError{Code: -32601, Message: "method not found"},
			ID:      req.ID,
		})
	}))
	defer srv.Close()

	client := NewRPCClient(0, time.Millisecond, 5*time.Second)
	resp, err := client.Call(context.Background(), srv.URL, MethodChangeRecorded, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected RPC error -32601, got %+v", resp.Error)
	}
}

func TestRPCClient_Call_RetriesOn5xx(t *testing.T) {
	var attempts atomic.Int32
	ok := rpcOK(t, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		ok(w, r)
	}))
	defer srv.Close()

	client := NewRPCClient(3, time.Millisecond, 5*time.Second)
	if _, err := client.Call(context.Background(), srv.URL, MethodChangeRecorded, nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts: got %d, want 3", attempts.Load())
	}
}

func TestRPCClient_Call_DoesNotRetry4xx(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewRPCClient(3, time.Millisecond, 5*time.Second)
	if _, err := client.Call(context.Background(), srv.URL, MethodChangeRecorded, nil); err == nil {
		t.Fatal("expected error for 404")
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts: got %d, want 1", attempts.Load())
	}
}

func TestRPCClient_Call_MaxRetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewRPCClient(2, time.Millisecond, 5*time.Second)
	if _, err := client.Call(context.Background(), srv.URL, MethodChangeRecorded, nil); err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts: got %d, want 3", attempts.Load())
	}
}

func TestRPCClient_Call_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewRPCClient(0, time.Millisecond, 5*time.Second)
	if _, err := client.Call(ctx, "http://localhost:1/rpc", MethodChangeRecorded, nil); err == nil {
		t.Fatal("expected error from context cancellation")
	}
}

func TestJSONRPCError_Error(t *testing.T) {
	e := &JSONRPCError{Code: -32600, Message: "invalid request"}
	want := "jsonrpc error -32600: invalid request"
	if got := e.Error(); got != want {
		t.Errorf("Error(): got %q, want %q", got, want)
	}
}

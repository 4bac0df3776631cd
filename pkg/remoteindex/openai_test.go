package remoteindex_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/driftrag/pkg/remoteindex"
)

// vectorStoreServer mimics the vector store files endpoints for one store.
type vectorStoreServer struct {
	mu     sync.Mutex
	order  []string
	status map[string]string
	polls  map[string]int
	// stuck files never leave in_progress
	stuck map[string]bool
}

func newVectorStoreServer(t *testing.T, members ...string) (*vectorStoreServer, *httptest.Server) {
	t.Helper()
	vs := &vectorStoreServer{
		status: map[string]string{},
		polls:  map[string]int{},
		stuck:  map[string]bool{},
	}
	for _, id := range members {
		vs.order = append(vs.order, id)
		vs.status[id] = "completed"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/vector_stores/{vs}/files", vs.list)
	mux.HandleFunc("POST /v1/vector_stores/{vs}/files", vs.create)
	mux.HandleFunc("GET /v1/vector_stores/{vs}/files/{file}", vs.retrieve)
	mux.HandleFunc("DELETE /v1/vector_stores/{vs}/files/{file}", vs.delete)
	mux.HandleFunc("POST /v1/vector_stores", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, map[string]any{"id": "vs_" + req.Name, "object": "vector_store", "name": req.Name})
	})
	mux.HandleFunc("POST /v1/files", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(file)
		writeJSON(w, map[string]any{
			"id":       "file-uploaded",
			"object":   "file",
			"bytes":    len(body),
			"filename": header.Filename,
			"purpose":  r.FormValue("purpose"),
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return vs, server
}

func (vs *vectorStoreServer) snapshot() (order []string, status map[string]string, polls map[string]int) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	status = map[string]string{}
	polls = map[string]int{}
	for k, v := range vs.status {
		status[k] = v
	}
	for k, v := range vs.polls {
		polls[k] = v
	}
	return append([]string(nil), vs.order...), status, polls
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func fileJSON(id, status string) map[string]any {
	return map[string]any{"id": id, "object": "vector_store.file", "status": status, "vector_store_id": "vs_1"}
}

func (vs *vectorStoreServer) list(w http.ResponseWriter, r *http.Request) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	start := 0
	if after := r.URL.Query().Get("after"); after != "" {
		for i, id := range vs.order {
			if id == after {
				start = i + 1
			}
		}
	}
	// two per page regardless of the requested limit
	end := min(start+2, len(vs.order))

	data := []map[string]any{}
	for _, id := range vs.order[start:end] {
		data = append(data, fileJSON(id, vs.status[id]))
	}
	resp := map[string]any{"object": "list", "data": data, "has_more": end < len(vs.order)}
	if len(data) > 0 {
		resp["first_id"] = vs.order[start]
		resp["last_id"] = vs.order[end-1]
	}
	writeJSON(w, resp)
}

func (vs *vectorStoreServer) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileID string `json:"file_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.order = append(vs.order, req.FileID)
	vs.status[req.FileID] = "in_progress"
	writeJSON(w, fileJSON(req.FileID, "in_progress"))
}

func (vs *vectorStoreServer) retrieve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("file")

	vs.mu.Lock()
	defer vs.mu.Unlock()
	status, ok := vs.status[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]any{"error": map[string]any{"message": "no such file"}})
		return
	}

	vs.polls[id]++
	if status == "in_progress" && !vs.stuck[id] && vs.polls[id] >= 2 {
		status = "completed"
		if id == "file-bad" {
			status = "failed"
		}
		vs.status[id] = status
	}
	writeJSON(w, fileJSON(id, status))
}

func (vs *vectorStoreServer) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("file")

	vs.mu.Lock()
	defer vs.mu.Unlock()
	delete(vs.status, id)
	kept := vs.order[:0]
	for _, existing := range vs.order {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	vs.order = kept
	writeJSON(w, map[string]any{"id": id, "object": "vector_store.file.deleted", "deleted": true})
}

func newTestIndex(t *testing.T, server *httptest.Server) *remoteindex.OpenAIIndex {
	t.Helper()
	idx, err := remoteindex.NewOpenAIIndex(remoteindex.OpenAIConfig{
		APIKey:       "sk-test",
		BaseURL:      server.URL + "/v1",
		PollInterval: time.Millisecond,
		PollTimeout:  time.Second,
	}, nil)
	require.NoError(t, err)
	return idx
}

func TestOpenAIListMembersPaginates(t *testing.T) {
	_, server := newVectorStoreServer(t, "file-1", "file-2", "file-3", "file-4", "file-5")
	idx := newTestIndex(t, server)

	ids, err := idx.ListMembers(context.Background(), "vs_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"file-1", "file-2", "file-3", "file-4", "file-5"}, ids)
}

func TestOpenAIAddMemberWaitsUntilReady(t *testing.T) {
	vs, server := newVectorStoreServer(t)
	idx := newTestIndex(t, server)

	require.NoError(t, idx.AddMember(context.Background(), "vs_1", "file-good"))
	_, status, polls := vs.snapshot()
	assert.Equal(t, "completed", status["file-good"])
	assert.Equal(t, 2, polls["file-good"])
}

func TestOpenAIAddMemberFailures(t *testing.T) {
	vs, server := newVectorStoreServer(t)
	vs.stuck["file-slow"] = true

	idx, err := remoteindex.NewOpenAIIndex(remoteindex.OpenAIConfig{
		APIKey:       "sk-test",
		BaseURL:      server.URL + "/v1",
		PollInterval: time.Millisecond,
		PollTimeout:  50 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	err = idx.AddMember(context.Background(), "vs_1", "file-bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")

	err = idx.AddMember(context.Background(), "vs_1", "file-slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpenAIReconcile(t *testing.T) {
	vs, server := newVectorStoreServer(t, "file-B", "file-C")
	r := remoteindex.NewReconciler(newTestIndex(t, server), nil)
	ctx := context.Background()

	res, err := r.Reconcile(ctx, "vs_1", []string{"file-A", "file-B"})
	require.NoError(t, err)
	assert.Equal(t, []string{"file-A"}, res.Added)
	assert.Equal(t, []string{"file-C"}, res.Removed)
	order, _, _ := vs.snapshot()
	assert.Equal(t, []string{"file-B", "file-A"}, order)

	res, err = r.Reconcile(ctx, "vs_1", []string{"file-A", "file-B"})
	require.NoError(t, err)
	assert.Empty(t, res.Added)
	assert.Empty(t, res.Removed)
}

func TestOpenAICreateIndex(t *testing.T) {
	_, server := newVectorStoreServer(t)
	idx := newTestIndex(t, server)

	id, err := idx.CreateIndex(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "vs_acme", id)
}

func TestOpenAIUploadFile(t *testing.T) {
	_, server := newVectorStoreServer(t)
	idx := newTestIndex(t, server)
	dir := t.TempDir()

	small := filepath.Join(dir, "board-minutes.txt")
	require.NoError(t, os.WriteFile(small, []byte("minutes"), 0o600))

	id, err := idx.UploadFile(context.Background(), small)
	require.NoError(t, err)
	assert.Equal(t, "file-uploaded", id)

	large := filepath.Join(dir, "scan.pdf")
	f, err := os.Create(large)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(remoteindex.MaxUploadBytes+1))
	require.NoError(t, f.Close())

	_, err = idx.UploadFile(context.Background(), large)
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprint(remoteindex.MaxUploadBytes))

	_, err = idx.UploadFile(context.Background(), filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestNewOpenAIIndexRequiresKey(t *testing.T) {
	_, err := remoteindex.NewOpenAIIndex(remoteindex.OpenAIConfig{}, nil)
	assert.Error(t, err)
}

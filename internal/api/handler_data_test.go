package api

import (
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-structdata/internal/datamgmt"
	"github.com/ryanbastic/go-structdata/internal/storage"
)

func TestConversations_CreateAndList(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/v1/conversations", map[string]any{"title": "finals"})
	expectStatus(t, w, http.StatusCreated)
	var c storage.Conversation
	decode(t, w, &c)
	if c.UserID != e.user || c.Title != "finals" {
		t.Errorf("conversation: got %+v", c)
	}

	other := uuid.New().String()
	e.doAs(t, other, http.MethodPost, "/v1/conversations", map[string]any{"title": "theirs"})

	w = e.do(t, http.MethodGet, "/v1/conversations", nil)
	expectStatus(t, w, http.StatusOK)
	var list []storage.Conversation
	decode(t, w, &list)
	if len(list) != 2 {
		t.Errorf("conversations: got %d, want 2 (own only)", len(list))
	}
}

func TestCreateData_ThenGet(t *testing.T) {
	e := newTestEnv(t)
	u := e.createTable(t, map[string]any{"team": "ravens"})

	if u.SchemaVersion != datamgmt.DefaultSchemaVersion {
		t.Errorf("schema_version: got %q", u.SchemaVersion)
	}
	if u.Version != 1 {
		t.Errorf("version: got %d, want 1", u.Version)
	}

	w := e.do(t, http.MethodGet, "/v1/structured-data/"+u.ID.String(), nil)
	expectStatus(t, w, http.StatusOK)
	var got storage.Unit
	decode(t, w, &got)
	if got.ID != u.ID || got.ConversationID != e.conv {
		t.Errorf("unit: got %+v", got)
	}
}

func TestCreateData_MissingDataType(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/v1/structured-data", map[string]any{"conversation_id": e.conv})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status: got %d, want 422\nbody: %s", w.Code, w.Body.String())
	}
}

func TestCreateData_ConversationOwnership(t *testing.T) {
	e := newTestEnv(t)

	w := e.doAs(t, uuid.New().String(), http.MethodPost, "/v1/structured-data", map[string]any{
		"conversation_id": e.conv,
		"data_type":       "table",
	})
	expectKind(t, w, http.StatusForbidden, datamgmt.KindForbidden)

	w = e.do(t, http.MethodPost, "/v1/structured-data", map[string]any{
		"conversation_id": uuid.New(),
		"data_type":       "table",
	})
	expectKind(t, w, http.StatusNotFound, datamgmt.KindNotFound)
}

func TestGetData_ForeignAndMissing(t *testing.T) {
	e := newTestEnv(t)
	u := e.createTable(t)

	w := e.doAs(t, uuid.New().String(), http.MethodGet, "/v1/structured-data/"+u.ID.String(), nil)
	expectKind(t, w, http.StatusForbidden, datamgmt.KindForbidden)

	w = e.do(t, http.MethodGet, "/v1/structured-data/"+uuid.New().String(), nil)
	expectKind(t, w, http.StatusNotFound, datamgmt.KindNotFound)
}

func TestGetData_ByMessage(t *testing.T) {
	e := newTestEnv(t)
	u := e.createTable(t)

	w := e.do(t, http.MethodGet, "/v1/structured-data/by-message/msg-42", nil)
	expectStatus(t, w, http.StatusOK)
	var got storage.Unit
	decode(t, w, &got)
	if got.ID != u.ID {
		t.Errorf("id: got %s, want %s", got.ID, u.ID)
	}

	w = e.do(t, http.MethodGet, "/v1/structured-data/by-message/msg-0", nil)
	expectKind(t, w, http.StatusNotFound, datamgmt.KindNotFound)
}

func TestListData_Filters(t *testing.T) {
	e := newTestEnv(t)
	e.createTable(t)
	w := e.do(t, http.MethodPost, "/v1/structured-data", map[string]any{
		"conversation_id": e.conv,
		"data_type":       "chart",
	})
	expectStatus(t, w, http.StatusCreated)

	w = e.do(t, http.MethodGet, "/v1/structured-data?data_type=chart", nil)
	expectStatus(t, w, http.StatusOK)
	var units []storage.Unit
	decode(t, w, &units)
	if len(units) != 1 || units[0].DataType != "chart" {
		t.Errorf("data_type filter: got %+v", units)
	}

	w = e.do(t, http.MethodGet, "/v1/structured-data?conversation_id="+uuid.New().String(), nil)
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &units)
	if len(units) != 0 {
		t.Errorf("conversation filter: got %d, want 0", len(units))
	}

	w = e.doAs(t, uuid.New().String(), http.MethodGet, "/v1/structured-data", nil)
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &units)
	if len(units) != 0 {
		t.Errorf("foreign caller: got %d units, want 0", len(units))
	}
}

func TestUpdateData_Partial(t *testing.T) {
	e := newTestEnv(t)
	u := e.createTable(t)

	w := e.do(t, http.MethodPut, "/v1/structured-data/"+u.ID.String(), map[string]any{"schema_version": "2.0"})
	expectStatus(t, w, http.StatusOK)
	var got storage.Unit
	decode(t, w, &got)
	if got.SchemaVersion != "2.0" || got.DataType != "table" {
		t.Errorf("update: got schema %q type %q", got.SchemaVersion, got.DataType)
	}
	if got.Version != u.Version+1 {
		t.Errorf("version: got %d, want %d", got.Version, u.Version+1)
	}
}

func TestUpdateData_Conflict(t *testing.T) {
	e := newTestEnv(t)
	u := e.createTable(t)

	e.store.ConflictNext = true
	w := e.do(t, http.MethodPut, "/v1/structured-data/"+u.ID.String(), map[string]any{"data_type": "grid"})
	expectKind(t, w, http.StatusConflict, datamgmt.KindConflict)
}

func TestDeleteData_SoftByDefault(t *testing.T) {
	e := newTestEnv(t)
	u := e.createTable(t)
	path := "/v1/structured-data/" + u.ID.String()

	w := e.do(t, http.MethodDelete, path, nil)
	expectStatus(t, w, http.StatusNoContent)

	if !e.store.HasUnit(u.ID) {
		t.Fatal("soft delete should keep the row")
	}
	w = e.do(t, http.MethodGet, path, nil)
	expectKind(t, w, http.StatusNotFound, datamgmt.KindNotFound)

	w = e.do(t, http.MethodGet, path+"/history", nil)
	expectStatus(t, w, http.StatusOK)
	var entries []storage.HistoryEntry
	decode(t, w, &entries)
	if len(entries) != 2 || entries[0].ChangeType != storage.ChangeDeleteData {
		t.Errorf("history after soft delete: got %+v", entries)
	}
}

func TestDeleteData_Hard(t *testing.T) {
	e := newTestEnv(t)
	u := e.createTable(t)

	w := e.do(t, http.MethodDelete, "/v1/structured-data/"+u.ID.String()+"?soft_delete=false", nil)
	expectStatus(t, w, http.StatusNoContent)
	if e.store.HasUnit(u.ID) {
		t.Error("hard delete should remove the row")
	}
	if n := len(e.store.Entries(u.ID)); n != 2 {
		t.Errorf("history entries: got %d, want 2", n)
	}
}

func TestPersistenceFailure_HidesDetail(t *testing.T) {
	e := newTestEnv(t)
	u := e.createTable(t)

	e.store.FailHistory = true
	w := e.do(t, http.MethodPost, "/v1/structured-data/"+u.ID.String()+"/rows", map[string]any{
		"row_data": map[string]any{"team": "bears"},
	})
	expectStatus(t, w, http.StatusInternalServerError)
	var body ErrorBody
	decode(t, w, &body)
	if body.Kind != datamgmt.KindPersistence || body.Message != "internal error" {
		t.Errorf("body: got %+v", body)
	}
}

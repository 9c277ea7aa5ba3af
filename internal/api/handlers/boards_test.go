package handlers_test

import (
	"net/http"
	"testing"

	"github.com/hugh/taskeasy/internal/api/handlers"
	"github.com/hugh/taskeasy/internal/database/models"
	"github.com/hugh/taskeasy/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardHandler_CreateDefaultsColumns(t *testing.T) {
	env := newTestEnv(t)

	var board handlers.BoardResponse
	rr := env.do(t, http.MethodPost, env.path("/boards"), map[string]string{"name": "Team"}, env.Token)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	testutil.ParseJSONResponse(t, rr, &board)

	require.Len(t, board.Columns, 3)
	names := []string{board.Columns[0].Name, board.Columns[1].Name, board.Columns[2].Name}
	assert.Equal(t, []string{"New", "Active", "Done"}, names)
	assert.Equal(t, env.Project.ID, board.ProjectID)
}

func TestBoardHandler_CreateValidation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, env.path("/boards"), map[string]string{"name": ""}, env.Token)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	body := map[string]interface{}{
		"name":    "Team",
		"columns": []map[string]interface{}{{"name": "Doing", "wipLimit": -1}},
	}
	rr = env.do(t, http.MethodPost, env.path("/boards"), body, env.Token)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestBoardHandler_GetCountsItemsPerColumn(t *testing.T) {
	env := newTestEnv(t)
	board := createBoard(t, env, "Todo", "Doing")
	for i := 0; i < 2; i++ {
		testutil.CreateTestWorkItem(t, env.DB, env.Project, "todo", func(w *models.WorkItem) {
			w.BoardID = &board.ID
			w.ColumnID = board.Columns[0].ID
		})
	}

	var got handlers.BoardResponse
	rr := env.do(t, http.MethodGet, env.path("/boards/"+board.ID.String()), nil, env.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.ParseJSONResponse(t, rr, &got)

	assert.Equal(t, int64(2), got.ItemCounts[board.Columns[0].ID])
	assert.Equal(t, int64(0), got.ItemCounts[board.Columns[1].ID])
}

func TestBoardHandler_UpdateKeepsColumnIDs(t *testing.T) {
	env := newTestEnv(t)
	board := createBoard(t, env, "Todo")
	keptID := board.Columns[0].ID

	body := map[string]interface{}{
		"columns": []map[string]interface{}{
			{"id": keptID, "name": "Backlog"},
			{"id": "made-up", "name": "Review"},
		},
	}
	var got handlers.BoardResponse
	rr := env.do(t, http.MethodPatch, env.path("/boards/"+board.ID.String()), body, env.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.ParseJSONResponse(t, rr, &got)

	require.Len(t, got.Columns, 2)
	assert.Equal(t, keptID, got.Columns[0].ID)
	assert.Equal(t, "Backlog", got.Columns[0].Name)
	assert.NotEqual(t, "made-up", got.Columns[1].ID)
	assert.Equal(t, 1, got.Columns[1].Order)

	rr = env.do(t, http.MethodPatch, env.path("/boards/"+board.ID.String()),
		map[string]interface{}{"columns": []interface{}{}}, env.Token)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestBoardHandler_UpdateMovesItemsOffDroppedColumns(t *testing.T) {
	env := newTestEnv(t)
	board := createBoard(t, env, "Todo", "Doing", "Done")
	other := createBoard(t, env, "Todo", "Doing")
	todo, doing := board.Columns[0], board.Columns[1]

	stranded := testutil.CreateTestWorkItem(t, env.DB, env.Project, "in doing", func(w *models.WorkItem) {
		w.BoardID = &board.ID
		w.ColumnID = doing.ID
	})
	elsewhere := testutil.CreateTestWorkItem(t, env.DB, env.Project, "other board", func(w *models.WorkItem) {
		w.BoardID = &other.ID
		w.ColumnID = other.Columns[1].ID
	})

	body := map[string]interface{}{
		"columns": []map[string]interface{}{
			{"id": todo.ID, "name": "Todo"},
			{"name": "Shipped"},
		},
	}
	rr := env.do(t, http.MethodPatch, env.path("/boards/"+board.ID.String()), body, env.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var moved, untouched models.WorkItem
	require.NoError(t, env.DB.First(&moved, "id = ?", stranded.ID).Error)
	require.NoError(t, env.DB.First(&untouched, "id = ?", elsewhere.ID).Error)
	assert.Equal(t, todo.ID, moved.ColumnID)
	assert.Equal(t, other.Columns[1].ID, untouched.ColumnID)

	var got handlers.BoardResponse
	rr = env.do(t, http.MethodGet, env.path("/boards/"+board.ID.String()), nil, env.Token)
	testutil.ParseJSONResponse(t, rr, &got)
	assert.Equal(t, int64(1), got.ItemCounts[todo.ID])
}

func TestBoardHandler_DeleteDetachesItems(t *testing.T) {
	env := newTestEnv(t)
	board := createBoard(t, env, "Todo")
	item := testutil.CreateTestWorkItem(t, env.DB, env.Project, "on board", func(w *models.WorkItem) {
		w.BoardID = &board.ID
		w.ColumnID = board.Columns[0].ID
	})

	rr := env.do(t, http.MethodDelete, env.path("/boards/"+board.ID.String()), nil, env.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var stored models.WorkItem
	require.NoError(t, env.DB.First(&stored, "id = ?", item.ID).Error)
	assert.Nil(t, stored.BoardID)
	assert.Empty(t, stored.ColumnID)

	rr = env.do(t, http.MethodDelete, env.path("/boards/"+board.ID.String()), nil, env.Token)
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestBoardHandler_CrossTenantNotFound(t *testing.T) {
	env := newTestEnv(t)
	stranger, _ := env.Outsider(t)
	foreignProject := testutil.CreateTestProject(t, env.DB, stranger)
	foreign := &models.Board{ProjectID: foreignProject.ID, Name: "theirs", CreatedBy: stranger.ID}
	require.NoError(t, env.DB.Create(foreign).Error)

	rr := env.do(t, http.MethodGet, env.path("/boards/"+foreign.ID.String()), nil, env.Token)
	testutil.AssertStatus(t, rr, http.StatusNotFound)

	var list page[models.Board]
	rr = env.do(t, http.MethodGet, env.path("/boards"), nil, env.Token)
	testutil.ParseJSONResponse(t, rr, &list)
	assert.Empty(t, list.Data)
}

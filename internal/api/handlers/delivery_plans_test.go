package handlers_test

import (
	"net/http"
	"testing"

	"github.com/hugh/taskeasy/internal/api/dto"
	"github.com/hugh/taskeasy/internal/database/models"
	"github.com/hugh/taskeasy/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliveryPlanHandler_Create(t *testing.T) {
	env := newTestEnv(t)
	sprint := createSprint(t, env, "Sprint", "2024-01-01", "2024-01-14")

	body := map[string]interface{}{
		"name":      "Q1",
		"startDate": "2024-01-01",
		"endDate":   "2024-03-31",
		"sprintIds": []string{sprint.ID.String(), sprint.ID.String()},
		"milestones": []map[string]interface{}{
			{"title": "Beta", "date": "2024-02-15"},
		},
	}
	var plan models.DeliveryPlan
	rr := env.do(t, http.MethodPost, env.path("/delivery-plans"), body, env.Token)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	testutil.ParseJSONResponse(t, rr, &plan)

	assert.Equal(t, env.Project.ID, plan.ProjectID)
	require.Len(t, plan.SprintIDs, 1)
	assert.Equal(t, sprint.ID, plan.SprintIDs[0])
	require.Len(t, plan.Milestones, 1)
	assert.NotEmpty(t, plan.Milestones[0].ID)
	assert.Equal(t, "Beta", plan.Milestones[0].Title)
}

func TestDeliveryPlanHandler_RejectsForeignSprint(t *testing.T) {
	env := newTestEnv(t)
	stranger, _ := env.Outsider(t)
	foreignProject := testutil.CreateTestProject(t, env.DB, stranger)
	foreign := models.Sprint{ProjectID: foreignProject.ID, Name: "theirs", State: models.SprintStatePlanned}
	require.NoError(t, env.DB.Create(&foreign).Error)

	body := map[string]interface{}{"name": "Q1", "sprintIds": []string{foreign.ID.String()}}
	rr := env.do(t, http.MethodPost, env.path("/delivery-plans"), body, env.Token)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	var resp dto.ErrorResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Equal(t, "Sprint not found", resp.Details["sprintIds"])
}

func TestDeliveryPlanHandler_UpdateKeepsMilestoneIDs(t *testing.T) {
	env := newTestEnv(t)

	var plan models.DeliveryPlan
	rr := env.do(t, http.MethodPost, env.path("/delivery-plans"), map[string]interface{}{
		"name":       "Release",
		"milestones": []map[string]interface{}{{"title": "Alpha"}},
	}, env.Token)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	testutil.ParseJSONResponse(t, rr, &plan)
	alphaID := plan.Milestones[0].ID

	path := env.path("/delivery-plans/" + plan.ID.String())
	rr = env.do(t, http.MethodPatch, path, map[string]interface{}{
		"milestones": []map[string]interface{}{
			{"id": alphaID, "title": "Alpha", "done": true},
			{"title": "GA"},
		},
	}, env.Token)
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.ParseJSONResponse(t, rr, &plan)

	require.Len(t, plan.Milestones, 2)
	assert.Equal(t, alphaID, plan.Milestones[0].ID)
	assert.True(t, plan.Milestones[0].Done)
	assert.NotEqual(t, alphaID, plan.Milestones[1].ID)

	rr = env.do(t, http.MethodPatch, path, map[string]string{"startDate": "2024-05-01", "endDate": "2024-04-01"}, env.Token)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestDeliveryPlanHandler_Delete(t *testing.T) {
	env := newTestEnv(t)
	plan := models.DeliveryPlan{ProjectID: env.Project.ID, Name: "Old"}
	require.NoError(t, env.DB.Create(&plan).Error)
	path := env.path("/delivery-plans/" + plan.ID.String())

	testutil.AssertStatus(t, env.do(t, http.MethodDelete, path, nil, env.Token), http.StatusOK)
	testutil.AssertStatus(t, env.do(t, http.MethodDelete, path, nil, env.Token), http.StatusNotFound)
	testutil.AssertStatus(t, env.do(t, http.MethodGet, path, nil, env.Token), http.StatusNotFound)
}

package webui_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/julo/statusflow"
	"github.com/julo/statusflow/adapters/memlock"
	"github.com/julo/statusflow/adapters/memqueue"
	"github.com/julo/statusflow/adapters/memstore"
	"github.com/julo/statusflow/adapters/webui"
	"github.com/julo/statusflow/lending"
)

func TestNewHandler(t *testing.T) {
	registry, err := lending.NewRegistry(lending.Config{})
	jtest.RequireNil(t, err)

	store := memstore.New()
	e := statusflow.New(registry, store, memlock.New(), memqueue.New())
	for _, id := range []string{"app-1", "app-2", "app-3"} {
		_, err := e.Create(t.Context(), statusflow.CreateRequest{
			Workflow: lending.WorkflowJuloOne,
			EntityID: id,
			Initial:  lending.StatusFormSubmitted,
			Actor:    statusflow.Actor{ID: "cust-" + id, Role: statusflow.RoleCustomer},
		})
		jtest.RequireNil(t, err)
	}

	srv := httptest.NewServer(webui.NewHandler("", registry, store))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page bytes.Buffer
	_, err = page.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, page.String(), "Autodebet-BCA")

	resp, err = http.Post(srv.URL+"/api/v1/list", "application/json",
		bytes.NewReader([]byte(`{"workflow":"JuloOne","status":110,"limit":2}`)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Items []struct {
			EntityID    string `json:"entity_id"`
			StatusLabel string `json:"status_label"`
		} `json:"items"`
		NextAfterID string `json:"next_after_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Items, 2)
	require.Equal(t, "app-1", list.Items[0].EntityID)
	require.Equal(t, "FORM_SUBMITTED", list.Items[0].StatusLabel)
	require.Equal(t, "app-2", list.NextAfterID)

	resp, err = http.Post(srv.URL+"/api/v1/history", "application/json",
		bytes.NewReader([]byte(`{"workflow":"JuloOne","entity_id":"app-3"}`)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

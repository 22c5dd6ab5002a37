package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/julo/statusflow"
	"github.com/julo/statusflow/adapters/webui/internal/api"
)

func label(code statusflow.StatusCode) string {
	return map[statusflow.StatusCode]string{
		110: "FORM_SUBMITTED",
		185: "CUSTOMER_ON_DELETION",
	}[code]
}

func TestListHandler(t *testing.T) {
	testCases := []struct {
		name               string
		request            api.ListRequest
		expectedLimit      int
		listResponse       []statusflow.Entity
		expectedResponse   api.ListResponse
		expectedStatusCode int
	}{
		{
			name: "Golden path",
			request: api.ListRequest{
				Workflow: "JuloOne",
				Status:   110,
				Limit:    5,
			},
			expectedLimit: 5,
			listResponse: []statusflow.Entity{
				{Workflow: "JuloOne", ID: "app-1", Status: 110, Version: 1},
				{Workflow: "JuloOne", ID: "app-2", Status: 110, Version: 3},
			},
			expectedResponse: api.ListResponse{
				Items: []api.ListItem{
					{Workflow: "JuloOne", EntityID: "app-1", Status: 110, StatusLabel: "FORM_SUBMITTED", Version: 1},
					{Workflow: "JuloOne", EntityID: "app-2", Status: 110, StatusLabel: "FORM_SUBMITTED", Version: 3},
				},
			},
			expectedStatusCode: 200,
		},
		{
			name: "Full page returns cursor",
			request: api.ListRequest{
				Workflow: "JuloOne",
				Status:   185,
				AfterID:  "app-1",
				Limit:    1,
			},
			expectedLimit: 1,
			listResponse: []statusflow.Entity{
				{Workflow: "JuloOne", ID: "app-2", Status: 185, Version: 2},
			},
			expectedResponse: api.ListResponse{
				Items: []api.ListItem{
					{Workflow: "JuloOne", EntityID: "app-2", Status: 185, StatusLabel: "CUSTOMER_ON_DELETION", Version: 2},
				},
				NextAfterID: "app-2",
			},
			expectedStatusCode: 200,
		},
		{
			name: "Default limit",
			request: api.ListRequest{
				Workflow: "JuloOne",
				Status:   110,
			},
			expectedLimit: 50,
			expectedResponse: api.ListResponse{
				Items: []api.ListItem{},
			},
			expectedStatusCode: 200,
		},
		{
			name: "Limit is capped",
			request: api.ListRequest{
				Workflow: "JuloOne",
				Status:   110,
				Limit:    10_000,
			},
			expectedLimit: 500,
			expectedResponse: api.ListResponse{
				Items: []api.ListItem{},
			},
			expectedStatusCode: 200,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				listFn := func(ctx context.Context, workflow string, status statusflow.StatusCode, afterID string, limit int) ([]statusflow.Entity, error) {
					// Stores have their own conformance tests. Only the mapping of the request is checked here.
					require.Equal(t, tc.request.Workflow, workflow)
					require.Equal(t, statusflow.StatusCode(tc.request.Status), status)
					require.Equal(t, tc.request.AfterID, afterID)
					require.Equal(t, tc.expectedLimit, limit)

					return tc.listResponse, nil
				}
				api.List(listFn, label)(w, r)
			}))
			t.Cleanup(srv.Close)

			body, err := json.Marshal(tc.request)
			require.NoError(t, err)

			resp, err := http.Post(srv.URL, "application/json", bytes.NewReader(body))
			require.NoError(t, err)

			require.Equal(t, tc.expectedStatusCode, resp.StatusCode)

			respBody, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			var actualResp api.ListResponse
			err = json.Unmarshal(respBody, &actualResp)
			require.NoError(t, err)

			require.Equal(t, tc.expectedResponse, actualResp)
		})
	}
}

func TestListHandlerBadRequest(t *testing.T) {
	srv := httptest.NewServer(api.List(func(context.Context, string, statusflow.StatusCode, string, int) ([]statusflow.Entity, error) {
		t.Fatal("store should not be called")
		return nil, nil
	}, label))
	t.Cleanup(srv.Close)

	for _, body := range []string{`not json`, `{"workflow":"JuloOne"}`, `{"status":110}`} {
		resp, err := http.Post(srv.URL, "application/json", bytes.NewReader([]byte(body)))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
}

package ping

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Captain-Subtext/level5-courseware-sub000/testutils"
	"github.com/Captain-Subtext/level5-courseware-sub000/utils"

	"github.com/stretchr/testify/assert"
)

func TestHandlePing(t *testing.T) {
	testutils.InitTestMain()

	r := testutils.SetupTestRouter()
	h := New()
	r.GET("/ping", h.HandlePing)

	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)

	var response utils.Response
	err := json.Unmarshal(resp.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.True(t, response.Success)
	assert.Equal(t, "Ping successful", response.Message)
}

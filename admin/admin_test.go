/*
Copyright (c) The llsec Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshsec/llsec/nbr"
)

func addrOf(b byte) nbr.Addr {
	return nbr.Addr{0, 0, 0, 0, 0, 0, 0, b}
}

func TestHandleNeighborsReportsPermanentAndTentative(t *testing.T) {
	table := nbr.NewTable(8, 2, true, false)

	perm, err := table.New(addrOf(1), nbr.StatusPermanent)
	require.NoError(t, err)
	perm.Permanent.Expiration = time.Now().Add(time.Hour)

	_, err = table.New(addrOf(2), nbr.StatusTentative)
	require.NoError(t, err)

	s := NewServer(table, "")
	req := httptest.NewRequest(http.MethodGet, "/neighbors", nil)
	rec := httptest.NewRecorder()
	s.handleNeighbors(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"permanent"`)
	assert.Contains(t, rec.Body.String(), `"tentative"`)
}

func TestHandleNeighborsEmptyTableReturnsEmptyArray(t *testing.T) {
	table := nbr.NewTable(8, 2, true, false)
	s := NewServer(table, "")
	req := httptest.NewRequest(http.MethodGet, "/neighbors", nil)
	rec := httptest.NewRecorder()
	s.handleNeighbors(rec, req)

	assert.Equal(t, "[]\n", rec.Body.String())
}

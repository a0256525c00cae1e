package commands

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemonet1337/zaiReplenish/pkg/replenishment"
)

var fixturePath = filepath.Join("..", "..", "..", "pkg", "replenishment", "memory", "testdata", "two_level.yaml")

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPlanCommand_Summary(t *testing.T) {
	out, err := execute(t, "plan", "--fixture", fixturePath)
	require.NoError(t, err)

	assert.Contains(t, out, "PO-2024-0001")
	assert.Contains(t, out, "200.00")
	assert.Contains(t, out, "2024-01-11")
	assert.Contains(t, out, "WH-CHILD")
}

func TestPlanCommand_JSON(t *testing.T) {
	out, err := execute(t, "plan", "--fixture", fixturePath, "--json", "--write")
	require.NoError(t, err)

	var plan replenishment.Plan
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Equal(t, 22.0, plan.Quantities["X"])
	require.Len(t, plan.Lines, 1)
	assert.Equal(t, 24.0, plan.Lines[0].Quantity)
}

func TestPlanCommand_Errors(t *testing.T) {
	_, err := execute(t, "plan")
	assert.Error(t, err)

	_, err = execute(t, "plan", "--fixture", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRunOptions_Requests(t *testing.T) {
	opts := &runOptions{supplierID: "SUP-1", warehouses: []string{"WH-A", "WH-B"}, periodDays: 30, date: "2024-03-01"}

	reqs, err := opts.requests()
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "WH-B", reqs[1].WarehouseID)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), reqs[0].Now)

	opts.orderID = "PO-1"
	_, err = opts.requests()
	assert.Error(t, err)

	opts = &runOptions{supplierID: "SUP-1", warehouses: []string{"WH-A"}, date: "01/03/2024"}
	_, err = opts.requests()
	assert.Error(t, err)

	opts = &runOptions{supplierID: "", warehouses: []string{"WH-A"}}
	_, err = opts.requests()
	assert.Error(t, err)
}

package export

import (
	"bytes"
	"strings"
	"testing"

	"expensehub/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var rows = []core.ExportRow{
	{ID: 1, Time: "2023-11-14T22:13:20Z", User: "ada", Organisation: "Acme", Project: "ProjectX",
		Location: "Office", Category: "Travel", Type: "OFFICIAL", Amount: "42.50", Billed: "false"},
	{ID: 4, Time: "2023-11-15T08:00:00Z", User: "ada", Organisation: "Acme", Project: "ProjectY",
		Location: "Office", Type: "OFFICIAL", Amount: "7.00", Billed: "true", BillID: "BILL-99"},
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, XLSX, f)

	f, err = ParseFormat("csv")
	require.NoError(t, err)
	assert.Equal(t, CSV, f)
	assert.Equal(t, "expenses.csv", f.Filename())

	_, err = ParseFormat("pdf")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, CSV, rows))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(core.ExportHeader, ","), lines[0])
	assert.Equal(t, "1,2023-11-14T22:13:20Z,ada,Acme,ProjectX,Office,Travel,OFFICIAL,42.50,false,", lines[1])
	assert.Equal(t, "4,2023-11-15T08:00:00Z,ada,Acme,ProjectY,Office,,OFFICIAL,7.00,true,BILL-99", lines[2])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, strings.Join(core.ExportHeader, ","), strings.TrimSpace(buf.String()))
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, XLSX, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, core.ExportHeader, got[0])
	assert.Equal(t, "ProjectX", got[1][4])
	assert.Equal(t, "42.5", got[1][8])
	assert.Equal(t, "BILL-99", got[2][10])
}

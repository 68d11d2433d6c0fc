package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docFrom(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc.Selection
}

func TestField_CascadesAndCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	root := docFrom(t, `
		<div id="MainContent_lblOwner">  SMITH   JOHN </div>
		<div id="MainContent_lblGenOwner">FALLBACK OWNER</div>`)

	assert.Equal(t, "SMITH JOHN",
		Field(root, "#MainContent_lblOwner", "#MainContent_lblGenOwner"))
	assert.Equal(t, "FALLBACK OWNER",
		Field(root, "#MainContent_lblMissing", "#MainContent_lblGenOwner"))
}

func TestField_AbsenceIsEmptyNotError(t *testing.T) {
	t.Parallel()

	root := docFrom(t, `<div id="other">x</div>`)
	assert.Equal(t, "", Field(root, "#MainContent_lblSaleDate"))
	assert.Equal(t, "", Field(root))
}

func TestAttr(t *testing.T) {
	t.Parallel()

	root := docFrom(t, `<img id="MainContent_ctl01_imgPhoto" src="photos/1.jpg">`)
	assert.Equal(t, "photos/1.jpg", Attr(root, "src", "#MainContent_ctl01_imgPhoto"))
	assert.Equal(t, "", Attr(root, "src", "#MainContent_ctl02_imgPhoto"))
}

func TestTable_StyledHeaderRows(t *testing.T) {
	t.Parallel()

	root := docFrom(t, `
		<table id="MainContent_grdSales">
			<tr class="HeaderStyle"><th>Owner</th><th>Sale Price</th><th>Sale Date</th></tr>
			<tr class="RowStyle"><td>DOE JANE</td><td>$310,000</td><td>04/12/2019</td></tr>
			<tr class="AltRowStyle"><td>ROE RICHARD</td><td>$1</td><td>01/05/2004</td></tr>
		</table>`)

	rows := Table(root, "#MainContent_grdSales")
	require.Len(t, rows, 2)
	assert.Equal(t, "DOE JANE", rows[0].Get("Owner"))
	assert.Equal(t, "$310,000", rows[0].Get("Sale Price"))
	assert.Equal(t, "ROE RICHARD", rows[1].Get("Owner"))
}

func TestTable_TheadFallback(t *testing.T) {
	t.Parallel()

	root := docFrom(t, `
		<table id="grid">
			<thead><tr><th>Code</th><th>Description</th></tr></thead>
			<tbody><tr><td>BAS</td><td>First Floor</td></tr></tbody>
		</table>`)

	rows := Table(root, "#grid")
	require.Len(t, rows, 1)
	assert.Equal(t, "BAS", rows[0].Get("Code"))
	assert.Equal(t, "First Floor", rows[0].Get("Description"))
}

func TestTable_FirstRowGenericFallback(t *testing.T) {
	t.Parallel()

	root := docFrom(t, `
		<table id="grid">
			<tr><td>Year</td><td>Assessment</td></tr>
			<tr><td>2024</td><td>$412,300</td></tr>
		</table>`)

	rows := Table(root, "#grid")
	require.Len(t, rows, 1)
	assert.Equal(t, "2024", rows[0].Get("Year"))
}

func TestTable_HeaderCellMismatchFallsBackToPositional(t *testing.T) {
	t.Parallel()

	root := docFrom(t, `
		<table id="grid">
			<tr class="HeaderStyle"><th>A</th><th>B</th></tr>
			<tr class="RowStyle"><td>1</td><td>2</td><td>3</td></tr>
		</table>`)

	rows := Table(root, "#grid")
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Values)
	assert.Equal(t, []string{"1", "2", "3"}, rows[0].Cells)
}

func TestTable_MissingTableAndEmptyRows(t *testing.T) {
	t.Parallel()

	root := docFrom(t, `
		<table id="grid">
			<tr class="HeaderStyle"><th>A</th></tr>
			<tr class="RowStyle"><td>  </td></tr>
		</table>`)

	assert.Nil(t, Table(root, "#missing"))
	assert.Empty(t, Table(root, "#grid"))
}

func TestRow_GetAcceptsHeaderSpellings(t *testing.T) {
	t.Parallel()

	row := Row{Values: map[string]string{"Gross Area": "1,200"}}
	assert.Equal(t, "1,200", row.Get("GrossArea", "Gross Area"))
	assert.Equal(t, "", row.Get("Living Area"))
}

func TestRow_IsNoData(t *testing.T) {
	t.Parallel()
	assert.True(t, Row{Cells: []string{"No Data for Extra Features"}}.IsNoData())
	assert.False(t, Row{Cells: []string{"FPL1", "Fireplace"}}.IsNoData())
}

// TestCapturedDetailPage runs the primitives against a captured detail page
// fragment, covering the styled grids, a "No Data" placeholder, and a
// label/value fieldset in one document.
func TestCapturedDetailPage(t *testing.T) {
	t.Parallel()

	raw, err := os.ReadFile(filepath.Join("testdata", "assessment_grids.html"))
	require.NoError(t, err)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
	require.NoError(t, err)
	root := doc.Selection

	asmt := Table(root, "#MainContent_grdCurrentValueAsmt")
	require.Len(t, asmt, 1)
	assert.Equal(t, "2026", asmt[0].Get("Valuation Year"))
	assert.Equal(t, "$385,100", asmt[0].Get("Total"))

	sales := Table(root, "#MainContent_grdSales")
	require.Len(t, sales, 2)
	assert.Equal(t, "NGUYEN LINH", sales[0].Get("Owner"))
	assert.Equal(t, "06/14/1998", sales[1].Get("Sale Date"))

	xf := Table(root, "#MainContent_grdXf")
	require.Len(t, xf, 1)
	assert.True(t, xf[0].IsNoData())

	pairs := LabeledPairs(root.Find("#MainContent_ctl01_panView"))
	assert.Equal(t, "Two Family", pairs["style"])
	assert.Equal(t, "1915", pairs["year_built"])
	assert.Equal(t, "Gas", pairs["heating_fuel"])
}

func TestLabeledPairs(t *testing.T) {
	t.Parallel()

	root := docFrom(t, `
		<fieldset>
			<table>
				<tr><td>Use Code:</td><td>101</td></tr>
				<tr><td>Topography Legend</td><td>Level</td></tr>
				<tr><td></td><td>skipped</td></tr>
			</table>
		</fieldset>`)

	pairs := LabeledPairs(root)
	assert.Equal(t, "101", pairs["use_code"])
	assert.Equal(t, "Level", pairs["topography"])
	assert.Len(t, pairs, 2)
}

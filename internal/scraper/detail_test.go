package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parcelworks/assessor-scraper/internal/geocode"
	"github.com/parcelworks/assessor-scraper/internal/store"
)

type fakeGeocoder struct {
	result *geocode.Result
	err    error
	calls  []string
}

func (g *fakeGeocoder) Geocode(_ context.Context, addr, city, state string) (*geocode.Result, error) {
	g.calls = append(g.calls, addr+", "+city+", "+state)
	return g.result, g.err
}

func detailRef() store.ParcelRef {
	return store.ParcelRef{
		ParcelID:  "101748",
		Address:   "123 MAIN ST",
		DetailURL: testBaseURL + "Parcel.aspx?pid=101748",
		Street:    "MAIN ST",
	}
}

func newDetailScraper(t *testing.T, geocoder Geocoder) (*DetailScraper, *fakePager) {
	t.Helper()
	pager := &fakePager{
		docs: map[string]*goquery.Document{
			detailRef().DetailURL: loadDoc(t, "parcel_101748.html"),
		},
	}
	s := NewDetailScraper(pager, zap.NewNop(), geocoder, "Worcester", "MA")
	s.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return s, pager
}

func TestDetailScraperScrape(t *testing.T) {
	geocoder := &fakeGeocoder{result: &geocode.Result{
		Lat:        42.2626,
		Lng:        -71.8023,
		Provider:   "census",
		Confidence: 1.0,
	}}
	s, _ := newDetailScraper(t, geocoder)

	record, err := s.Scrape(context.Background(), detailRef())
	require.NoError(t, err)

	assert.Equal(t, "101748", record.ParcelID)
	assert.Equal(t, detailRef().DetailURL, record.URL)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), record.ScrapedAt)

	assert.Equal(t, "123 MAIN ST", record.BasicInfo.Location)
	assert.Equal(t, "06/ 028/ 00013/ /", record.BasicInfo.MBLU)
	assert.Equal(t, "55-101748", record.BasicInfo.AccountNumber)
	assert.Equal(t, "2", record.BasicInfo.BuildingCount)
	assert.Equal(t, "101748", record.BasicInfo.ParcelIDDisplay)

	assert.Equal(t, "SMITH JOHN", record.OwnerInfo.Name)
	assert.Equal(t, "SMITH MARY", record.OwnerInfo.CoOwner)
	assert.Equal(t, "123 MAIN ST", record.OwnerInfo.MailingAddress)
	assert.Equal(t, "WORCESTER, MA 01610", record.OwnerInfo.MailingCityStateZip)
	assert.Equal(t, "123 MAIN ST, WORCESTER, MA 01610", record.OwnerInfo.FullMailingAddress)

	assert.Equal(t, "$350,000", record.CurrentSale.Price)
	assert.Equal(t, "06/15/2019", record.CurrentSale.Date)
	assert.Equal(t, "60123/0245", record.CurrentSale.BookPage)
	assert.Equal(t, "WARRANTY DEED", record.CurrentSale.DeedType)
	assert.Equal(t, "BROWN ROBERT", record.CurrentSale.Grantor)

	// The valuation grid overrides the summary label total.
	assert.Equal(t, "$300,100", record.Assessment.Total)
	assert.Equal(t, "2025", record.Assessment.ValuationYear)
	assert.Equal(t, "$215,700", record.Assessment.Improvements)
	assert.Equal(t, "$84,400", record.Assessment.Land)

	assert.Equal(t, "1010", record.LandInfo.UseCode)
	assert.Equal(t, "SINGLE FAM", record.LandInfo.Description)
	assert.Equal(t, "RS-7", record.LandInfo.Zone)
	assert.Equal(t, "0.17", record.LandInfo.SizeAcres)
	assert.Equal(t, "$84,400", record.LandInfo.AssessedValue)
	assert.Equal(t, "Level", record.LandInfo.Topography)
	require.Len(t, record.LandInfo.LandLines, 1)
	assert.Equal(t, "$84,400", record.LandInfo.LandLines[0]["Assessed Value"])

	assert.Equal(t, "$4,312.44", record.TaxInfo.TaxAmount)
	assert.Equal(t, "2025", record.TaxInfo.TaxYear)
	assert.Equal(t, "$14.37", record.TaxInfo.TaxRate)

	require.Len(t, record.SalesHistory, 2)
	assert.Equal(t, "BROWN ROBERT", record.SalesHistory[1]["Owner"])
	require.Len(t, record.ValuationHistory, 2)
	assert.Equal(t, "$281,400", record.ValuationHistory[0]["Total"])
	require.Len(t, record.Outbuildings, 1)
	assert.Equal(t, "Shed", record.Outbuildings[0]["Description"])
	require.Len(t, record.Permits, 1)
	assert.Equal(t, "Roofing", record.Permits[0]["Type"])

	// The extra features grid renders only a "No Data" placeholder and the
	// exemptions grid has no rows at all.
	assert.Empty(t, record.ExtraFeatures)
	assert.Empty(t, record.Exemptions)

	require.NotNil(t, record.Geocode)
	assert.Equal(t, "census", record.Geocode.Provider)
	assert.Equal(t, []string{"123 MAIN ST, Worcester, MA"}, geocoder.calls)
}

func TestDetailScraperBuildings(t *testing.T) {
	s, _ := newDetailScraper(t, nil)

	record, err := s.Scrape(context.Background(), detailRef())
	require.NoError(t, err)
	require.Len(t, record.Buildings, 2)

	first := record.Buildings[0]
	assert.Equal(t, 1, first.BuildingNumber)
	assert.Equal(t, "1925", first.YearBuilt)
	assert.Equal(t, "1,848", first.LivingAreaSqft)
	assert.Equal(t, "$310,500", first.ReplacementCost)
	assert.Equal(t, "68", first.PercentGood)
	assert.Equal(t, "$211,100", first.BuildingValue)
	assert.Equal(t, "1970", first.EffectiveYear)

	assert.Equal(t, map[string]string{
		"style":       "Colonial",
		"heat_type":   "Forced Air",
		"total_rooms": "7",
	}, first.Attributes)

	require.Len(t, first.SubAreas, 3)
	assert.Equal(t, "BAS", first.SubAreas[0].Code)
	require.NotNil(t, first.SubAreas[0].GrossArea)
	assert.Equal(t, 990.0, *first.SubAreas[0].GrossArea)
	assert.Equal(t, 2838.0, first.TotalGrossArea)
	assert.Equal(t, 1848.0, first.TotalLivingArea)

	require.Len(t, first.Photos, 1)
	assert.Equal(t, testBaseURL+"photos/101748_1.jpg", first.Photos[0].URL)
	assert.Equal(t, "building", first.Photos[0].Type)
	require.Len(t, first.Layouts, 1)
	assert.Equal(t, testBaseURL+"Sketches/101748_1.png", first.Layouts[0].URL)
	assert.Equal(t, "sketch", first.Layouts[0].Type)

	// Building two's photo is the placeholder image.
	second := record.Buildings[1]
	assert.Equal(t, "1972", second.YearBuilt)
	assert.Empty(t, second.Photos)
	assert.Empty(t, second.Layouts)
	assert.Empty(t, second.SubAreas)
}

func TestDetailScraperMedia(t *testing.T) {
	s, _ := newDetailScraper(t, nil)

	record, err := s.Scrape(context.Background(), detailRef())
	require.NoError(t, err)

	// Building photo plus the street-view extra; placeholders and duplicate
	// sources drop.
	require.Len(t, record.Photos, 2)
	assert.Equal(t, testBaseURL+"photos/101748_1.jpg", record.Photos[0].URL)
	assert.Equal(t, testBaseURL+"photos/101748_street.jpg", record.Photos[1].URL)
	assert.Equal(t, "additional", record.Photos[1].Type)
	assert.Equal(t, "Street View", record.Photos[1].Description)

	require.Len(t, record.Layouts, 1)
	assert.Equal(t, testBaseURL+"Sketches/101748_1.png", record.Layouts[0].URL)
}

func TestDetailScraperGeocodeFailure(t *testing.T) {
	geocoder := &fakeGeocoder{err: errors.New("provider down")}
	s, _ := newDetailScraper(t, geocoder)

	record, err := s.Scrape(context.Background(), detailRef())
	require.NoError(t, err)
	assert.Nil(t, record.Geocode)
	assert.Len(t, geocoder.calls, 1)
}

func TestDetailScraperNoDetailURL(t *testing.T) {
	s, pager := newDetailScraper(t, nil)

	_, err := s.Scrape(context.Background(), store.ParcelRef{ParcelID: "7"})
	require.Error(t, err)
	assert.Empty(t, pager.navCalls)
}

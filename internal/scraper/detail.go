package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/parcelworks/assessor-scraper/internal/extract"
	"github.com/parcelworks/assessor-scraper/internal/geocode"
	"github.com/parcelworks/assessor-scraper/internal/store"
)

// Parcel pages render up to nine building panels named ctl01..ctl09.
const maxBuildings = 9

// Geocoder resolves a situs address to coordinates. The detail stage treats
// geocoding as best-effort: a miss never fails the parcel.
type Geocoder interface {
	Geocode(ctx context.Context, addr, city, state string) (*geocode.Result, error)
}

// DetailScraper extracts the full record from a parcel detail page.
type DetailScraper struct {
	pager    Pager
	logger   *zap.Logger
	geocoder Geocoder
	city     string
	state    string
	now      func() time.Time
}

// NewDetailScraper builds a DetailScraper. geocoder may be nil to skip
// coordinate resolution; city and state qualify geocoding queries.
func NewDetailScraper(pager Pager, logger *zap.Logger, geocoder Geocoder, city, state string) *DetailScraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetailScraper{
		pager:    pager,
		logger:   logger,
		geocoder: geocoder,
		city:     city,
		state:    state,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Scrape loads a parcel detail page and extracts every section.
func (s *DetailScraper) Scrape(ctx context.Context, ref store.ParcelRef) (*ParcelRecord, error) {
	if ref.DetailURL == "" {
		return nil, fmt.Errorf("parcel %s has no detail url", ref.ParcelID)
	}
	doc, err := s.pager.Navigate(ctx, ref.DetailURL)
	if err != nil {
		return nil, fmt.Errorf("load parcel %s: %w", ref.ParcelID, err)
	}

	pageURL, err := url.Parse(ref.DetailURL)
	if err != nil {
		return nil, fmt.Errorf("parse detail url: %w", err)
	}

	root := doc.Selection
	record := &ParcelRecord{
		ParcelID:  ref.ParcelID,
		URL:       ref.DetailURL,
		ScrapedAt: s.now(),

		BasicInfo:   extractBasicInfo(root),
		OwnerInfo:   extractOwnerInfo(root),
		CurrentSale: extractCurrentSale(root),
		Assessment:  extractAssessment(root),
		Buildings:   extractBuildings(root, pageURL),
		LandInfo:    extractLandInfo(root),
		TaxInfo:     extractTaxInfo(root),

		SalesHistory:     rowMaps(extract.Table(root, "#MainContent_grdSales")),
		ValuationHistory: rowMaps(extract.Table(root, "#MainContent_grdHistoryValuesAsmt")),
		ExtraFeatures:    rowMaps(withoutNoData(extract.Table(root, "#MainContent_grdXf"))),
		Outbuildings:     rowMaps(extract.Table(root, "#MainContent_grdOb")),
		Permits:          rowMaps(extract.Table(root, "#MainContent_grdPermits")),
		Exemptions:       rowMaps(extract.Table(root, "#MainContent_grdExemptions")),
	}

	for _, bldg := range record.Buildings {
		record.Photos = append(record.Photos, bldg.Photos...)
		record.Layouts = append(record.Layouts, bldg.Layouts...)
	}
	record.Photos = append(record.Photos, additionalPhotos(root, pageURL, record.Photos)...)

	s.geocodeRecord(ctx, record)
	return record, nil
}

func (s *DetailScraper) geocodeRecord(ctx context.Context, record *ParcelRecord) {
	if s.geocoder == nil || record.BasicInfo.Location == "" {
		return
	}
	result, err := s.geocoder.Geocode(ctx, record.BasicInfo.Location, s.city, s.state)
	if err != nil {
		s.logger.Warn("geocoding failed",
			zap.String("parcel_id", record.ParcelID),
			zap.String("address", record.BasicInfo.Location),
			zap.Error(err),
		)
		return
	}
	record.Geocode = result
}

func extractBasicInfo(root *goquery.Selection) BasicInfo {
	return BasicInfo{
		Location:        extract.Field(root, "#MainContent_lblLocation"),
		MBLU:            extract.Field(root, "#MainContent_lblMblu"),
		AccountNumber:   extract.Field(root, "#MainContent_lblAcctNum"),
		BuildingCount:   extract.Field(root, "#MainContent_lblBldCount"),
		ParcelIDDisplay: extract.Field(root, "#MainContent_lblPid"),
	}
}

func extractOwnerInfo(root *goquery.Selection) OwnerInfo {
	info := OwnerInfo{
		Name:                extract.Field(root, "#MainContent_lblOwner", "#MainContent_lblGenOwner"),
		CoOwner:             extract.Field(root, "#MainContent_lblCoOwner"),
		MailingAddress:      extract.Field(root, "#MainContent_lblAddr1"),
		MailingCityStateZip: extract.Field(root, "#MainContent_lblAddr2"),
	}
	var lines []string
	for i := 1; i <= 4; i++ {
		if line := extract.Field(root, fmt.Sprintf("#MainContent_lblAddr%d", i)); line != "" {
			lines = append(lines, line)
		}
	}
	info.FullMailingAddress = strings.Join(lines, ", ")
	return info
}

func extractCurrentSale(root *goquery.Selection) CurrentSale {
	return CurrentSale{
		Price:       extract.Field(root, "#MainContent_lblPrice"),
		Date:        extract.Field(root, "#MainContent_lblSaleDate"),
		BookPage:    extract.Field(root, "#MainContent_lblBp"),
		Certificate: extract.Field(root, "#MainContent_lblCertificate"),
		Instrument:  extract.Field(root, "#MainContent_lblInstrument"),
		DeedType:    extract.Field(root, "#MainContent_lblDeedType"),
		Grantor:     extract.Field(root, "#MainContent_lblGrantor"),
	}
}

func extractAssessment(root *goquery.Selection) Assessment {
	assessment := Assessment{
		Total: extract.Field(root, "#MainContent_lblGenAssessment"),
	}
	rows := extract.Table(root, "#MainContent_grdCurrentValueAsmt")
	if len(rows) > 0 {
		row := rows[0]
		assessment.ValuationYear = row.Get("Valuation Year")
		assessment.Improvements = row.Get("Improvements")
		assessment.Land = row.Get("Land")
		if total := row.Get("Total"); total != "" {
			assessment.Total = total
		}
	}
	return assessment
}

func extractBuildings(root *goquery.Selection, pageURL *url.URL) []Building {
	var buildings []Building
	for idx := 1; idx <= maxBuildings; idx++ {
		prefix := fmt.Sprintf("#MainContent_ctl0%d", idx)
		yearBuilt := extract.Field(root, prefix+"_lblYearBuilt")
		if yearBuilt == "" {
			break
		}

		bldg := Building{
			BuildingNumber:  idx,
			YearBuilt:       yearBuilt,
			LivingAreaSqft:  extract.Field(root, prefix+"_lblBldArea"),
			ReplacementCost: extract.Field(root, prefix+"_lblRcn"),
			PercentGood:     extract.Field(root, prefix+"_lblPctGood"),
			Rcnld:           extract.Field(root, prefix+"_lblRcnld"),
			BuildingValue:   extract.Field(root, prefix+"_lblBldgAsmt"),
			EffectiveYear:   extract.Field(root, prefix+"_lblEffYr"),
			Depreciation:    extract.Field(root, prefix+"_lblDepr"),
			Attributes:      make(map[string]string),
		}

		for _, row := range extract.Table(root, prefix+"_grdCns") {
			field := strings.TrimSpace(strings.TrimSuffix(row.Get("Field"), ":"))
			if field == "" {
				continue
			}
			bldg.Attributes[extract.SnakeKey(field)] = row.Get("Description")
		}

		for _, row := range extract.Table(root, prefix+"_grdSub") {
			gross, grossOK := extract.Number(row.Get("Gross Area", "GrossArea", "Gross\nArea"))
			living, livingOK := extract.Number(row.Get("Living Area", "LivingArea", "Living\nArea"))
			sub := SubArea{
				Code:        row.Get("Code"),
				Description: row.Get("Description"),
			}
			if grossOK {
				g := gross
				sub.GrossArea = &g
				bldg.TotalGrossArea += gross
			}
			if livingOK {
				l := living
				sub.LivingArea = &l
				bldg.TotalLivingArea += living
			}
			bldg.SubAreas = append(bldg.SubAreas, sub)
		}

		if src := imageSrc(root, prefix+"_imgPhoto"); src != "" {
			bldg.Photos = append(bldg.Photos, Media{
				URL:         resolveRef(pageURL, src),
				Type:        "building",
				Description: fmt.Sprintf("Building %d Photo", idx),
			})
		}
		if src := imageSrc(root, prefix+"_imgSketch"); src != "" {
			bldg.Layouts = append(bldg.Layouts, Media{
				URL:         resolveRef(pageURL, src),
				Type:        "sketch",
				Description: fmt.Sprintf("Building %d Layout", idx),
			})
		}

		buildings = append(buildings, bldg)
	}
	return buildings
}

func extractLandInfo(root *goquery.Selection) LandInfo {
	return LandInfo{
		UseCode:       extract.Field(root, "#MainContent_lblUseCode"),
		Description:   extract.Field(root, "#MainContent_lblUseCodeDescription"),
		Zone:          extract.Field(root, "#MainContent_lblZone"),
		Neighborhood:  extract.Field(root, "#MainContent_lblNbhd"),
		SizeSqft:      extract.Field(root, "#MainContent_lblLndSf"),
		SizeAcres:     extract.Field(root, "#MainContent_lblLndAcres"),
		Frontage:      extract.Field(root, "#MainContent_lblFrontage"),
		Depth:         extract.Field(root, "#MainContent_lblDepth"),
		AssessedValue: extract.Field(root, "#MainContent_lblLndAsmt"),
		AltLandAppr:   extract.Field(root, "#MainContent_lblAltLand"),
		Category:      extract.Field(root, "#MainContent_lblCategory"),
		LandType:      extract.Field(root, "#MainContent_lblLandType"),
		Topography:    extract.Field(root, "#MainContent_lblTopo"),
		Utilities:     extract.Field(root, "#MainContent_lblUtil"),
		StreetType:    extract.Field(root, "#MainContent_lblStreetType"),
		Traffic:       extract.Field(root, "#MainContent_lblTraffic"),
		LandLines:     rowMaps(extract.Table(root, "#MainContent_grdLand")),
	}
}

func extractTaxInfo(root *goquery.Selection) TaxInfo {
	return TaxInfo{
		TaxAmount: extract.Field(root, "#MainContent_lblTaxAmt"),
		TaxYear:   extract.Field(root, "#MainContent_lblTaxYear"),
		TaxRate:   extract.Field(root, "#MainContent_lblTaxRate"),
	}
}

// additionalPhotos finds photo images outside the building panels, skipping
// placeholders and anything already captured.
func additionalPhotos(root *goquery.Selection, pageURL *url.URL, existing []Media) []Media {
	seen := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		seen[m.URL] = struct{}{}
	}
	var photos []Media
	root.Find("img[src*='photos'], img[src*='Photos']").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" || strings.Contains(strings.ToLower(src), "noimage") {
			return
		}
		full := resolveRef(pageURL, src)
		if _, dup := seen[full]; dup {
			return
		}
		seen[full] = struct{}{}
		photos = append(photos, Media{
			URL:         full,
			Type:        "additional",
			Description: img.AttrOr("alt", ""),
		})
	})
	return photos
}

func imageSrc(root *goquery.Selection, selector string) string {
	src := extract.Attr(root, "src", selector)
	if src == "" || strings.Contains(strings.ToLower(src), "noimage") {
		return ""
	}
	return src
}

func resolveRef(pageURL *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return pageURL.ResolveReference(ref).String()
}

func withoutNoData(rows []extract.Row) []extract.Row {
	out := rows[:0:0]
	for _, row := range rows {
		if !row.IsNoData() {
			out = append(out, row)
		}
	}
	return out
}

func rowMaps(rows []extract.Row) []map[string]string {
	if len(rows) == 0 {
		return nil
	}
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		if len(row.Values) > 0 {
			out = append(out, row.Values)
			continue
		}
		m := make(map[string]string, len(row.Cells))
		for i, cell := range row.Cells {
			m[strconv.Itoa(i)] = cell
		}
		out = append(out, m)
	}
	return out
}

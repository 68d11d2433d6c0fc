// Package scraper implements the site-specific extraction stages: street
// index, per-street listings, and parcel detail pages.
package scraper

import (
	"time"

	"github.com/parcelworks/assessor-scraper/internal/geocode"
)

// ParcelRecord is the full extracted document for one parcel. It is stored
// as JSON, so field tags mirror the persisted schema.
type ParcelRecord struct {
	ParcelID  string    `json:"pid"`
	URL       string    `json:"url"`
	ScrapedAt time.Time `json:"scraped_at"`

	BasicInfo   BasicInfo   `json:"basic_info"`
	OwnerInfo   OwnerInfo   `json:"owner_info"`
	CurrentSale CurrentSale `json:"current_sale"`
	Assessment  Assessment  `json:"assessment"`
	Buildings   []Building  `json:"buildings"`
	LandInfo    LandInfo    `json:"land_info"`
	TaxInfo     TaxInfo     `json:"tax_info"`

	SalesHistory     []map[string]string `json:"sales_history"`
	ValuationHistory []map[string]string `json:"valuation_history"`
	ExtraFeatures    []map[string]string `json:"extra_features"`
	Outbuildings     []map[string]string `json:"outbuildings"`
	Permits          []map[string]string `json:"permits"`
	Exemptions       []map[string]string `json:"exemptions"`

	Photos  []Media `json:"photos"`
	Layouts []Media `json:"layouts"`

	Geocode *geocode.Result `json:"geocode,omitempty"`
}

// BasicInfo holds the page header fields.
type BasicInfo struct {
	Location        string `json:"location"`
	MBLU            string `json:"mblu"`
	AccountNumber   string `json:"acct_number"`
	BuildingCount   string `json:"building_count"`
	ParcelIDDisplay string `json:"parcel_id_display"`
}

// OwnerInfo holds the owner-of-record fields.
type OwnerInfo struct {
	Name                string `json:"name"`
	CoOwner             string `json:"co_owner"`
	MailingAddress      string `json:"mailing_address"`
	MailingCityStateZip string `json:"mailing_city_state_zip"`
	FullMailingAddress  string `json:"full_mailing_address,omitempty"`
}

// CurrentSale holds the most recent recorded sale.
type CurrentSale struct {
	Price       string `json:"price"`
	Date        string `json:"date"`
	BookPage    string `json:"book_page"`
	Certificate string `json:"certificate"`
	Instrument  string `json:"instrument"`
	DeedType    string `json:"deed_type"`
	Grantor     string `json:"grantor"`
}

// Assessment holds the current assessed values. Total is read from the
// summary label and overridden by the valuation grid when present.
type Assessment struct {
	Total         string `json:"total"`
	ValuationYear string `json:"valuation_year,omitempty"`
	Improvements  string `json:"improvements,omitempty"`
	Land          string `json:"land,omitempty"`
}

// SubArea is one row of a building's sub-area grid.
type SubArea struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	GrossArea   *float64 `json:"gross_area"`
	LivingArea  *float64 `json:"living_area"`
}

// Media is a downloadable photo or layout image reference.
type Media struct {
	URL         string `json:"url"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Building holds the per-structure construction and valuation fields. Up to
// nine buildings can appear on one parcel page.
type Building struct {
	BuildingNumber  int               `json:"building_number"`
	YearBuilt       string            `json:"year_built"`
	LivingAreaSqft  string            `json:"living_area_sqft"`
	ReplacementCost string            `json:"replacement_cost"`
	PercentGood     string            `json:"percent_good"`
	Rcnld           string            `json:"rcnld"`
	BuildingValue   string            `json:"building_value"`
	EffectiveYear   string            `json:"effective_year"`
	Depreciation    string            `json:"depreciation"`
	Attributes      map[string]string `json:"attributes"`
	SubAreas        []SubArea         `json:"sub_areas"`
	TotalGrossArea  float64           `json:"total_gross_area"`
	TotalLivingArea float64           `json:"total_living_area"`
	Photos          []Media           `json:"photos"`
	Layouts         []Media           `json:"layouts"`
}

// LandInfo holds the land section fields plus the land lines grid.
type LandInfo struct {
	UseCode       string              `json:"use_code"`
	Description   string              `json:"description"`
	Zone          string              `json:"zone"`
	Neighborhood  string              `json:"neighborhood"`
	SizeSqft      string              `json:"size_sqft"`
	SizeAcres     string              `json:"size_acres"`
	Frontage      string              `json:"frontage"`
	Depth         string              `json:"depth"`
	AssessedValue string              `json:"assessed_value"`
	AltLandAppr   string              `json:"alt_land_appr"`
	Category      string              `json:"category"`
	LandType      string              `json:"land_type"`
	Topography    string              `json:"topography"`
	Utilities     string              `json:"utilities"`
	StreetType    string              `json:"street_type"`
	Traffic       string              `json:"traffic"`
	LandLines     []map[string]string `json:"land_lines,omitempty"`
}

// TaxInfo holds the tax summary fields.
type TaxInfo struct {
	TaxAmount string `json:"tax_amount"`
	TaxYear   string `json:"tax_year"`
	TaxRate   string `json:"tax_rate"`
}

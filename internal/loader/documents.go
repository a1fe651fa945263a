package loader

import (
	"github.com/bull/library-harvester/internal/catalog"
	"github.com/bull/library-harvester/internal/search"
)

type geoPoint struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// libraryDoc field names follow the library template.
type libraryDoc struct {
	LibCode       string    `json:"libCode"`
	LibName       string    `json:"libName"`
	Address       string    `json:"address"`
	Location      *geoPoint `json:"location,omitempty"`
	Tel           string    `json:"tel"`
	Fax           string    `json:"fax,omitempty"`
	Homepage      string    `json:"homepage,omitempty"`
	BookCount     int64     `json:"BookCount"`
	OperatingTime string    `json:"operatingTime,omitempty"`
	Closed        string    `json:"closed,omitempty"`
	HarvestedAt   string    `json:"harvestedAt"`
}

// bookDoc field names follow the book template.
type bookDoc struct {
	Title           string `json:"title"`
	Authors         string `json:"authors"`
	Publisher       string `json:"publisher"`
	PublicationYear string `json:"publicationYear"`
	ISBN            string `json:"isbn"`
	SetISBN         string `json:"setIsbn"`
	AdditionSymbol  string `json:"additionSymbol"`
	Vol             string `json:"vol"`
	KDC             string `json:"kdc"`
	BookCount       int    `json:"bookCount"`
	LoanCount       int    `json:"loanCount"`
	RegDate         string `json:"regDate,omitempty"`
	LibCode         string `json:"libCode"`
}

// libraryDocuments converts libraries to bulk documents keyed by library code.
// Libraries without a code are dropped.
func libraryDocuments(libs []catalog.Library, day string) (docs []search.Document, dropped int) {
	docs = make([]search.Document, 0, len(libs))
	for _, lib := range libs {
		if lib.Code == "" {
			dropped++
			continue
		}
		doc := libraryDoc{
			LibCode:       lib.Code,
			LibName:       lib.Name,
			Address:       lib.Address,
			Tel:           lib.Tel,
			Fax:           lib.Fax,
			Homepage:      lib.Homepage,
			BookCount:     lib.BookCount,
			OperatingTime: lib.OperatingTime,
			Closed:        lib.Closed,
			HarvestedAt:   day,
		}
		if lib.Latitude != "" && lib.Longitude != "" {
			doc.Location = &geoPoint{Lat: lib.Latitude, Lon: lib.Longitude}
		}
		docs = append(docs, search.Document{ID: lib.Code, Source: doc})
	}
	return docs, dropped
}

// BookID is the document id of a book within its day's partition.
func BookID(libCode, isbn string) string {
	return libCode + "-" + isbn
}

// bookDocuments converts books to bulk documents keyed by (libCode, isbn), attaching libCode.
// Books without an ISBN are dropped.
func bookDocuments(libCode string, books []catalog.Book) (docs []search.Document, dropped int) {
	docs = make([]search.Document, 0, len(books))
	for _, b := range books {
		if !b.Valid() {
			dropped++
			continue
		}
		docs = append(docs, search.Document{
			ID: BookID(libCode, b.ISBN),
			Source: bookDoc{
				Title:           b.Title,
				Authors:         b.Authors,
				Publisher:       b.Publisher,
				PublicationYear: b.PublicationYear,
				ISBN:            b.ISBN,
				SetISBN:         b.SetISBN,
				AdditionSymbol:  b.AdditionSymbol,
				Vol:             b.Vol,
				KDC:             b.KDC,
				BookCount:       b.BookCount,
				LoanCount:       b.LoanCount,
				RegDate:         b.RegDate,
				LibCode:         libCode,
			},
		})
	}
	return docs, dropped
}

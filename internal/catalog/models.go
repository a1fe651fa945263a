package catalog

// Library is one public library as reported by the library search API.
// An empty Code means the upstream record had no code; such records are never indexed.
type Library struct {
	Code          string // API library code, document id in the library partition
	Name          string
	Address       string
	Tel           string
	Fax           string // optional
	Latitude      string // decimal degrees as sent upstream
	Longitude     string
	Homepage      string // optional
	OperatingTime string // optional
	Closed        string // optional, closed-day text
	BookCount     int64  // holdings count
}

// Book is one row of a library's holdings CSV.
// LibCode is not part of the CSV; it is attached when the holdings are loaded.
type Book struct {
	Num             int
	Title           string
	Authors         string
	Publisher       string
	PublicationYear string
	ISBN            string
	SetISBN         string
	AdditionSymbol  string
	Vol             string
	KDC             string // Korean Decimal Classification code
	BookCount       int
	LoanCount       int
	RegDate         string // yyyy-MM-dd
	LibCode         string
}

// Holdings pairs the API library code recovered from a library page with its books.
type Holdings struct {
	LibCode string
	Books   []Book
}

// Valid reports whether the book can be indexed. Books without an ISBN have no identity.
func (b Book) Valid() bool {
	return b.ISBN != ""
}

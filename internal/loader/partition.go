package loader

import (
	"fmt"
	"time"
)

// Kind is the record kind a partition holds.
type Kind string

const (
	KindLibrary Kind = "library"
	KindBook    Kind = "book"
)

// KST is Korea Standard Time. Partition days are calendar days in KST.
var KST = time.FixedZone("KST", 9*60*60)

// dayLayout matches the yyyy-MM-dd date format declared in the templates.
const dayLayout = "2006-01-02"

// Day truncates t to its KST calendar day.
func Day(t time.Time) time.Time {
	k := t.In(KST)
	return time.Date(k.Year(), k.Month(), k.Day(), 0, 0, 0, 0, KST)
}

// PartitionName returns the index name for kind on the KST day containing t,
// e.g. "book-2024-03-01".
func PartitionName(kind Kind, t time.Time) string {
	return fmt.Sprintf("%s-%s", kind, t.In(KST).Format(dayLayout))
}

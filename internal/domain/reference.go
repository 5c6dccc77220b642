package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	CaseNumberPrefix   = "INV"
	ReportNumberPrefix = "SMR"
)

// NewReferenceNumber builds a human readable PREFIX-YYYYMMDD-XXXXXX identifier.
// at should already be in the reference zone.
func NewReferenceNumber(prefix string, at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format("20060102"), suffix)
}

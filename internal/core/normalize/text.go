package normalize

import (
	"strings"

	"github.com/opsline/quell/internal/core/model"
)

// Text serializes the canonical fields into the single string used for
// embedding. Field order and delimiter are fixed: identical records must
// always produce byte-identical text, or similarity scores stop being
// reproducible across replays.
func Text(rec model.CanonicalRecord) string {
	return strings.Join([]string{
		rec.IncidentID,
		rec.ObservedValue,
		rec.PolicyName,
		rec.ConditionName,
		rec.Subject,
		rec.DisplayName,
		rec.Severity,
		rec.Summary,
	}, " | ")
}

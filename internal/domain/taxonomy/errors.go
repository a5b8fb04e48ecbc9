package taxonomy

import (
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

func errMalformedPath(row int, leafID string) error {
	return errors.New(errors.ErrCodeMalformedPath, "taxonomic path is empty").
		WithDetailf("row=%d feature=%q", row, leafID)
}

func errUnknownTaxon(id ID) error {
	return errors.New(errors.ErrCodeTaxonNotFound, "unknown taxon handle").
		WithDetailf("id=%d", id)
}

func errLeafNotFound(leafID string) error {
	return errors.New(errors.ErrCodeTaxonNotFound, "no taxon classifies feature").
		WithDetailf("feature=%q", leafID)
}

func errPathNotFound(path string) error {
	return errors.New(errors.ErrCodeTaxonNotFound, "no taxon with this full name").
		WithDetailf("path=%q", path)
}

func errDuplicateLeaf(leafID string, claims []ID) error {
	return errors.New(errors.ErrCodeInvariantViolation, "feature is classified by more than one taxon").
		WithDetailf("feature=%q claims=%v", leafID, claims)
}

func errInvalidDepth(id ID, depth, want int) error {
	return errors.New(errors.ErrCodeInvalidDepth, "requested depth is outside the lineage").
		WithDetailf("id=%d depth=%d requested=%d", id, depth, want)
}

func errInvariant(message string) *errors.AppError {
	return errors.New(errors.ErrCodeInvariantViolation, message)
}

package classifier

import (
	"context"

	"github.com/SilentInt/HamsterWallet/internal/taxonomy"
)

type (
	// ItemPayload is the minimal per-item data sent to the classifier.
	ItemPayload struct {
		ID         int64  `json:"id"`
		NameNative string `json:"name_native"`
		NameLocal  string `json:"name_local"`
	}

	// Proposal is one classifier suggestion, before reconciliation. The
	// category name and reason are optional in the wire format; ids are
	// validated against the live hierarchy later, never trusted here.
	Proposal struct {
		ItemID       int64  `json:"item_id"`
		CategoryID   int64  `json:"category_id"`
		CategoryName string `json:"category_name,omitempty"`
		Reason       string `json:"reason,omitempty"`
	}

	// BatchClassifier is the port for the external classification service.
	// A non-nil error means the whole batch failed: declared failure,
	// unparseable reply, empty reply, or transport error alike. Per-item
	// problems are not the gateway's concern.
	BatchClassifier interface {
		ClassifyBatch(ctx context.Context, items []ItemPayload, tax []taxonomy.TaxonomyEntry) ([]Proposal, error)
	}
)
